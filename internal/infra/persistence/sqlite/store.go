// Package sqlite provides a SQLite-backed persistent store that keeps one row
// per body and per biome.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"spherecore/internal/infra/persistence/memory"
	"spherecore/internal/infra/persistence/tables"
	"spherecore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "spherecore.db"

// Store serves reads and transactions from memory and writes the rows a
// successful transaction changed back to SQLite.
type Store struct {
	*memory.Store
	db      *sql.DB
	path    string
	mu      sync.Mutex
	tracker *tables.Tracker
}

// NewStore opens (or creates) the database at path and hydrates the store
// from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path, tracker: tables.NewTracker()}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, table := range tables.All {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payload BLOB NOT NULL
		)`, table)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create %s table: %w", table, err)
		}
	}
	var rows []tables.Row
	for _, table := range tables.All {
		loaded, err := s.selectRows(table)
		if err != nil {
			return err
		}
		rows = append(rows, loaded...)
	}
	snap, err := tables.Decode(rows)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		s.ImportState(snap)
	}
	return s.tracker.Sync(s.ExportState(), rows)
}

func (s *Store) selectRows(table string) ([]tables.Row, error) {
	rs, err := s.db.Query(fmt.Sprintf(`SELECT id, name, payload FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rs.Close() }()
	var out []tables.Row
	for rs.Next() {
		r := tables.Row{Table: table}
		if err := rs.Scan(&r.ID, &r.Name, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.tracker.Changes(s.ExportState())
	if err != nil || len(rows) == 0 {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, r := range rows {
		if r.Deleted() {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, r.Table), r.ID); err != nil {
				return fmt.Errorf("delete %s %s: %w", r.Table, r.ID, err)
			}
			continue
		}
		stmt := fmt.Sprintf(`INSERT INTO %s(id,name,payload) VALUES(?,?,?)
			ON CONFLICT(id) DO UPDATE SET name=excluded.name, payload=excluded.payload`, r.Table)
		if _, err := tx.ExecContext(ctx, stmt, r.ID, r.Name, r.Payload); err != nil {
			return fmt.Errorf("upsert %s %s: %w", r.Table, r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.tracker.Commit(rows)
	return nil
}

// RunInTransaction applies fn in memory and, when it succeeds, writes the
// changed rows to SQLite.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		return res, fmt.Errorf("persist rows: %w", pErr)
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
