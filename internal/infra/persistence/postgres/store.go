// Package postgres provides a Postgres-backed persistent store that keeps one
// JSONB row per body and per biome.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"spherecore/internal/infra/persistence/memory"
	"spherecore/internal/infra/persistence/tables"
	"spherecore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/spherecore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store serves reads and transactions from memory and writes the rows a
// successful transaction changed back to Postgres.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	tracker *tables.Tracker
}

// NewStore opens a Postgres-backed store using dsn (DefaultDSN when empty).
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	return NewStoreContext(context.Background(), dsn, engine)
}

// NewStoreContext is NewStore with a caller-supplied context for the startup
// queries. It creates the bodies and biomes tables when missing and hydrates
// memory from their rows.
func NewStoreContext(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, tracker: tables.NewTracker()}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	for _, table := range tables.All {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payload JSONB NOT NULL
		)`, table)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure %s table: %w", table, err)
		}
	}
	var rows []tables.Row
	for _, table := range tables.All {
		loaded, err := loadTable(ctx, s.db, table)
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

func loadTable(ctx context.Context, db *sql.DB, table string) ([]tables.Row, error) {
	rs, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, name, payload FROM %s`, table))
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

// RunInTransaction applies fn in memory and, when it succeeds, writes the
// changed rows to Postgres.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.tracker.Changes(s.ExportState())
	if err != nil || len(rows) == 0 {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, r := range rows {
		if r.Deleted() {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, r.Table), r.ID); err != nil {
				return fmt.Errorf("delete %s %s: %w", r.Table, r.ID, err)
			}
			continue
		}
		stmt := fmt.Sprintf(`INSERT INTO %s(id,name,payload) VALUES($1,$2,$3)
			ON CONFLICT(id) DO UPDATE SET name=EXCLUDED.name, payload=EXCLUDED.payload`, r.Table)
		if _, err := tx.ExecContext(ctx, stmt, r.ID, r.Name, r.Payload); err != nil {
			return fmt.Errorf("upsert %s %s: %w", r.Table, r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.tracker.Commit(rows)
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
