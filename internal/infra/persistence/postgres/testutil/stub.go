// Package testutil provides a stub database/sql driver that understands the
// per-entity table statements issued by the postgres store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

var (
	createRe = regexp.MustCompile(`(?i)^CREATE TABLE IF NOT EXISTS (\w+)`)
	insertRe = regexp.MustCompile(`(?i)^INSERT INTO (\w+)`)
	deleteRe = regexp.MustCompile(`(?i)^DELETE FROM (\w+)`)
	selectRe = regexp.MustCompile(`(?i)FROM (\w+)`)
)

// StoredRow is one row held by the stub.
type StoredRow struct {
	Name    string
	Payload []byte
}

// StubConn records executed statements and keeps table rows in memory.
type StubConn struct {
	mu sync.Mutex

	Execs  []string
	Tables map[string]map[string]StoredRow

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
	// FailTables rejects writes to the named tables.
	FailTables map[string]bool
	RowsErr    error
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string]map[string]StoredRow)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Row returns a copy of a stored row.
func (c *StubConn) Row(table, id string) (StoredRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.Tables[table][id]
	r.Payload = append([]byte(nil), r.Payload...)
	return r, ok
}

// Count returns the number of rows in table.
func (c *StubConn) Count(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Tables[table])
}

// Seed stores a row directly.
func (c *StubConn) Seed(table, id, name string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table(table)[id] = StoredRow{Name: name, Payload: append([]byte(nil), payload...)}
}

func (c *StubConn) table(name string) map[string]StoredRow {
	t, ok := c.Tables[name]
	if !ok {
		t = make(map[string]StoredRow)
		c.Tables[name] = t
	}
	return t
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Writes apply immediately; rollback
// and failed commits restore the tables as they were at begin.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	before := make(map[string]map[string]StoredRow, len(c.Tables))
	for name, rows := range c.Tables {
		copied := make(map[string]StoredRow, len(rows))
		for id, r := range rows {
			copied[id] = r
		}
		before[name] = copied
	}
	return &stubTx{conn: c, before: before}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	query = strings.TrimSpace(query)
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	if m := createRe.FindStringSubmatch(query); m != nil {
		c.table(m[1])
		return driver.RowsAffected(0), nil
	}
	if m := insertRe.FindStringSubmatch(query); m != nil {
		if c.FailTables[m[1]] {
			return nil, fmt.Errorf("exec fail for %s", m[1])
		}
		if len(args) != 3 {
			return nil, fmt.Errorf("expected id, name and payload args, got %d", len(args))
		}
		id, idOK := args[0].Value.(string)
		name, nameOK := args[1].Value.(string)
		payload, payloadOK := args[2].Value.([]byte)
		if !idOK || !nameOK || !payloadOK {
			return nil, fmt.Errorf("unexpected arg types %T %T %T", args[0].Value, args[1].Value, args[2].Value)
		}
		c.table(m[1])[id] = StoredRow{Name: name, Payload: append([]byte(nil), payload...)}
		return driver.RowsAffected(1), nil
	}
	if m := deleteRe.FindStringSubmatch(query); m != nil {
		if c.FailTables[m[1]] {
			return nil, fmt.Errorf("exec fail for %s", m[1])
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("expected id arg, got %d", len(args))
		}
		id, _ := args[0].Value.(string)
		if _, ok := c.Tables[m[1]][id]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Tables[m[1]], id)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext for SELECT id, name, payload FROM <table>.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	m := selectRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	rows := c.Tables[m[1]]
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	values := make([][]driver.Value, 0, len(ids))
	for _, id := range ids {
		r := rows[id]
		values = append(values, []driver.Value{id, r.Name, append([]byte(nil), r.Payload...)})
	}
	return &stubRows{cols: []string{"id", "name", "payload"}, rows: values, err: c.RowsErr}, nil
}

type stubTx struct {
	conn   *StubConn
	before map[string]map[string]StoredRow
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		t.restore()
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.restore()
	return nil
}

func (t *stubTx) restore() {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.Tables = t.before
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
