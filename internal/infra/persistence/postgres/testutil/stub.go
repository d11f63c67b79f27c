// Package testutil provides a stub database/sql driver for postgres store tests.
// It understands the statements the snapshot store issues against its
// state table and records everything else verbatim.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

// StubConn keeps the state table in memory and records executed statements.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	State      map[string][]byte
	FailPing   bool
	FailExec   bool
	FailUpsert bool
	FailDelete bool
	FailBegin  bool
	FailQuery  bool
	FailCommit bool
	RowsErr    error
	Upserts    []string
	Deletes    []string
	Commits    int
	Rollbacks  int
}

// NewStubDB registers a uniquely named driver and opens a sql.DB backed by a
// fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{State: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Payload returns the stored payload of a state bucket.
func (c *StubConn) Payload(bucket string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.State[bucket]
	return p, ok
}

// Buckets lists the stored buckets in sorted order.
func (c *StubConn) Buckets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.State))
	for b := range c.State {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
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

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	staged := make(map[string][]byte, len(c.State))
	for k, v := range c.State {
		staged[k] = v
	}
	c.Upserts, c.Deletes = nil, nil
	return &stubTx{conn: c, before: staged}, nil
}

// ExecContext implements driver.ExecerContext. Upserts into and deletes from
// the state table are applied; other statements are only recorded.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(upper, "DELETE FROM EMX_STATE") {
		if c.FailDelete {
			return nil, fmt.Errorf("delete fail")
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("state delete expects 1 arg, got %d", len(args))
		}
		bucket, _ := args[0].Value.(string)
		if _, ok := c.State[bucket]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.State, bucket)
		c.Deletes = append(c.Deletes, bucket)
		return driver.RowsAffected(1), nil
	}
	if !strings.HasPrefix(upper, "INSERT INTO EMX_STATE") {
		return driver.RowsAffected(0), nil
	}
	if c.FailUpsert {
		return nil, fmt.Errorf("upsert fail")
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("state upsert expects 2 args, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket must be a string, got %T", args[0].Value)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
	}
	c.State[bucket] = append([]byte(nil), payload...)
	c.Upserts = append(c.Upserts, bucket)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for SELECT bucket, payload FROM emx_state.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	if !strings.Contains(strings.ToLower(query), "from emx_state") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	buckets := make([]string, 0, len(c.State))
	for b := range c.State {
		buckets = append(buckets, b)
	}
	slices.Sort(buckets)
	values := make([][]driver.Value, 0, len(buckets))
	for _, b := range buckets {
		values = append(values, []driver.Value{b, append([]byte(nil), c.State[b]...)})
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: values, err: c.RowsErr}, nil
}

type stubTx struct {
	conn   *StubConn
	before map[string][]byte
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		t.conn.State = t.before
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.State = t.before
	t.conn.Rollbacks++
	return nil
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
