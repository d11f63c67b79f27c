// Package hugeset provides a set of scalar keys that spills from memory to a
// temporary SQLite file once it grows past a threshold.
package hugeset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"emxloader/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultSpillThreshold is the number of keys held in memory before spilling.
const DefaultSpillThreshold = 100_000

// Options tune where and when a set spills.
type Options struct {
	SpillThreshold int
	TempDir        string
}

// Set is a set of scalar keys compared by value across integer widths.
// A Set is not safe for concurrent use; the mutex only guards Close.
type Set struct {
	opts   Options
	mem    map[string]struct{}
	db     *sql.DB
	dir    string
	size   int
	mu     sync.Mutex
	closed bool
}

// New returns an empty in-memory set.
func New(opts Options) *Set {
	if opts.SpillThreshold <= 0 {
		opts.SpillThreshold = DefaultSpillThreshold
	}
	return &Set{opts: opts, mem: make(map[string]struct{})}
}

// Add inserts v. Nil values are ignored.
func (s *Set) Add(ctx context.Context, v any) error {
	if v == nil {
		return nil
	}
	if s.closed {
		return errors.New("hugeset: add on closed set")
	}
	key, err := domain.EncodeKey(v)
	if err != nil {
		return fmt.Errorf("hugeset: %w", err)
	}
	if s.db == nil {
		if _, ok := s.mem[key]; ok {
			return nil
		}
		if len(s.mem) < s.opts.SpillThreshold {
			s.mem[key] = struct{}{}
			s.size++
			return nil
		}
		if err := s.spill(ctx); err != nil {
			return err
		}
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO hugeset(k) VALUES(?)`, key)
	if err != nil {
		return fmt.Errorf("hugeset: insert: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.size++
	}
	return nil
}

// Contains reports whether v was added.
func (s *Set) Contains(ctx context.Context, v any) (bool, error) {
	if v == nil || s.closed {
		return false, nil
	}
	key, err := domain.EncodeKey(v)
	if err != nil {
		return false, fmt.Errorf("hugeset: %w", err)
	}
	if s.db == nil {
		_, ok := s.mem[key]
		return ok, nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM hugeset WHERE k = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hugeset: lookup: %w", err)
	}
	return true, nil
}

// Len returns the number of distinct keys.
func (s *Set) Len() int { return s.size }

// Empty reports whether the set holds no keys.
func (s *Set) Empty() bool { return s.size == 0 }

// Spilled reports whether the set moved to its backing file.
func (s *Set) Spilled() bool { return s.db != nil }

// All yields every key once, decoded to its canonical Go value.
func (s *Set) All(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if s.closed {
			return
		}
		if s.db == nil {
			for key := range s.mem {
				v, err := domain.DecodeKey(key)
				if !yield(v, err) || err != nil {
					return
				}
			}
			return
		}
		rows, err := s.db.QueryContext(ctx, `SELECT k FROM hugeset ORDER BY rowid`)
		if err != nil {
			yield(nil, fmt.Errorf("hugeset: scan: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				yield(nil, fmt.Errorf("hugeset: scan: %w", err))
				return
			}
			v, err := domain.DecodeKey(key)
			if !yield(v, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("hugeset: scan: %w", err))
		}
	}
}

// Close releases the backing file. It is safe to call more than once.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mem = nil
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if s.dir != "" {
		errs = append(errs, os.RemoveAll(s.dir))
		s.dir = ""
	}
	return errors.Join(errs...)
}

// Path returns the backing file path, or "" while the set lives in memory.
func (s *Set) Path() string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, "set.db")
}

func (s *Set) spill(ctx context.Context) (retErr error) {
	dir, err := os.MkdirTemp(s.opts.TempDir, "hugeset-*")
	if err != nil {
		return fmt.Errorf("hugeset: temp dir: %w", err)
	}
	s.dir = dir
	db, err := sql.Open("sqlite", filepath.Join(dir, "set.db"))
	if err != nil {
		return fmt.Errorf("hugeset: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db
	if _, err := db.ExecContext(ctx, `CREATE TABLE hugeset (k TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("hugeset: create table: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("hugeset: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO hugeset(k) VALUES(?)`)
	if err != nil {
		return fmt.Errorf("hugeset: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for key := range s.mem {
		if _, err := stmt.ExecContext(ctx, key); err != nil {
			return fmt.Errorf("hugeset: spill: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("hugeset: commit: %w", err)
	}
	s.mem = nil
	return nil
}
