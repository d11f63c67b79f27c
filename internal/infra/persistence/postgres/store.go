// Package postgres persists the in-memory store to PostgreSQL. The catalog
// and the rows of each entity are kept as separate JSONB buckets so a commit
// only rewrites the entities it touched.
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"emxloader/internal/infra/persistence/memory"
	"emxloader/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/pkg/errors"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/emxloader?sslmode=disable"

	catalogBucket = "catalog"
	rowsPrefix    = "rows/"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// catalog is the payload of the catalog bucket.
type catalog struct {
	Entities []domain.EntityMetaData `json:"entities"`
	Packages []domain.Package        `json:"packages"`
}

// Store runs transactions in memory and writes the changed buckets to
// Postgres after each successful one.
type Store struct {
	*memory.Store
	db *sql.DB

	mu      sync.Mutex
	digests map[string][sha256.Size]byte
}

// NewStore opens dsn (defaultDSN when empty), ensures the state table and
// restores the in-memory store from it.
func NewStore(ctx context.Context, dsn string, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	s := &Store{db: db, digests: make(map[string][sha256.Size]byte)}
	if err := s.restore(ctx, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) restore(ctx context.Context, opts []memory.Option) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping postgres")
	}
	const ddl = `CREATE TABLE IF NOT EXISTS emx_state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "ensure state table")
	}
	buckets, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.Store = memory.NewStore(opts...)
	if len(buckets) == 0 {
		return nil
	}
	snap := memory.Snapshot{Rows: make(map[string][]domain.Entity)}
	for bucket, payload := range buckets {
		switch {
		case bucket == catalogBucket:
			var c catalog
			if err := json.Unmarshal(payload, &c); err != nil {
				return errors.Wrapf(err, "decode %s", bucket)
			}
			snap.Entities, snap.Packages = c.Entities, c.Packages
		case strings.HasPrefix(bucket, rowsPrefix):
			var rows []domain.Entity
			if err := json.Unmarshal(payload, &rows); err != nil {
				return errors.Wrapf(err, "decode %s", bucket)
			}
			snap.Rows[strings.TrimPrefix(bucket, rowsPrefix)] = rows
		default:
			continue
		}
		s.digests[bucket] = sha256.Sum256(payload)
	}
	if err := s.Store.ImportState(snap); err != nil {
		return errors.Wrap(err, "restore snapshot")
	}
	return nil
}

func (s *Store) load(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM emx_state`)
	if err != nil {
		return nil, errors.Wrap(err, "select state")
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string][]byte)
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, errors.Wrap(err, "scan state")
		}
		if len(payload) > 0 {
			out[bucket] = payload
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate state")
	}
	return out, nil
}

// RunInTransaction applies fn in memory and persists the result when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.DataService) error) error {
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// encode renders the current state as buckets.
func (s *Store) encode() (map[string][]byte, error) {
	snap := s.ExportState()
	out := make(map[string][]byte, len(snap.Rows)+1)
	b, err := json.Marshal(catalog{Entities: snap.Entities, Packages: snap.Packages})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", catalogBucket)
	}
	out[catalogBucket] = b
	for name, rows := range snap.Rows {
		if b, err = json.Marshal(rows); err != nil {
			return nil, errors.Wrapf(err, "encode %s%s", rowsPrefix, name)
		}
		out[rowsPrefix+name] = b
	}
	return out, nil
}

// persist upserts the buckets whose content changed since the last commit
// and deletes the buckets of dropped entities in one database transaction.
func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets, err := s.encode()
	if err != nil {
		return err
	}
	next := make(map[string][sha256.Size]byte, len(buckets))
	var changed, dropped []string
	for bucket, payload := range buckets {
		next[bucket] = sha256.Sum256(payload)
		if prev, ok := s.digests[bucket]; !ok || prev != next[bucket] {
			changed = append(changed, bucket)
		}
	}
	for bucket := range s.digests {
		if _, ok := buckets[bucket]; !ok {
			dropped = append(dropped, bucket)
		}
	}
	if len(changed) == 0 && len(dropped) == 0 {
		return nil
	}
	sort.Strings(changed)
	sort.Strings(dropped)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range changed {
		if _, err := tx.ExecContext(ctx, `INSERT INTO emx_state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, buckets[bucket]); err != nil {
			return errors.Wrapf(err, "upsert %s", bucket)
		}
	}
	for _, bucket := range dropped {
		if _, err := tx.ExecContext(ctx, `DELETE FROM emx_state WHERE bucket = $1`, bucket); err != nil {
			return errors.Wrapf(err, "delete %s", bucket)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	committed = true
	s.digests = next
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
