// Package sqlite provides a SQLite-backed store that keeps the in-memory
// semantics and snapshots catalog and rows after every committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"emxloader/internal/infra/persistence/memory"
	"emxloader/pkg/domain"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "emxloader.db"

// Snapshot buckets. Each holds one JSON document.
const (
	bucketEntities = "entities"
	bucketPackages = "packages"
	bucketRows     = "rows"
)

var sqliteBuckets = []string{bucketEntities, bucketPackages, bucketRows}

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the memory
// store from the last snapshot.
func NewStore(path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, errors.Wrap(err, "create dirs")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create state table")
	}
	s := &Store{Store: memory.NewStore(opts...), db: db, path: path}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return errors.Wrap(err, "select state")
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := map[string]any{
		bucketEntities: &snapshot.Entities,
		bucketPackages: &snapshot.Packages,
		bucketRows:     &snapshot.Rows,
	}
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return errors.Wrap(err, "scan")
		}
		target, ok := targets[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return errors.Wrapf(err, "decode %s", bucket)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate state")
	}
	if !found {
		return nil
	}
	return s.ImportState(snapshot)
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case bucketEntities:
			data, err = json.Marshal(snapshot.Entities)
		case bucketPackages:
			data, err = json.Marshal(snapshot.Packages)
		case bucketRows:
			data, err = json.Marshal(snapshot.Rows)
		}
		if err != nil {
			return errors.Wrapf(err, "encode %s", bucket)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return errors.Wrapf(err, "upsert %s", bucket)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// RunInTransaction applies fn within a transaction, then snapshots state to
// SQLite if it succeeded.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.DataService) error) error {
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
