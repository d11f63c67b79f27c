// Package memory provides an in-memory implementation of the data service
// used for tests, ephemeral environments and as the base of the snapshotting
// SQL stores.
package memory

import (
	"context"
	"slices"
	"sync"

	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// Compile-time contract assertions.
var (
	_ domain.DataService       = (*transaction)(nil)
	_ domain.MetaRegistry      = metaRegistry{}
	_ domain.TagService        = tagService{}
	_ domain.IndexedRepository = (*repository)(nil)
	_ domain.PersistentStore   = (*Store)(nil)
)

// Store keeps the catalog, the committed rows and the secondary indexes.
//
// Schema changes take effect immediately and survive an aborted transaction,
// the way DDL behaves in MySQL. Row writes are transactional. Indexes are
// maintained eagerly while a transaction runs, so an abort leaves ghost
// entries behind until RebuildIndex runs; lookups verify against the rows and
// never return ghosts.
type Store struct {
	mu      sync.Mutex
	catalog *catalog
	state   dataState
	indexes map[string]*index
	indexed bool
	log     *logrus.Entry
}

// Option configures a Store.
type Option func(*Store)

// WithoutIndexes disables secondary indexes; repositories then scan.
func WithoutIndexes() Option {
	return func(s *Store) { s.indexed = false }
}

// WithLogger sets the logger entry.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore constructs an empty store holding only the reserved catalog entities.
func NewStore(opts ...Option) *Store {
	s := &Store{
		catalog: newCatalog(),
		state:   newDataState(),
		indexes: make(map[string]*index),
		indexed: true,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "memory-store")
	for _, meta := range []domain.EntityMetaData{domain.TagMetaData(), domain.PackageMetaData(), domain.EntitiesMetaData(), domain.AttributesMetaData()} {
		s.catalog.put(meta)
		s.createTable(meta, nil)
	}
	s.syncCatalogTables(nil)
	return s
}

// transaction is the data service view handed to RunInTransaction callbacks.
type transaction struct {
	ctx   context.Context
	store *Store
	state dataState
}

// RunInTransaction executes fn against a transactional copy of the rows and
// commits the copy when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ds domain.DataService) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{ctx: ctx, store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		s.log.WithError(err).Debug("transaction aborted")
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a copy of the committed state. Writes made by fn
// are discarded, schema changes are not.
func (s *Store) View(ctx context.Context, fn func(ds domain.DataService) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&transaction{ctx: ctx, store: s, state: s.state.clone()})
}

// Close is a no-op; the memory store holds no external resources.
func (s *Store) Close() error { return nil }

// EntityNames lists the registered concrete entities, reserved ones first.
func (s *Store) EntityNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.concreteNames()
}

// EntityMetaData returns registered metadata by name.
func (s *Store) EntityMetaData(name string) (domain.EntityMetaData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.get(name)
}

// Count returns the committed row count of entity.
func (s *Store) Count(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tables[entity]
	if !ok {
		return 0
	}
	return len(t.rows)
}

// IndexEntries returns the number of row references held by the index of
// entity, ghosts included.
func (s *Store) IndexEntries(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[entity]
	if !ok {
		return 0
	}
	return idx.entries()
}

func (tx *transaction) Meta() domain.MetaRegistry { return metaRegistry{tx: tx} }

func (tx *transaction) Tags() domain.TagService { return tagService{tx: tx} }

func (tx *transaction) Repository(name string) (domain.Repository, bool) {
	if _, ok := tx.state.tables[name]; !ok {
		return nil, false
	}
	return &repository{tx: tx, name: name}, true
}

func (tx *transaction) HasRepository(name string) bool {
	_, ok := tx.state.tables[name]
	return ok
}

func (tx *transaction) EntityNames() []string {
	names := tx.store.catalog.concreteNames()
	return slices.DeleteFunc(names, func(n string) bool { return !tx.HasRepository(n) })
}

// createTable adds an empty table to the committed state and to tx, if any.
func (s *Store) createTable(meta domain.EntityMetaData, tx *transaction) {
	s.state.tables[meta.Name] = newTable(meta.Name)
	if tx != nil {
		tx.state.tables[meta.Name] = newTable(meta.Name)
	}
	if s.indexed {
		s.indexes[meta.Name] = newIndex()
	}
}

// dropTable removes a table from the committed state and from tx, if any.
func (s *Store) dropTable(name string, tx *transaction) {
	delete(s.state.tables, name)
	if tx != nil {
		delete(tx.state.tables, name)
	}
	delete(s.indexes, name)
}

// states returns the committed state and the transaction state, which both
// receive schema level changes.
func (s *Store) states(tx *transaction) []dataState {
	if tx == nil {
		return []dataState{s.state}
	}
	return []dataState{s.state, tx.state}
}
