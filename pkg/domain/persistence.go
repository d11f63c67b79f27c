package domain

import "context"

// Repository is the backing storage for all rows of one entity.
type Repository interface {
	Name() string
	EntityMetaData() EntityMetaData
	Count(ctx context.Context) (int64, error)
	// Add inserts every row of the stream and returns how many were written.
	Add(ctx context.Context, rows RowStream) (int, error)
	// Update replaces every row of the stream by id and returns how many were written.
	Update(ctx context.Context, rows RowStream) (int, error)
	// FindAll streams the rows matching q; a nil or empty query matches all rows.
	FindAll(ctx context.Context, q *Query) RowStream
	FindOne(ctx context.Context, id any) (Entity, bool, error)
}

// IndexedRepository is a repository backed by a secondary index that can be
// rebuilt from the primary rows.
type IndexedRepository interface {
	Repository
	RebuildIndex(ctx context.Context) error
}

// MetaRegistry is the catalog of entity and attribute definitions.
type MetaRegistry interface {
	EntityMetaData(name string) (EntityMetaData, bool)
	// AddEntityMeta registers a new entity. Abstract entities yield a nil repository.
	AddEntityMeta(ctx context.Context, meta EntityMetaData) (Repository, error)
	// UpdateEntityMeta adds attributes of meta that the registered entity lacks
	// and returns exactly those attributes.
	UpdateEntityMeta(ctx context.Context, meta EntityMetaData) ([]AttributeMetaData, error)
	DeleteEntityMeta(ctx context.Context, name string) error
	DeleteAttribute(ctx context.Context, entity, attribute string) error
	AddPackage(ctx context.Context, pkg Package) error
}

// TagService binds semantic tags to entities and attributes. Binding the same
// tag twice has no additional effect.
type TagService interface {
	AddEntityTag(ctx context.Context, tag EntityTag) error
	AddAttributeTag(ctx context.Context, tag AttributeTag) error
}

// DataService is the target data store an import writes into.
type DataService interface {
	Meta() MetaRegistry
	Repository(name string) (Repository, bool)
	HasRepository(name string) bool
	Tags() TagService
	EntityNames() []string
}

// Source is a collection of named row streams produced upstream.
type Source interface {
	EntityNames() []string
	Rows(name string) (RowStream, bool)
}

// PermissionHook grants the principal rights on entities it created.
type PermissionHook interface {
	Grant(ctx context.Context, principal Principal, entities []string) error
}

// PersistentStore is the transactional boundary around a DataService.
type PersistentStore interface {
	// RunInTransaction runs fn against a transactional view and commits row
	// writes when fn returns nil. Schema changes are not rolled back.
	RunInTransaction(ctx context.Context, fn func(DataService) error) error
	// View runs fn against a read view of the committed state.
	View(ctx context.Context, fn func(DataService) error) error
	EntityNames() []string
	Close() error
}
