// Package storage opens the configured persistent store.
package storage

import (
	"context"
	"fmt"

	"emxloader/internal/config"
	"emxloader/internal/infra/persistence/memory"
	"emxloader/internal/infra/persistence/postgres"
	"emxloader/internal/infra/persistence/sqlite"
	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// Open selects a backend from opts. The memory driver keeps nothing across runs.
func Open(ctx context.Context, opts config.StorageOptions, log *logrus.Entry) (domain.PersistentStore, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	memOpts := []memory.Option{memory.WithLogger(log)}
	switch opts.Driver {
	case config.StorageMemory:
		return memory.NewStore(memOpts...), nil
	case config.StorageSQLite, "":
		return sqlite.NewStore(opts.SQLitePath, memOpts...)
	case config.StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN, memOpts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", opts.Driver)
	}
}
