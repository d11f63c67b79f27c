package importer

import (
	"context"
	"errors"
	"fmt"

	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// Reindexer rebuilds the indexes of indexed repositories.
type Reindexer struct {
	ds  domain.DataService
	log *logrus.Entry
}

// NewReindexer returns a reindexer over ds.
func NewReindexer(ds domain.DataService, log *logrus.Entry) *Reindexer {
	return &Reindexer{ds: ds, log: log.WithField("component", "reindexer")}
}

// Reindex rebuilds every named repository that exists and is indexed. A
// failure does not stop the remaining rebuilds; the names rebuilt and the
// joined failures are returned.
func (r *Reindexer) Reindex(ctx context.Context, names []string) ([]string, error) {
	var (
		rebuilt []string
		errs    []error
	)
	for _, name := range names {
		if !r.ds.HasRepository(name) {
			continue
		}
		repo, ok := r.ds.Repository(name)
		if !ok {
			continue
		}
		indexed, ok := repo.(domain.IndexedRepository)
		if !ok {
			continue
		}
		if err := indexed.RebuildIndex(ctx); err != nil {
			r.log.WithField("entity", name).WithError(err).Warn("rebuild index failed")
			errs = append(errs, fmt.Errorf("reindex %s: %w", name, err))
			continue
		}
		rebuilt = append(rebuilt, name)
	}
	return rebuilt, errors.Join(errs...)
}
