package importer

import (
	"context"

	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// DataStager writes the source rows of every known entity through the merge engine.
type DataStager struct {
	ds    domain.DataService
	merge *MergeEngine
	log   *logrus.Entry
}

// NewDataStager returns a stager writing into ds.
func NewDataStager(ds domain.DataService, merge *MergeEngine, log *logrus.Entry) *DataStager {
	return &DataStager{ds: ds, merge: merge, log: log.WithField("component", "data-stager")}
}

// Run imports rows for entities in the given order, which is expected to be
// dependency ordered. Entities without a repository or without rows are skipped.
func (s *DataStager) Run(ctx context.Context, report *Report, entities []domain.EntityMetaData, source domain.Source, action domain.DatabaseAction) error {
	for _, e := range entities {
		if domain.IsReserved(e.Name) {
			continue
		}
		repo, ok := s.ds.Repository(e.Name)
		if !ok {
			continue
		}
		rows, ok := source.Rows(e.SimpleName)
		if !ok {
			rows, ok = source.Rows(e.Name)
		}
		if !ok {
			s.log.WithField("entity", e.Name).Debug("no rows, metadata only")
			continue
		}
		adapted := newRowAdapter(e, s.ds.Meta()).Stream(rows)
		resolved := resolveSelfReferences(e, adapted)
		count, err := s.merge.Update(ctx, repo, resolved, action)
		if err != nil {
			return err
		}
		report.AddEntityCount(e.Name, count)
		s.log.WithFields(logrus.Fields{"entity": e.Name, "count": count}).Info("imported rows")
	}
	return nil
}
