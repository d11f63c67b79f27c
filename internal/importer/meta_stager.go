package importer

import (
	"context"

	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// MetaStager creates or extends entity schemas and records every change in
// the ledger before it is made.
type MetaStager struct {
	meta domain.MetaRegistry
	log  *logrus.Entry
}

// NewMetaStager returns a stager writing to meta.
func NewMetaStager(meta domain.MetaRegistry, log *logrus.Entry) *MetaStager {
	return &MetaStager{meta: meta, log: log.WithField("component", "meta-stager")}
}

// Stage applies parsed entity metadata in order. Reserved names are skipped.
func (s *MetaStager) Stage(ctx context.Context, parsed domain.ParsedMetaData, report *Report, ledger *Ledger) error {
	for _, e := range parsed.Entities {
		if domain.IsReserved(e.Name) {
			continue
		}
		if _, exists := s.meta.EntityMetaData(e.Name); !exists {
			s.log.WithField("entity", e.Name).Debug("creating entity")
			ledger.RecordEntityCreated(e.Name)
			repo, err := s.meta.AddEntityMeta(ctx, e)
			if err != nil {
				return domain.Classify(err, domain.KindSchemaConflict, e.Name, "create entity "+e.Name)
			}
			if repo != nil {
				report.AddNewEntity(e.Name)
			}
			continue
		}
		if e.Abstract {
			continue
		}
		added, err := s.meta.UpdateEntityMeta(ctx, e)
		if err != nil {
			return domain.Classify(err, domain.KindSchemaConflict, e.Name, "extend entity "+e.Name)
		}
		if len(added) > 0 {
			s.log.WithFields(logrus.Fields{"entity": e.Name, "attributes": len(added)}).Debug("extended entity")
		}
		ledger.RecordAttributesAdded(e.Name, added)
	}
	return nil
}
