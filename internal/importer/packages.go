package importer

import (
	"context"

	"emxloader/pkg/domain"
)

// PackageStager upserts parsed packages into the meta registry.
type PackageStager struct {
	meta domain.MetaRegistry
}

// NewPackageStager returns a stager writing to meta.
func NewPackageStager(meta domain.MetaRegistry) *PackageStager {
	return &PackageStager{meta: meta}
}

// Stage adds packages in declaration order, skipping nil entries.
func (s *PackageStager) Stage(ctx context.Context, parsed domain.ParsedMetaData) error {
	for _, p := range parsed.Packages {
		if p == nil {
			continue
		}
		if err := s.meta.AddPackage(ctx, *p); err != nil {
			return domain.Classify(err, domain.KindSchemaConflict, p.Name, "add package "+p.Name)
		}
	}
	return nil
}
