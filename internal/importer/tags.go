package importer

import (
	"context"
	"maps"
	"slices"

	"emxloader/pkg/domain"
)

// TagStager upserts the rows of the tags sheet by identifier.
type TagStager struct {
	ds domain.DataService
}

// NewTagStager returns a stager writing to the tags repository of ds.
func NewTagStager(ds domain.DataService) *TagStager {
	return &TagStager{ds: ds}
}

// Stage reads the tags stream of source, if any, and upserts each row.
func (s *TagStager) Stage(ctx context.Context, source domain.Source) error {
	rows, ok := source.Rows(domain.EntityTags)
	if !ok {
		return nil
	}
	repo, ok := s.ds.Repository(domain.EntityTags)
	if !ok {
		return domain.NewError(domain.KindSchemaConflict, domain.EntityTags, nil, "no tags repository")
	}
	adapter := newRowAdapter(domain.TagMetaData(), nil)
	for tag, err := range adapter.Stream(rows) {
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, domain.EntityTags, "read tags")
		}
		id := tag[domain.TagIdentifier]
		_, found, err := repo.FindOne(ctx, id)
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, domain.EntityTags, "find tag")
		}
		if found {
			_, err = repo.Update(ctx, domain.Rows([]domain.Entity{tag}))
		} else {
			_, err = repo.Add(ctx, domain.Rows([]domain.Entity{tag}))
		}
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, domain.EntityTags, "write tag "+domain.FormatValue(id))
		}
	}
	return nil
}

// TagBindingStager applies entity and attribute tag assertions.
type TagBindingStager struct {
	tags domain.TagService
}

// NewTagBindingStager returns a stager binding through tags.
func NewTagBindingStager(tags domain.TagService) *TagBindingStager {
	return &TagBindingStager{tags: tags}
}

// Apply binds every entity tag, then every attribute tag grouped by entity
// name in lexical order.
func (s *TagBindingStager) Apply(ctx context.Context, parsed domain.ParsedMetaData) error {
	for _, tag := range parsed.EntityTags {
		if err := s.tags.AddEntityTag(ctx, tag); err != nil {
			return domain.Classify(err, domain.KindIOFailure, tag.Entity, "bind entity tag")
		}
	}
	for _, entity := range slices.Sorted(maps.Keys(parsed.AttributeTags)) {
		for _, tag := range parsed.AttributeTags[entity] {
			if tag.Entity == "" {
				tag.Entity = entity
			}
			if err := s.tags.AddAttributeTag(ctx, tag); err != nil {
				return domain.Classify(err, domain.KindIOFailure, entity, "bind attribute tag "+tag.Attribute)
			}
		}
	}
	return nil
}
