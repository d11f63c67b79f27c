package memory

import (
	"fmt"

	"emxloader/pkg/domain"
)

// Snapshot captures the catalog and committed rows for external persistence.
type Snapshot struct {
	Entities []domain.EntityMetaData    `json:"entities"`
	Packages []domain.Package           `json:"packages"`
	Rows     map[string][]domain.Entity `json:"rows"`
}

// ExportState clones the catalog and committed rows. Catalog tables are
// derived and not exported.
func (s *Store) ExportState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Packages: s.catalog.allPackages(),
		Rows:     make(map[string][]domain.Entity),
	}
	for _, meta := range s.catalog.all() {
		if domain.IsReserved(meta.Name) {
			continue
		}
		snap.Entities = append(snap.Entities, meta)
	}
	for name, t := range s.state.tables {
		if name == domain.EntityPackages || name == domain.EntityEntities || name == domain.EntityAttributes {
			continue
		}
		rows := make([]domain.Entity, 0, len(t.rows))
		for _, r := range t.ordered() {
			rows = append(rows, r.Clone())
		}
		snap.Rows[name] = rows
	}
	return snap
}

// ImportState replaces the store contents with snapshot. Row values are
// converted with their attribute types, so a snapshot decoded from JSON
// regains its canonical values.
func (s *Store) ImportState(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog = newCatalog()
	s.state = newDataState()
	s.indexes = make(map[string]*index)
	for _, meta := range []domain.EntityMetaData{domain.TagMetaData(), domain.PackageMetaData(), domain.EntitiesMetaData(), domain.AttributesMetaData()} {
		s.catalog.put(meta)
		s.createTable(meta, nil)
	}
	for _, p := range snapshot.Packages {
		s.catalog.putPackage(p)
	}
	for _, meta := range snapshot.Entities {
		if domain.IsReserved(meta.Name) {
			continue
		}
		s.catalog.put(meta)
		if !meta.Abstract {
			s.createTable(meta, nil)
		}
	}
	for name, rows := range snapshot.Rows {
		t, ok := s.state.tables[name]
		if !ok {
			continue
		}
		meta := s.catalog.entities[name]
		idAttr, ok := meta.IDAttributeMeta()
		if !ok {
			continue
		}
		for _, raw := range rows {
			row, err := s.normalize(meta, raw)
			if err != nil {
				return fmt.Errorf("restore %s: %w", name, err)
			}
			key, err := domain.EncodeKey(row[idAttr.Name])
			if err != nil {
				return fmt.Errorf("restore %s: %w", name, err)
			}
			t.put(key, row)
		}
		if idx, ok := s.indexes[name]; ok {
			idx.rebuild(t)
		}
	}
	s.syncCatalogTables(nil)
	return nil
}

func (s *Store) normalize(meta domain.EntityMetaData, raw domain.Entity) (domain.Entity, error) {
	out := make(domain.Entity, len(meta.Attributes))
	for _, a := range meta.Attributes {
		refID := domain.FieldString
		if a.DataType.IsReference() {
			if target, ok := s.catalog.entities[a.RefEntity]; ok {
				if id, ok := target.IDAttributeMeta(); ok {
					refID = id.DataType
				}
			}
		}
		v, err := a.DataType.ConvertRef(raw[a.Name], refID)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		out[a.Name] = v
	}
	return out, nil
}
