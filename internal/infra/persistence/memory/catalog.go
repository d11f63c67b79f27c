package memory

import (
	"context"
	"fmt"

	"emxloader/pkg/domain"
)

type catalog struct {
	entities map[string]domain.EntityMetaData
	order    []string
	packages map[string]domain.Package
	pkgOrder []string
}

func newCatalog() *catalog {
	return &catalog{
		entities: make(map[string]domain.EntityMetaData),
		packages: make(map[string]domain.Package),
	}
}

func (c *catalog) get(name string) (domain.EntityMetaData, bool) {
	m, ok := c.entities[name]
	if !ok {
		return domain.EntityMetaData{}, false
	}
	return m.Clone(), true
}

func (c *catalog) put(meta domain.EntityMetaData) {
	if _, ok := c.entities[meta.Name]; !ok {
		c.order = append(c.order, meta.Name)
	}
	c.entities[meta.Name] = meta.Clone()
}

func (c *catalog) remove(name string) {
	delete(c.entities, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *catalog) putPackage(pkg domain.Package) {
	if _, ok := c.packages[pkg.Name]; !ok {
		c.pkgOrder = append(c.pkgOrder, pkg.Name)
	}
	c.packages[pkg.Name] = pkg
}

func (c *catalog) concreteNames() []string {
	out := make([]string, 0, len(c.order))
	for _, name := range c.order {
		if !c.entities[name].Abstract {
			out = append(out, name)
		}
	}
	return out
}

func (c *catalog) all() []domain.EntityMetaData {
	out := make([]domain.EntityMetaData, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entities[name].Clone())
	}
	return out
}

func (c *catalog) allPackages() []domain.Package {
	out := make([]domain.Package, 0, len(c.pkgOrder))
	for _, name := range c.pkgOrder {
		out = append(out, c.packages[name])
	}
	return out
}

// syncCatalogTables rewrites the packages, entities and attributes tables
// from the catalog in the committed state and in tx.
func (s *Store) syncCatalogTables(tx *transaction) {
	var pkgRows, entityRows, attrRows []domain.Entity
	for _, p := range s.catalog.allPackages() {
		pkgRows = append(pkgRows, domain.Entity{
			"name": p.Name, "simpleName": p.SimpleName, "description": p.Description, "parent": nilIfEmpty(p.Parent),
		})
	}
	for _, m := range s.catalog.all() {
		if domain.IsReserved(m.Name) {
			continue
		}
		entityRows = append(entityRows, domain.Entity{
			"fullName": m.Name, "simpleName": m.SimpleName, "package": nilIfEmpty(m.Package),
			"idAttribute": m.IDAttribute, "abstract": m.Abstract, "extends": nilIfEmpty(m.Extends),
			"label": m.Label, "description": m.Description,
		})
		for _, a := range m.Attributes {
			attrRows = append(attrRows, domain.Entity{
				"identifier": domain.AttributeIdentifier(m.Name, a.Name), "entity": m.Name, "name": a.Name,
				"dataType": string(a.DataType), "refEntity": nilIfEmpty(a.RefEntity), "nillable": a.Nillable,
				"label": a.Label, "description": a.Description,
			})
		}
	}
	for _, st := range s.states(tx) {
		st.replace(domain.EntityPackages, pkgRows, "name")
		st.replace(domain.EntityEntities, entityRows, "fullName")
		st.replace(domain.EntityAttributes, attrRows, "identifier")
	}
	for _, name := range []string{domain.EntityPackages, domain.EntityEntities, domain.EntityAttributes} {
		if idx, ok := s.indexes[name]; ok {
			idx.rebuild(s.state.tables[name])
		}
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type metaRegistry struct {
	tx *transaction
}

func (m metaRegistry) EntityMetaData(name string) (domain.EntityMetaData, bool) {
	return m.tx.store.catalog.get(name)
}

func (m metaRegistry) AddEntityMeta(_ context.Context, meta domain.EntityMetaData) (domain.Repository, error) {
	s := m.tx.store
	if _, exists := s.catalog.entities[meta.Name]; exists {
		return nil, fmt.Errorf("entity %s already exists", meta.Name)
	}
	meta = meta.Clone()
	if meta.Extends != "" {
		parent, ok := s.catalog.entities[meta.Extends]
		if !ok {
			return nil, domain.ErrNotFound{Entity: "entity", ID: meta.Extends}
		}
		meta = inherit(parent, meta)
	}
	if meta.SimpleName == "" {
		meta.SimpleName = domain.SimpleNameOf(meta.Name, meta.Package)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if meta.Package != "" {
		if _, ok := s.catalog.packages[meta.Package]; !ok {
			s.catalog.putPackage(domain.Package{Name: meta.Package, SimpleName: meta.Package})
		}
	}
	s.catalog.put(meta)
	if !meta.Abstract {
		s.createTable(meta, m.tx)
	}
	s.syncCatalogTables(m.tx)
	s.log.WithField("entity", meta.Name).Debug("entity created")
	if meta.Abstract {
		return nil, nil
	}
	return &repository{tx: m.tx, name: meta.Name}, nil
}

// inherit prepends the parent's attributes the child does not redeclare.
func inherit(parent, child domain.EntityMetaData) domain.EntityMetaData {
	attrs := make([]domain.AttributeMetaData, 0, len(parent.Attributes)+len(child.Attributes))
	for _, a := range parent.Attributes {
		if _, redeclared := child.Attribute(a.Name); !redeclared {
			attrs = append(attrs, a.Clone())
		}
	}
	child.Attributes = append(attrs, child.Attributes...)
	if child.IDAttribute == "" {
		child.IDAttribute = parent.IDAttribute
	}
	return child
}

func (m metaRegistry) UpdateEntityMeta(_ context.Context, meta domain.EntityMetaData) ([]domain.AttributeMetaData, error) {
	s := m.tx.store
	existing, ok := s.catalog.entities[meta.Name]
	if !ok {
		return nil, domain.ErrNotFound{Entity: "entity", ID: meta.Name}
	}
	existing = existing.Clone()
	var added []domain.AttributeMetaData
	for _, a := range meta.Attributes {
		current, found := existing.Attribute(a.Name)
		if found {
			if current.DataType != a.DataType {
				return nil, fmt.Errorf("entity %s: attribute %s cannot change type from %s to %s", meta.Name, a.Name, current.DataType, a.DataType)
			}
			continue
		}
		existing.Attributes = append(existing.Attributes, a.Clone())
		added = append(added, a.Clone())
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := existing.Validate(); err != nil {
		return nil, err
	}
	s.catalog.put(existing)
	s.syncCatalogTables(m.tx)
	return added, nil
}

func (m metaRegistry) DeleteEntityMeta(_ context.Context, name string) error {
	s := m.tx.store
	if _, ok := s.catalog.entities[name]; !ok {
		return domain.ErrNotFound{Entity: "entity", ID: name}
	}
	if domain.IsReserved(name) {
		return fmt.Errorf("entity %s is reserved", name)
	}
	s.catalog.remove(name)
	s.dropTable(name, m.tx)
	s.syncCatalogTables(m.tx)
	s.log.WithField("entity", name).Debug("entity dropped")
	return nil
}

func (m metaRegistry) DeleteAttribute(_ context.Context, entity, attribute string) error {
	s := m.tx.store
	meta, ok := s.catalog.entities[entity]
	if !ok {
		return domain.ErrNotFound{Entity: "entity", ID: entity}
	}
	if meta.IDAttribute == attribute {
		return fmt.Errorf("entity %s: cannot drop id attribute %s", entity, attribute)
	}
	meta = meta.Clone()
	kept := meta.Attributes[:0]
	found := false
	for _, a := range meta.Attributes {
		if a.Name == attribute {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return domain.ErrNotFound{Entity: "attribute", ID: domain.AttributeIdentifier(entity, attribute)}
	}
	meta.Attributes = kept
	s.catalog.put(meta)
	for _, st := range s.states(m.tx) {
		if t, ok := st.tables[entity]; ok {
			t.dropColumn(attribute)
		}
	}
	s.syncCatalogTables(m.tx)
	return nil
}

func (m metaRegistry) AddPackage(_ context.Context, pkg domain.Package) error {
	if pkg.Name == "" {
		return fmt.Errorf("package name required")
	}
	if pkg.SimpleName == "" {
		pkg.SimpleName = domain.SimpleNameOf(pkg.Name, pkg.Parent)
	}
	m.tx.store.catalog.putPackage(pkg)
	m.tx.store.syncCatalogTables(m.tx)
	return nil
}

type tagService struct {
	tx *transaction
}

func (t tagService) AddEntityTag(_ context.Context, tag domain.EntityTag) error {
	c := t.tx.store.catalog
	meta, ok := c.entities[tag.Entity]
	if !ok {
		return domain.ErrNotFound{Entity: "entity", ID: tag.Entity}
	}
	for _, existing := range meta.Tags {
		if existing.Same(tag.Tag) {
			return nil
		}
	}
	meta = meta.Clone()
	meta.Tags = append(meta.Tags, tag.Tag)
	c.put(meta)
	return nil
}

func (t tagService) AddAttributeTag(_ context.Context, tag domain.AttributeTag) error {
	c := t.tx.store.catalog
	meta, ok := c.entities[tag.Entity]
	if !ok {
		return domain.ErrNotFound{Entity: "entity", ID: tag.Entity}
	}
	meta = meta.Clone()
	for i := range meta.Attributes {
		if meta.Attributes[i].Name != tag.Attribute {
			continue
		}
		for _, existing := range meta.Attributes[i].Tags {
			if existing.Same(tag.Tag) {
				return nil
			}
		}
		meta.Attributes[i].Tags = append(meta.Attributes[i].Tags, tag.Tag)
		c.put(meta)
		return nil
	}
	return domain.ErrNotFound{Entity: "attribute", ID: domain.AttributeIdentifier(tag.Entity, tag.Attribute)}
}
