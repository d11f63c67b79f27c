package domain

import (
	"fmt"
	"strings"
)

// Reserved entity names. They describe the catalog itself and are never
// treated as user data by the importer.
const (
	EntityTags       = "tags"
	EntityPackages   = "packages"
	EntityEntities   = "entities"
	EntityAttributes = "attributes"
)

// ReservedEntities lists the reserved names in a fixed order.
var ReservedEntities = []string{EntityTags, EntityPackages, EntityEntities, EntityAttributes}

// IsReserved reports whether name is one of the reserved catalog entities.
func IsReserved(name string) bool {
	for _, r := range ReservedEntities {
		if r == name {
			return true
		}
	}
	return false
}

// PackageSeparator joins package and simple names into a fully qualified name.
const PackageSeparator = "_"

// LabeledResource is an IRI with a human readable label.
type LabeledResource struct {
	IRI   string `json:"iri" yaml:"iri"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// SemanticTag binds a relation/object pair from a code system to a subject.
type SemanticTag struct {
	Relation   LabeledResource `json:"relation" yaml:"relation"`
	Object     LabeledResource `json:"object" yaml:"object"`
	CodeSystem string          `json:"codeSystem,omitempty" yaml:"codeSystem,omitempty"`
}

// Same reports whether two tags assert the same relation to the same object.
func (t SemanticTag) Same(o SemanticTag) bool {
	return t.Relation.IRI == o.Relation.IRI && t.Object.IRI == o.Object.IRI
}

// AttributeMetaData describes one column of an entity.
type AttributeMetaData struct {
	Name        string        `json:"name" yaml:"name"`
	Label       string        `json:"label,omitempty" yaml:"label,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	DataType    FieldType     `json:"dataType" yaml:"dataType"`
	RefEntity   string        `json:"refEntity,omitempty" yaml:"refEntity,omitempty"`
	Nillable    bool          `json:"nillable" yaml:"nillable"`
	Auto        bool          `json:"auto,omitempty" yaml:"auto,omitempty"`
	Unique      bool          `json:"unique,omitempty" yaml:"unique,omitempty"`
	EnumOptions []string      `json:"enumOptions,omitempty" yaml:"enumOptions,omitempty"`
	Tags        []SemanticTag `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Clone returns a deep copy.
func (a AttributeMetaData) Clone() AttributeMetaData {
	cp := a
	cp.EnumOptions = append([]string(nil), a.EnumOptions...)
	cp.Tags = append([]SemanticTag(nil), a.Tags...)
	return cp
}

// EntityMetaData describes an entity type: its names, identifier and attributes.
type EntityMetaData struct {
	Name        string              `json:"name" yaml:"name"`
	SimpleName  string              `json:"simpleName" yaml:"simpleName"`
	Package     string              `json:"package,omitempty" yaml:"package,omitempty"`
	Label       string              `json:"label,omitempty" yaml:"label,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Abstract    bool                `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Extends     string              `json:"extends,omitempty" yaml:"extends,omitempty"`
	IDAttribute string              `json:"idAttribute,omitempty" yaml:"idAttribute,omitempty"`
	Attributes  []AttributeMetaData `json:"attributes" yaml:"attributes"`
	Tags        []SemanticTag       `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Clone returns a deep copy.
func (m EntityMetaData) Clone() EntityMetaData {
	cp := m
	cp.Attributes = make([]AttributeMetaData, len(m.Attributes))
	for i, a := range m.Attributes {
		cp.Attributes[i] = a.Clone()
	}
	cp.Tags = append([]SemanticTag(nil), m.Tags...)
	return cp
}

// Attribute looks up an attribute by name.
func (m EntityMetaData) Attribute(name string) (AttributeMetaData, bool) {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeMetaData{}, false
}

// IDAttributeMeta returns the identifier attribute.
func (m EntityMetaData) IDAttributeMeta() (AttributeMetaData, bool) {
	if m.IDAttribute == "" {
		return AttributeMetaData{}, false
	}
	return m.Attribute(m.IDAttribute)
}

// SelfReferences returns the attributes whose referent is this same entity.
func (m EntityMetaData) SelfReferences() []AttributeMetaData {
	var out []AttributeMetaData
	for _, a := range m.Attributes {
		if a.DataType.IsReference() && a.RefEntity == m.Name {
			out = append(out, a)
		}
	}
	return out
}

// Validate enforces the metadata invariants: a concrete entity has an id
// attribute whose type is a permitted scalar id type.
func (m EntityMetaData) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("entity name required")
	}
	seen := make(map[string]struct{}, len(m.Attributes))
	for _, a := range m.Attributes {
		if a.Name == "" {
			return fmt.Errorf("entity %s: attribute without name", m.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("entity %s: duplicate attribute %s", m.Name, a.Name)
		}
		seen[a.Name] = struct{}{}
		if !a.DataType.Valid() {
			return fmt.Errorf("entity %s: attribute %s has unknown type %q", m.Name, a.Name, a.DataType)
		}
		if a.DataType.IsReference() && a.RefEntity == "" {
			return fmt.Errorf("entity %s: reference attribute %s has no refEntity", m.Name, a.Name)
		}
	}
	if m.Abstract {
		return nil
	}
	id, ok := m.IDAttributeMeta()
	if !ok {
		return fmt.Errorf("entity %s: id attribute %q not found", m.Name, m.IDAttribute)
	}
	if !id.DataType.AllowedAsID() {
		return fmt.Errorf("entity %s: id attribute %s has type %s which cannot be an id", m.Name, id.Name, id.DataType)
	}
	return nil
}

// Package groups entities under a qualified namespace.
type Package struct {
	Name        string        `json:"name" yaml:"name"`
	SimpleName  string        `json:"simpleName,omitempty" yaml:"simpleName,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Parent      string        `json:"parent,omitempty" yaml:"parent,omitempty"`
	Tags        []SemanticTag `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// EntityTag asserts a semantic tag on an entity.
type EntityTag struct {
	Entity string      `json:"entity" yaml:"entity"`
	Tag    SemanticTag `json:"tag" yaml:"tag"`
}

// AttributeTag asserts a semantic tag on one attribute of an entity.
type AttributeTag struct {
	Entity    string      `json:"entity" yaml:"entity"`
	Attribute string      `json:"attribute" yaml:"attribute"`
	Tag       SemanticTag `json:"tag" yaml:"tag"`
}

// ParsedMetaData is what the upstream parser produces from the metadata sheets.
// Entities are dependency ordered; Packages keep declaration order and may
// contain nil entries, which are skipped.
type ParsedMetaData struct {
	Entities      []EntityMetaData          `json:"entities" yaml:"entities"`
	Packages      []*Package                `json:"packages,omitempty" yaml:"packages,omitempty"`
	EntityTags    []EntityTag               `json:"entityTags,omitempty" yaml:"entityTags,omitempty"`
	AttributeTags map[string][]AttributeTag `json:"attributeTags,omitempty" yaml:"attributeTags,omitempty"`
}

// Entity looks up parsed metadata by fully qualified name.
func (p ParsedMetaData) Entity(name string) (EntityMetaData, bool) {
	for _, e := range p.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return EntityMetaData{}, false
}

// Attribute names of the tags sheet.
const (
	TagIdentifier    = "identifier"
	TagObjectIRI     = "objectIRI"
	TagLabel         = "label"
	TagRelationIRI   = "relationIRI"
	TagRelationLabel = "relationLabel"
	TagCodeSystem    = "codeSystem"
)

// TagMetaData describes the reserved tags entity.
func TagMetaData() EntityMetaData {
	return EntityMetaData{
		Name:        EntityTags,
		SimpleName:  EntityTags,
		IDAttribute: TagIdentifier,
		Attributes: []AttributeMetaData{
			{Name: TagIdentifier, DataType: FieldString},
			{Name: TagObjectIRI, DataType: FieldHyperlink, Nillable: true},
			{Name: TagLabel, DataType: FieldString},
			{Name: TagRelationIRI, DataType: FieldHyperlink, Nillable: true},
			{Name: TagRelationLabel, DataType: FieldString, Nillable: true},
			{Name: TagCodeSystem, DataType: FieldString, Nillable: true},
		},
	}
}

// PackageMetaData describes the reserved packages entity.
func PackageMetaData() EntityMetaData {
	return EntityMetaData{
		Name:        EntityPackages,
		SimpleName:  EntityPackages,
		IDAttribute: "name",
		Attributes: []AttributeMetaData{
			{Name: "name", DataType: FieldString},
			{Name: "simpleName", DataType: FieldString, Nillable: true},
			{Name: "description", DataType: FieldText, Nillable: true},
			{Name: "parent", DataType: FieldXref, RefEntity: EntityPackages, Nillable: true},
		},
	}
}

// EntitiesMetaData describes the reserved entities entity.
func EntitiesMetaData() EntityMetaData {
	return EntityMetaData{
		Name:        EntityEntities,
		SimpleName:  EntityEntities,
		IDAttribute: "fullName",
		Attributes: []AttributeMetaData{
			{Name: "fullName", DataType: FieldString},
			{Name: "simpleName", DataType: FieldString},
			{Name: "package", DataType: FieldXref, RefEntity: EntityPackages, Nillable: true},
			{Name: "idAttribute", DataType: FieldString, Nillable: true},
			{Name: "abstract", DataType: FieldBool},
			{Name: "extends", DataType: FieldXref, RefEntity: EntityEntities, Nillable: true},
			{Name: "label", DataType: FieldString, Nillable: true},
			{Name: "description", DataType: FieldText, Nillable: true},
		},
	}
}

// AttributesMetaData describes the reserved attributes entity.
func AttributesMetaData() EntityMetaData {
	return EntityMetaData{
		Name:        EntityAttributes,
		SimpleName:  EntityAttributes,
		IDAttribute: "identifier",
		Attributes: []AttributeMetaData{
			{Name: "identifier", DataType: FieldString},
			{Name: "entity", DataType: FieldXref, RefEntity: EntityEntities},
			{Name: "name", DataType: FieldString},
			{Name: "dataType", DataType: FieldEnum},
			{Name: "refEntity", DataType: FieldXref, RefEntity: EntityEntities, Nillable: true},
			{Name: "nillable", DataType: FieldBool},
			{Name: "label", DataType: FieldString, Nillable: true},
			{Name: "description", DataType: FieldText, Nillable: true},
		},
	}
}

// AttributeIdentifier is the id of an attribute row in the attributes entity.
func AttributeIdentifier(entity, attribute string) string {
	return entity + "." + attribute
}
