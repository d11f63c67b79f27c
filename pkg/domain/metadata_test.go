package domain

import (
	"strings"
	"testing"
)

func personMeta() EntityMetaData {
	return EntityMetaData{
		Name:        "org_person",
		SimpleName:  "person",
		Package:     "org",
		IDAttribute: "id",
		Attributes: []AttributeMetaData{
			{Name: "id", DataType: FieldString},
			{Name: "name", DataType: FieldString, Nillable: true},
			{Name: "parent", DataType: FieldXref, RefEntity: "org_person", Nillable: true},
			{Name: "friends", DataType: FieldMref, RefEntity: "org_person", Nillable: true},
			{Name: "city", DataType: FieldXref, RefEntity: "org_city", Nillable: true},
		},
	}
}

func TestEntityMetaDataValidate(t *testing.T) {
	if err := personMeta().Validate(); err != nil {
		t.Fatalf("expected valid metadata: %v", err)
	}

	missingID := personMeta()
	missingID.IDAttribute = "nope"
	if err := missingID.Validate(); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing id error, got %v", err)
	}

	badID := personMeta()
	badID.IDAttribute = "parent"
	if err := badID.Validate(); err == nil || !strings.Contains(err.Error(), "cannot be an id") {
		t.Fatalf("expected id type error, got %v", err)
	}

	abstract := EntityMetaData{Name: "base", Abstract: true}
	if err := abstract.Validate(); err != nil {
		t.Fatalf("abstract entity needs no id: %v", err)
	}

	dup := personMeta()
	dup.Attributes = append(dup.Attributes, AttributeMetaData{Name: "name", DataType: FieldString})
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate attribute error")
	}
}

func TestEntityMetaDataSelfReferences(t *testing.T) {
	refs := personMeta().SelfReferences()
	if len(refs) != 2 || refs[0].Name != "parent" || refs[1].Name != "friends" {
		t.Fatalf("unexpected self references %+v", refs)
	}
}

func TestEntityMetaDataCloneIsDeep(t *testing.T) {
	meta := personMeta()
	meta.Attributes[1].EnumOptions = []string{"a"}
	cp := meta.Clone()
	cp.Attributes[0].Name = "changed"
	cp.Attributes[1].EnumOptions[0] = "b"
	if meta.Attributes[0].Name != "id" || meta.Attributes[1].EnumOptions[0] != "a" {
		t.Fatalf("clone shares state with original")
	}
}

func TestReservedEntities(t *testing.T) {
	for _, name := range []string{"tags", "packages", "entities", "attributes"} {
		if !IsReserved(name) {
			t.Fatalf("%s should be reserved", name)
		}
	}
	if IsReserved("person") {
		t.Fatalf("person is not reserved")
	}
	for _, meta := range []EntityMetaData{TagMetaData(), PackageMetaData(), EntitiesMetaData(), AttributesMetaData()} {
		if err := meta.Validate(); err != nil {
			t.Fatalf("catalog metadata %s invalid: %v", meta.Name, err)
		}
	}
}

func TestQualifiedNames(t *testing.T) {
	if got := QualifiedName("org", "person"); got != "org_person" {
		t.Fatalf("unexpected qualified name %s", got)
	}
	if got := QualifiedName("", "person"); got != "person" {
		t.Fatalf("unexpected qualified name %s", got)
	}
	if got := SimpleNameOf("org_person", "org"); got != "person" {
		t.Fatalf("unexpected simple name %s", got)
	}
}
