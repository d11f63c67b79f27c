package memory

import (
	"context"
	"errors"
	"testing"

	"emxloader/pkg/domain"
)

func personMeta() domain.EntityMetaData {
	return domain.EntityMetaData{
		Name:        "person",
		SimpleName:  "person",
		IDAttribute: "id",
		Attributes: []domain.AttributeMetaData{
			{Name: "id", DataType: domain.FieldInt},
			{Name: "name", DataType: domain.FieldString, Nillable: true},
		},
	}
}

func mustTx(t *testing.T, s *Store, fn func(ds domain.DataService) error) {
	t.Helper()
	if err := s.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestStoreStartsWithReservedEntities(t *testing.T) {
	s := NewStore()
	names := s.EntityNames()
	if len(names) != 4 {
		t.Fatalf("expected 4 reserved entities, got %v", names)
	}
	for _, name := range domain.ReservedEntities {
		if _, ok := s.EntityMetaData(name); !ok {
			t.Fatalf("missing reserved entity %s", name)
		}
	}
}

func TestRowWritesAreTransactional(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	mustTx(t, s, func(ds domain.DataService) error {
		_, err := ds.Meta().AddEntityMeta(ctx, personMeta())
		return err
	})
	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ds domain.DataService) error {
		repo, _ := ds.Repository("person")
		if _, err := repo.Add(ctx, domain.Rows([]domain.Entity{{"id": int64(1), "name": "a"}})); err != nil {
			return err
		}
		n, _ := repo.Count(ctx)
		if n != 1 {
			t.Fatalf("expected row visible inside transaction, got %d", n)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := s.Count("person"); got != 0 {
		t.Fatalf("aborted rows must not be committed, got %d", got)
	}
	if s.IndexEntries("person") == 0 {
		t.Fatalf("expected ghost index entries after abort")
	}
	mustTx(t, s, func(ds domain.DataService) error {
		repo, _ := ds.Repository("person")
		found := 0
		for range repo.FindAll(ctx, domain.NewQuery().Eq("id", int64(1))) {
			found++
		}
		if found != 0 {
			t.Fatalf("ghost index entries must not surface as rows")
		}
		return repo.(domain.IndexedRepository).RebuildIndex(ctx)
	})
	if got := s.IndexEntries("person"); got != 0 {
		t.Fatalf("rebuild should drop ghosts, %d entries left", got)
	}
}

func TestSchemaChangesSurviveAbort(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.RunInTransaction(ctx, func(ds domain.DataService) error {
		if _, err := ds.Meta().AddEntityMeta(ctx, personMeta()); err != nil {
			t.Fatalf("add entity: %v", err)
		}
		return errors.New("abort")
	})
	if _, ok := s.EntityMetaData("person"); !ok {
		t.Fatalf("entity creation is not rolled back by the transaction")
	}
	mustTx(t, s, func(ds domain.DataService) error {
		if !ds.HasRepository("person") {
			t.Fatalf("expected committed table for person")
		}
		entities, _ := ds.Repository(domain.EntityEntities)
		if _, ok, _ := entities.FindOne(ctx, "person"); !ok {
			t.Fatalf("entities catalog should list person")
		}
		return ds.Meta().DeleteEntityMeta(ctx, "person")
	})
	if _, ok := s.EntityMetaData("person"); ok {
		t.Fatalf("expected person dropped")
	}
}

func TestAddAndUpdateSemantics(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	mustTx(t, s, func(ds domain.DataService) error {
		repo, err := ds.Meta().AddEntityMeta(ctx, personMeta())
		if err != nil {
			return err
		}
		if _, err := repo.Add(ctx, domain.Rows([]domain.Entity{{"id": int64(1), "name": "a"}})); err != nil {
			return err
		}
		if _, err := repo.Add(ctx, domain.Rows([]domain.Entity{{"id": int64(1)}})); !domain.IsKind(err, domain.KindDuplicateID) {
			t.Fatalf("expected duplicate id, got %v", err)
		}
		if _, err := repo.Update(ctx, domain.Rows([]domain.Entity{{"id": int64(2)}})); !domain.IsKind(err, domain.KindMissingID) {
			t.Fatalf("expected missing id, got %v", err)
		}
		if _, err := repo.Update(ctx, domain.Rows([]domain.Entity{{"id": int64(1), "name": "b"}})); err != nil {
			return err
		}
		row, ok, err := repo.FindOne(ctx, "1")
		if err != nil || !ok {
			t.Fatalf("find one by raw id: %v %v", ok, err)
		}
		if row["name"] != "b" {
			t.Fatalf("expected updated row, got %v", row)
		}
		return nil
	})
}

func TestAutoIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	meta := domain.EntityMetaData{
		Name: "note", IDAttribute: "id",
		Attributes: []domain.AttributeMetaData{{Name: "id", DataType: domain.FieldString, Auto: true}, {Name: "text", DataType: domain.FieldText}},
	}
	mustTx(t, s, func(ds domain.DataService) error {
		repo, err := ds.Meta().AddEntityMeta(ctx, meta)
		if err != nil {
			return err
		}
		n, err := repo.Add(ctx, domain.Rows([]domain.Entity{{"text": "x"}, {"text": "y"}}))
		if err != nil || n != 2 {
			t.Fatalf("add: %d %v", n, err)
		}
		return nil
	})
	if s.Count("note") != 2 {
		t.Fatalf("expected generated ids for both rows")
	}
}

func TestUpdateEntityMetaAndDeleteAttribute(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	mustTx(t, s, func(ds domain.DataService) error {
		if _, err := ds.Meta().AddEntityMeta(ctx, personMeta()); err != nil {
			return err
		}
		extended := personMeta()
		extended.Attributes = append(extended.Attributes, domain.AttributeMetaData{Name: "age", DataType: domain.FieldInt, Nillable: true})
		added, err := ds.Meta().UpdateEntityMeta(ctx, extended)
		if err != nil {
			return err
		}
		if len(added) != 1 || added[0].Name != "age" {
			t.Fatalf("expected age added, got %+v", added)
		}
		again, err := ds.Meta().UpdateEntityMeta(ctx, extended)
		if err != nil || len(again) != 0 {
			t.Fatalf("second update should add nothing: %+v %v", again, err)
		}
		retyped := personMeta()
		retyped.Attributes[1].DataType = domain.FieldInt
		if _, err := ds.Meta().UpdateEntityMeta(ctx, retyped); err == nil {
			t.Fatalf("expected type change to be rejected")
		}
		if err := ds.Meta().DeleteAttribute(ctx, "person", "id"); err == nil {
			t.Fatalf("id attribute cannot be dropped")
		}
		return ds.Meta().DeleteAttribute(ctx, "person", "age")
	})
	meta, _ := s.EntityMetaData("person")
	if _, ok := meta.Attribute("age"); ok {
		t.Fatalf("age should be gone")
	}
}

func TestAbstractEntitiesAndInheritance(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	mustTx(t, s, func(ds domain.DataService) error {
		base := domain.EntityMetaData{Name: "base", Abstract: true, IDAttribute: "id",
			Attributes: []domain.AttributeMetaData{{Name: "id", DataType: domain.FieldString}}}
		repo, err := ds.Meta().AddEntityMeta(ctx, base)
		if err != nil || repo != nil {
			t.Fatalf("abstract entity yields no repository: %v %v", repo, err)
		}
		child := domain.EntityMetaData{Name: "child", Extends: "base",
			Attributes: []domain.AttributeMetaData{{Name: "extra", DataType: domain.FieldString, Nillable: true}}}
		repo, err = ds.Meta().AddEntityMeta(ctx, child)
		if err != nil || repo == nil {
			t.Fatalf("child: %v", err)
		}
		meta := repo.EntityMetaData()
		if meta.IDAttribute != "id" || len(meta.Attributes) != 2 {
			t.Fatalf("child should inherit id: %+v", meta)
		}
		return nil
	})
	for _, n := range s.EntityNames() {
		if n == "base" {
			t.Fatalf("abstract entities have no repository")
		}
	}
}

func TestTagBindingIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tag := domain.SemanticTag{Relation: domain.LabeledResource{IRI: "http://rel"}, Object: domain.LabeledResource{IRI: "http://obj"}}
	mustTx(t, s, func(ds domain.DataService) error {
		if _, err := ds.Meta().AddEntityMeta(ctx, personMeta()); err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			if err := ds.Tags().AddEntityTag(ctx, domain.EntityTag{Entity: "person", Tag: tag}); err != nil {
				return err
			}
			if err := ds.Tags().AddAttributeTag(ctx, domain.AttributeTag{Entity: "person", Attribute: "name", Tag: tag}); err != nil {
				return err
			}
		}
		if err := ds.Tags().AddAttributeTag(ctx, domain.AttributeTag{Entity: "person", Attribute: "nope", Tag: tag}); err == nil {
			t.Fatalf("expected unknown attribute error")
		}
		return nil
	})
	meta, _ := s.EntityMetaData("person")
	name, _ := meta.Attribute("name")
	if len(meta.Tags) != 1 || len(name.Tags) != 1 {
		t.Fatalf("expected one tag each, got %d and %d", len(meta.Tags), len(name.Tags))
	}
}

func TestSnapshotRoundTripRestoresCanonicalValues(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	mustTx(t, s, func(ds domain.DataService) error {
		if err := ds.Meta().AddPackage(ctx, domain.Package{Name: "org"}); err != nil {
			return err
		}
		repo, err := ds.Meta().AddEntityMeta(ctx, personMeta())
		if err != nil {
			return err
		}
		_, err = repo.Add(ctx, domain.Rows([]domain.Entity{{"id": int64(7), "name": "x"}}))
		return err
	})
	snap := s.ExportState()
	// simulate a JSON round trip that widens integers
	snap.Rows["person"][0]["id"] = float64(7)

	restored := NewStore()
	if err := restored.ImportState(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	mustTx(t, restored, func(ds domain.DataService) error {
		repo, _ := ds.Repository("person")
		row, ok, err := repo.FindOne(ctx, int64(7))
		if err != nil || !ok {
			t.Fatalf("restored row missing: %v", err)
		}
		if row["id"] != int64(7) {
			t.Fatalf("expected canonical int64 id, got %#v", row["id"])
		}
		pkgs, _ := ds.Repository(domain.EntityPackages)
		if n, _ := pkgs.Count(ctx); n != 1 {
			t.Fatalf("expected restored package row, got %d", n)
		}
		return nil
	})
}
