package memory

import (
	"context"
	"fmt"
	"slices"

	"emxloader/pkg/domain"

	"github.com/google/uuid"
)

type repository struct {
	tx   *transaction
	name string
}

func (r *repository) Name() string { return r.name }

func (r *repository) EntityMetaData() domain.EntityMetaData {
	meta, _ := r.tx.store.catalog.get(r.name)
	return meta
}

func (r *repository) table() (*table, error) {
	t, ok := r.tx.state.tables[r.name]
	if !ok {
		return nil, domain.ErrNotFound{Entity: "repository", ID: r.name}
	}
	return t, nil
}

func (r *repository) Count(context.Context) (int64, error) {
	t, err := r.table()
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

// Add inserts rows. Rows without an id get a generated one when the id
// attribute is auto; an id that already exists is rejected.
func (r *repository) Add(ctx context.Context, rows domain.RowStream) (int, error) {
	return r.write(ctx, rows, true)
}

// Update replaces rows by id; every id must exist.
func (r *repository) Update(ctx context.Context, rows domain.RowStream) (int, error) {
	return r.write(ctx, rows, false)
}

func (r *repository) write(_ context.Context, rows domain.RowStream, insert bool) (int, error) {
	t, err := r.table()
	if err != nil {
		return 0, err
	}
	meta := r.EntityMetaData()
	idAttr, ok := meta.IDAttributeMeta()
	if !ok {
		return 0, fmt.Errorf("entity %s has no id attribute", r.name)
	}
	idx := r.tx.store.indexes[r.name]
	n := 0
	for row, err := range rows {
		if err != nil {
			return n, err
		}
		stored := make(domain.Entity, len(meta.Attributes))
		for _, a := range meta.Attributes {
			stored[a.Name] = row[a.Name]
		}
		stored = stored.Clone()
		id := stored[idAttr.Name]
		if id == nil && insert && idAttr.Auto {
			id = uuid.NewString()
			stored[idAttr.Name] = id
		}
		if id == nil {
			return n, &domain.ImportError{Kind: domain.KindInvalidValue, Entity: r.name, Message: "row without id " + idAttr.Name}
		}
		key, err := domain.EncodeKey(id)
		if err != nil {
			return n, &domain.ImportError{Kind: domain.KindInvalidValue, Entity: r.name, Message: "id " + idAttr.Name, Err: err}
		}
		_, exists := t.rows[key]
		switch {
		case insert && exists:
			return n, &domain.ImportError{Kind: domain.KindDuplicateID, Entity: r.name, IDs: []string{domain.FormatValue(id)},
				Message: fmt.Sprintf("duplicate %s id %s", r.name, domain.FormatValue(id))}
		case !insert && !exists:
			return n, &domain.ImportError{Kind: domain.KindMissingID, Entity: r.name, IDs: []string{domain.FormatValue(id)},
				Message: fmt.Sprintf("unknown %s id %s", r.name, domain.FormatValue(id))}
		}
		t.put(key, stored)
		if idx != nil {
			idx.add(key, stored)
		}
		n++
	}
	return n, nil
}

// FindAll streams matching rows. With an index the candidates come from the
// index and are verified against the rows; otherwise the table is scanned.
func (r *repository) FindAll(_ context.Context, q *domain.Query) domain.RowStream {
	return func(yield func(domain.Entity, error) bool) {
		t, err := r.table()
		if err != nil {
			yield(nil, err)
			return
		}
		idx := r.tx.store.indexes[r.name]
		if q.Empty() || idx == nil {
			for _, row := range t.ordered() {
				if q.Matches(row) && !yield(row.Clone(), nil) {
					return
				}
			}
			return
		}
		seen := make(map[string]struct{})
		var keys []string
		for _, p := range q.Predicates() {
			for _, k := range idx.lookup(p.Field, p.Value) {
				if _, dup := seen[k]; !dup {
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			row, ok := t.rows[k]
			if !ok || !q.Matches(row) {
				continue
			}
			if !yield(row.Clone(), nil) {
				return
			}
		}
	}
}

func (r *repository) FindOne(_ context.Context, id any) (domain.Entity, bool, error) {
	t, err := r.table()
	if err != nil {
		return nil, false, err
	}
	if id == nil {
		return nil, false, nil
	}
	meta := r.EntityMetaData()
	if idAttr, ok := meta.IDAttributeMeta(); ok {
		if converted, err := idAttr.DataType.Convert(id); err == nil && converted != nil {
			id = converted
		}
	}
	key, err := domain.EncodeKey(id)
	if err != nil {
		return nil, false, err
	}
	row, ok := t.rows[key]
	if !ok {
		return nil, false, nil
	}
	return row.Clone(), true, nil
}

// RebuildIndex recomputes the index from the rows visible to the transaction.
func (r *repository) RebuildIndex(context.Context) error {
	t, err := r.table()
	if err != nil {
		return err
	}
	idx, ok := r.tx.store.indexes[r.name]
	if !ok {
		return nil
	}
	idx.rebuild(t)
	return nil
}
