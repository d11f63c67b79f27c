package importer

import (
	"fmt"

	"emxloader/pkg/domain"
)

// resolveSelfReferences orders rows so that every row referencing another row
// of the same entity comes after it. Entities without self references pass
// through untouched; otherwise the rows are materialized and emitted in
// dependency order, keeping input order where no dependency applies.
// References to ids outside the batch are assumed to exist already.
func resolveSelfReferences(meta domain.EntityMetaData, rows domain.RowStream) domain.RowStream {
	refs := meta.SelfReferences()
	if len(refs) == 0 || meta.IDAttribute == "" {
		return rows
	}
	var (
		sorted []domain.Entity
		err    error
		done   bool
	)
	return func(yield func(domain.Entity, error) bool) {
		if !done {
			sorted, err = sortBySelfReference(meta, refs, rows)
			done = true
		}
		if err != nil {
			yield(nil, err)
			return
		}
		for _, r := range sorted {
			if !yield(r, nil) {
				return
			}
		}
	}
}

const (
	unvisited = iota
	visiting
	visited
)

func sortBySelfReference(meta domain.EntityMetaData, refs []domain.AttributeMetaData, rows domain.RowStream) ([]domain.Entity, error) {
	all, err := domain.Collect(rows)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(all))
	for i, r := range all {
		if key, ok := rowKey(r[meta.IDAttribute]); ok {
			index[key] = i
		}
	}

	state := make([]int, len(all))
	out := make([]domain.Entity, 0, len(all))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visited:
			return nil
		case visiting:
			id := domain.FormatValue(all[i][meta.IDAttribute])
			return &domain.ImportError{
				Kind:    domain.KindCyclicReference,
				Entity:  meta.Name,
				IDs:     []string{id},
				Message: fmt.Sprintf("cyclic self reference in %s at row %s", meta.Name, id),
			}
		}
		state[i] = visiting
		for _, dep := range dependencies(all[i], refs) {
			j, ok := index[dep]
			if !ok || j == i {
				continue
			}
			if err := visit(j); err != nil {
				return err
			}
		}
		state[i] = visited
		out = append(out, all[i])
		return nil
	}
	for i := range all {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func dependencies(row domain.Entity, refs []domain.AttributeMetaData) []string {
	var out []string
	for _, ref := range refs {
		switch v := row[ref.Name].(type) {
		case nil:
		case []any:
			for _, item := range v {
				if key, ok := rowKey(item); ok {
					out = append(out, key)
				}
			}
		default:
			if key, ok := rowKey(v); ok {
				out = append(out, key)
			}
		}
	}
	return out
}

func rowKey(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	key, err := domain.EncodeKey(v)
	return key, err == nil
}
