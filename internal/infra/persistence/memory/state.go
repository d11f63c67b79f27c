package memory

import (
	"slices"

	"emxloader/pkg/domain"
)

type table struct {
	name  string
	order []string
	rows  map[string]domain.Entity
}

func newTable(name string) *table {
	return &table{name: name, rows: make(map[string]domain.Entity)}
}

func (t *table) clone() *table {
	cp := &table{name: t.name, order: slices.Clone(t.order), rows: make(map[string]domain.Entity, len(t.rows))}
	for k, r := range t.rows {
		cp.rows[k] = r.Clone()
	}
	return cp
}

func (t *table) put(key string, row domain.Entity) {
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, key)
	}
	t.rows[key] = row
}

func (t *table) dropColumn(attr string) {
	for _, r := range t.rows {
		delete(r, attr)
	}
}

// ordered returns the rows in insertion order.
func (t *table) ordered() []domain.Entity {
	out := make([]domain.Entity, 0, len(t.order))
	for _, k := range t.order {
		if r, ok := t.rows[k]; ok {
			out = append(out, r)
		}
	}
	return out
}

type dataState struct {
	tables map[string]*table
}

func newDataState() dataState {
	return dataState{tables: make(map[string]*table)}
}

func (s dataState) clone() dataState {
	cp := newDataState()
	for name, t := range s.tables {
		cp.tables[name] = t.clone()
	}
	return cp
}

// replace overwrites the rows of a table keyed by idAttr.
func (s dataState) replace(name string, rows []domain.Entity, idAttr string) {
	t := newTable(name)
	for _, r := range rows {
		key, err := domain.EncodeKey(r[idAttr])
		if err != nil {
			continue
		}
		t.put(key, r.Clone())
	}
	s.tables[name] = t
}

// index maps attribute -> value key -> row keys for scalar attributes.
type index struct {
	byAttr map[string]map[string]map[string]struct{}
}

func newIndex() *index {
	return &index{byAttr: make(map[string]map[string]map[string]struct{})}
}

func (i *index) add(rowKey string, row domain.Entity) {
	for attr, v := range row {
		valueKey, err := domain.EncodeKey(v)
		if err != nil {
			continue
		}
		values, ok := i.byAttr[attr]
		if !ok {
			values = make(map[string]map[string]struct{})
			i.byAttr[attr] = values
		}
		keys, ok := values[valueKey]
		if !ok {
			keys = make(map[string]struct{})
			values[valueKey] = keys
		}
		keys[rowKey] = struct{}{}
	}
}

// lookup returns the row keys that may match attr = v. The result can hold
// keys of rows that no longer match.
func (i *index) lookup(attr string, v any) []string {
	valueKey, err := domain.EncodeKey(v)
	if err != nil {
		return nil
	}
	keys := i.byAttr[attr][valueKey]
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out
}

func (i *index) rebuild(t *table) {
	i.byAttr = make(map[string]map[string]map[string]struct{})
	for key, row := range t.rows {
		i.add(key, row)
	}
}

func (i *index) entries() int {
	n := 0
	for _, values := range i.byAttr {
		for _, keys := range values {
			n += len(keys)
		}
	}
	return n
}
