package domain

import (
	"iter"
	"strings"
)

// Entity is one row: a string keyed mapping of attribute values.
type Entity map[string]any

// Get returns the raw value of an attribute.
func (e Entity) Get(name string) any { return e[name] }

// String returns the attribute value rendered as a string; nil renders empty.
func (e Entity) String(name string) string {
	v, ok := e[name]
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}

// Clone copies the row. List values are copied one level deep.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	cp := make(Entity, len(e))
	for k, v := range e {
		if list, ok := v.([]any); ok {
			v = append([]any(nil), list...)
		}
		cp[k] = v
	}
	return cp
}

// RowStream is a finite, restartable sequence of rows. Ranging over it twice
// replays the underlying source; a non-nil error ends the sequence.
type RowStream = iter.Seq2[Entity, error]

// Rows adapts a slice into a RowStream.
func Rows(rows []Entity) RowStream {
	return func(yield func(Entity, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// FailedRows returns a stream that yields err once.
func FailedRows(err error) RowStream {
	return func(yield func(Entity, error) bool) {
		yield(nil, err)
	}
}

// Collect drains a stream into a slice.
func Collect(rows RowStream) ([]Entity, error) {
	var out []Entity
	for r, err := range rows {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// MapRows applies fn to every row of src lazily.
func MapRows(src RowStream, fn func(Entity) (Entity, error)) RowStream {
	return func(yield func(Entity, error) bool) {
		for r, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			out, err := fn(r)
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}

// QualifiedName joins a package and a simple name.
func QualifiedName(pkg, simple string) string {
	if pkg == "" {
		return simple
	}
	return pkg + PackageSeparator + simple
}

// SimpleNameOf strips a package prefix from a fully qualified name.
func SimpleNameOf(name, pkg string) string {
	if pkg == "" {
		return name
	}
	return strings.TrimPrefix(name, pkg+PackageSeparator)
}

// FormatValue renders a scalar attribute value for messages and keys shown to users.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	return toString(v)
}
