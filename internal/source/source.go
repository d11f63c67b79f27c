// Package source provides the row collections an import reads from: an
// in-memory collection, Excel workbooks, CSV directories and combinations of
// those.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"emxloader/pkg/domain"
)

// Closer is a source holding files open.
type Closer interface {
	domain.Source
	Close() error
}

// Memory is a named collection of row slices.
type Memory struct {
	names []string
	rows  map[string][]domain.Entity
}

var _ domain.Source = (*Memory)(nil)

// NewMemory returns an empty collection.
func NewMemory() *Memory { return &Memory{rows: make(map[string][]domain.Entity)} }

// Add appends rows to the named sheet, creating it on first use.
func (m *Memory) Add(name string, rows ...domain.Entity) *Memory {
	if _, ok := m.rows[name]; !ok {
		m.names = append(m.names, name)
	}
	m.rows[name] = append(m.rows[name], rows...)
	return m
}

// EntityNames lists sheets in insertion order.
func (m *Memory) EntityNames() []string { return slices.Clone(m.names) }

// Rows replays the sheet. Rows are cloned so consumers may mutate them.
func (m *Memory) Rows(name string) (domain.RowStream, bool) {
	rows, ok := m.rows[name]
	if !ok {
		return nil, false
	}
	return func(yield func(domain.Entity, error) bool) {
		for _, r := range rows {
			if !yield(r.Clone(), nil) {
				return
			}
		}
	}, true
}

// Combined reads from several sources; the first source holding a name wins.
type Combined []domain.Source

// EntityNames lists the distinct names of all sources in order.
func (c Combined) EntityNames() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range c {
		for _, n := range s.EntityNames() {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// Rows returns the rows of the first source that has name.
func (c Combined) Rows(name string) (domain.RowStream, bool) {
	for _, s := range c {
		if rows, ok := s.Rows(name); ok {
			return rows, true
		}
	}
	return nil, false
}

// Close closes every source that holds resources.
func (c Combined) Close() error {
	var errs []error
	for _, s := range c {
		if cl, ok := s.(Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close sources: %v", errs)
	}
	return nil
}

// Open picks a reader from path: a directory of CSV files or an .xlsx workbook.
func Open(path string) (Closer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if info.IsDir() {
		return OpenCSVDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return OpenWorkbook(path)
	case ".csv":
		return OpenCSVFile(path)
	default:
		return nil, fmt.Errorf("open source: unsupported file type %q", filepath.Ext(path))
	}
}

// sheetRow maps one data row onto the header. Blank cells become absent
// attributes; a row of only blank cells yields nil.
func sheetRow(header, cells []string) domain.Entity {
	row := make(domain.Entity, len(header))
	for i, name := range header {
		if name == "" || i >= len(cells) {
			continue
		}
		v := cells[i]
		if strings.TrimSpace(v) == "" {
			continue
		}
		row[name] = v
	}
	if len(row) == 0 {
		return nil
	}
	return row
}

func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
