package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emxloader/pkg/domain"
)

// CSVDir reads a directory of CSV files; each <name>.csv is one entity.
type CSVDir struct {
	files map[string]string
	names []string
}

var _ Closer = (*CSVDir)(nil)

// OpenCSVDir indexes the .csv files directly under dir.
func OpenCSVDir(dir string) (*CSVDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read csv dir %s: %w", dir, err)
	}
	c := &CSVDir{files: make(map[string]string)}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		c.files[name] = filepath.Join(dir, e.Name())
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

// OpenCSVFile reads a single CSV file named after its entity.
func OpenCSVFile(path string) (*CSVDir, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return &CSVDir{files: map[string]string{name: path}, names: []string{name}}, nil
}

// EntityNames lists the files sorted by name.
func (c *CSVDir) EntityNames() []string { return append([]string(nil), c.names...) }

// Rows streams the named file. Each range reopens the file.
func (c *CSVDir) Rows(name string) (domain.RowStream, bool) {
	path, ok := c.files[name]
	if !ok {
		return nil, false
	}
	return func(yield func(domain.Entity, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, fmt.Errorf("open csv %s: %w", name, err))
			return
		}
		defer func() { _ = f.Close() }()
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read csv %s: %w", name, err))
			return
		}
		header = normalizeHeader(header)
		if len(header) > 0 {
			header[0] = strings.TrimPrefix(header[0], "\ufeff")
		}
		for {
			cells, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("read csv %s: %w", name, err))
				return
			}
			row := sheetRow(header, cells)
			if row == nil {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}, true
}

// Close is a no-op; files are opened per iteration.
func (c *CSVDir) Close() error { return nil }
