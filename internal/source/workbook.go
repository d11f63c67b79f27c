package source

import (
	"fmt"
	"sync"

	"emxloader/pkg/domain"

	"github.com/xuri/excelize/v2"
)

// Workbook reads an Excel workbook. Each sheet is one entity; the first row is
// the header.
type Workbook struct {
	mu   sync.Mutex
	file *excelize.File
	path string
}

var _ Closer = (*Workbook)(nil)

// OpenWorkbook opens the workbook at path.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Workbook{file: f, path: path}, nil
}

// EntityNames lists the sheets in workbook order.
func (w *Workbook) EntityNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.GetSheetList()
}

// Rows streams the sheet named name. Each range re-reads the sheet.
func (w *Workbook) Rows(name string) (domain.RowStream, bool) {
	w.mu.Lock()
	idx, err := w.file.GetSheetIndex(name)
	w.mu.Unlock()
	if err != nil || idx < 0 {
		return nil, false
	}
	return func(yield func(domain.Entity, error) bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		rows, err := w.file.Rows(name)
		if err != nil {
			yield(nil, fmt.Errorf("read sheet %s: %w", name, err))
			return
		}
		defer func() { _ = rows.Close() }()
		var header []string
		for rows.Next() {
			cells, err := rows.Columns()
			if err != nil {
				yield(nil, fmt.Errorf("read sheet %s: %w", name, err))
				return
			}
			if header == nil {
				header = normalizeHeader(cells)
				continue
			}
			row := sheetRow(header, cells)
			if row == nil {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(nil, fmt.Errorf("read sheet %s: %w", name, err))
		}
	}, true
}

// Path returns the workbook location.
func (w *Workbook) Path() string { return w.path }

// Close releases the workbook.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
