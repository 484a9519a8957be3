package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet is a worksheet read as an attribute table.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ReadSheet reads the named worksheet of an XLSX workbook, or the first one
// when name is empty. The first non-blank row is the header. Blank rows are
// dropped and cells are trimmed.
func ReadSheet(path, name string) (*Sheet, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	ws, err := worksheet(f, name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: %s", path)
	}

	s := &Sheet{Name: ws.Name}
	for _, row := range ws.Rows {
		if row == nil {
			continue
		}
		cells := rowCells(row)
		if blank(cells) {
			continue
		}
		if s.Header == nil {
			s.Header = cells
			continue
		}
		s.Rows = append(s.Rows, cells)
	}
	if s.Header == nil {
		return nil, eris.Wrapf(ErrNoHeader, "xlsx: sheet %q of %s", ws.Name, path)
	}
	return s, nil
}

func worksheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.New("workbook has no sheets")
		}
		return f.Sheets[0], nil
	}
	if ws, ok := f.Sheet[name]; ok {
		return ws, nil
	}
	for _, ws := range f.Sheets {
		if strings.EqualFold(ws.Name, name) {
			return ws, nil
		}
	}
	return nil, eris.Errorf("sheet %q not found", name)
}

func rowCells(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = strings.TrimSpace(c.String())
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
