// Package dataset holds attribute tables and feature layers in memory while the
// pipeline adds, joins, and calculates fields on them.
package dataset

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldType identifies the storage type of a field.
type FieldType int

// Field types.
const (
	TypeString FieldType = iota
	TypeFloat
	TypeInteger
)

// String returns the lowercase type name.
func (t FieldType) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeInteger:
		return "integer"
	default:
		return "string"
	}
}

// Field describes a single column.
type Field struct {
	Name     string
	Type     FieldType
	Width    int // 0 means the writer picks a default
	Decimals int
}

// ErrFieldExists is returned when a field is added under a name already taken by
// a field of a different type.
var ErrFieldExists = eris.New("dataset: field already exists with a different type")

// ErrFieldNotFound is returned when a named field is missing from a table.
var ErrFieldNotFound = eris.New("dataset: field not found")

// Table is an ordered set of fields plus rows of values. A value is nil, string,
// float64, or int64. Field lookup is case-insensitive.
type Table struct {
	Name   string
	Fields []Field
	Rows   [][]any

	index map[string]int
}

// NewTable creates an empty table with the given fields.
func NewTable(name string, fields []Field) *Table {
	t := &Table{Name: name, Fields: append([]Field(nil), fields...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Fields))
	for i, f := range t.Fields {
		key := strings.ToLower(f.Name)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// FieldIndex returns the position of the named field, or -1.
func (t *Table) FieldIndex(name string) int {
	if t.index == nil {
		t.reindex()
	}
	if i, ok := t.index[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// HasField reports whether the named field exists.
func (t *Table) HasField(name string) bool { return t.FieldIndex(name) >= 0 }

// AddField appends a field and a nil value to every row. An existing field of the
// same type is reused and its index returned.
func (t *Table) AddField(f Field) (int, error) {
	if f.Name == "" {
		return -1, eris.New("dataset: field name is empty")
	}
	if i := t.FieldIndex(f.Name); i >= 0 {
		if t.Fields[i].Type != f.Type {
			return -1, eris.Wrapf(ErrFieldExists, "dataset: add field %s", f.Name)
		}
		return i, nil
	}
	t.Fields = append(t.Fields, f)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], nil)
	}
	t.reindex()
	return len(t.Fields) - 1, nil
}

// UniqueName returns name, or name with the smallest "_N" suffix that is not
// already a field.
func (t *Table) UniqueName(name string) string {
	if !t.HasField(name) {
		return name
	}
	for n := 1; ; n++ {
		candidate := name + "_" + strconv.Itoa(n)
		if !t.HasField(candidate) {
			return candidate
		}
	}
}

// Append adds a row. The row must have one value per field.
func (t *Table) Append(row []any) error {
	if len(row) != len(t.Fields) {
		return eris.Errorf("dataset: row has %d values, table %s has %d fields", len(row), t.Name, len(t.Fields))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Get returns the value at row r of the named field.
func (t *Table) Get(r int, field string) (any, bool) {
	i := t.FieldIndex(field)
	if i < 0 || r < 0 || r >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[r][i], true
}

// Set stores v at row r, field index i.
func (t *Table) Set(r, i int, v any) {
	t.Rows[r][i] = v
}

// Subset returns a new table holding copies of the given rows, in order.
func (t *Table) Subset(rows []int) *Table {
	out := NewTable(t.Name, t.Fields)
	out.Rows = make([][]any, 0, len(rows))
	for _, r := range rows {
		row := make([]any, len(t.Rows[r]))
		copy(row, t.Rows[r])
		out.Rows = append(out.Rows, row)
	}
	return out
}
