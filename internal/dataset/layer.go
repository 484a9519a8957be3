package dataset

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Kind is the geometry family stored in a layer.
type Kind int

// Geometry kinds.
const (
	KindUnknown Kind = iota
	KindPoint
	KindLine
	KindPolygon
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Layer is a table whose rows each carry one geometry. Geometries[i] belongs to
// Rows[i]; a nil geometry marks a null shape.
type Layer struct {
	*Table
	Kind       Kind
	Geometries []geom.T
	PRJ        string // raw .prj WKT, empty if unknown
}

// NewLayer creates an empty layer.
func NewLayer(name string, kind Kind, fields []Field) *Layer {
	return &Layer{Table: NewTable(name, fields), Kind: kind}
}

// AppendFeature adds a row together with its geometry.
func (l *Layer) AppendFeature(row []any, g geom.T) error {
	if err := l.Append(row); err != nil {
		return err
	}
	l.Geometries = append(l.Geometries, g)
	return nil
}

// Validate checks that geometries and rows line up.
func (l *Layer) Validate() error {
	if len(l.Geometries) != len(l.Rows) {
		return eris.Errorf("dataset: layer %s has %d rows but %d geometries", l.Name, len(l.Rows), len(l.Geometries))
	}
	return nil
}

// Subset returns a new layer with the given rows and their geometries.
func (l *Layer) Subset(name string, rows []int) *Layer {
	t := l.Table.Subset(rows)
	t.Name = name
	out := &Layer{Table: t, Kind: l.Kind, PRJ: l.PRJ}
	out.Geometries = make([]geom.T, 0, len(rows))
	for _, r := range rows {
		out.Geometries = append(out.Geometries, l.Geometries[r])
	}
	return out
}
