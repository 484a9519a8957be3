package shapefile

import (
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// DBF limits.
const (
	maxFieldName   = 10
	maxStringWidth = 254
	defaultNumeric = 18
	defaultDecimal = 6
)

// Write stores a layer as a shapefile at path (.shp, .shx, .dbf), plus a .prj
// when the layer carries one and a .cpg declaring UTF-8.
func Write(path string, layer *dataset.Layer) error {
	if err := layer.Validate(); err != nil {
		return eris.Wrapf(err, "shapefile: write %s", path)
	}

	shapeType := shapeTypeFor(layer)
	fields, names := dbfFields(layer.Table)

	w, err := shp.Create(path, shapeType)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %s", path)
	}
	// go-shp only flushes headers on Close.
	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
	}()

	if err := w.SetFields(fields); err != nil {
		return eris.Wrapf(err, "shapefile: set fields on %s", path)
	}

	for r, g := range layer.Geometries {
		shape, err := FromGeom(g)
		if err != nil {
			return eris.Wrapf(err, "shapefile: convert row %d of %s", r, layer.Name)
		}
		if shape == nil {
			shape = &shp.Null{}
		}
		idx := int(w.Write(shape))

		if len(layer.Fields) == 0 {
			if err := w.WriteAttribute(idx, 0, r); err != nil {
				return eris.Wrapf(err, "shapefile: write FID %d", r)
			}
			continue
		}
		for i, f := range layer.Fields {
			if err := w.WriteAttribute(idx, i, dbfValue(layer.Rows[r][i], f)); err != nil {
				return eris.Wrapf(err, "shapefile: write %s row %d", names[i], r)
			}
		}
	}

	w.Close()
	closed = true

	if layer.PRJ != "" {
		if err := os.WriteFile(sidecar(path, ".prj"), []byte(layer.PRJ), 0o644); err != nil {
			return eris.Wrapf(err, "shapefile: write projection for %s", path)
		}
	}
	if err := os.WriteFile(sidecar(path, ".cpg"), []byte("UTF-8"), 0o644); err != nil {
		return eris.Wrapf(err, "shapefile: write code page for %s", path)
	}
	return nil
}

// shapeTypeFor picks the shapefile geometry type for a layer. Point layers
// holding any multipoint are written as MULTIPOINT.
func shapeTypeFor(layer *dataset.Layer) shp.ShapeType {
	switch layer.Kind {
	case dataset.KindLine:
		return shp.POLYLINE
	case dataset.KindPolygon:
		return shp.POLYGON
	case dataset.KindPoint:
		for _, g := range layer.Geometries {
			if g != nil && len(g.FlatCoords()) > g.Stride() {
				return shp.MULTIPOINT
			}
		}
		return shp.POINT
	default:
		return shp.NULL
	}
}

// dbfFields maps table fields to DBF fields, truncating names to ten
// characters and de-duplicating the truncated names.
func dbfFields(t *dataset.Table) ([]shp.Field, []string) {
	if len(t.Fields) == 0 {
		return []shp.Field{shp.NumberField("FID", 10)}, []string{"FID"}
	}

	used := make(map[string]bool, len(t.Fields))
	fields := make([]shp.Field, len(t.Fields))
	names := make([]string, len(t.Fields))

	for i, f := range t.Fields {
		name := dbfName(f.Name, used)
		names[i] = name

		switch f.Type {
		case dataset.TypeFloat:
			width, decimals := f.Width, f.Decimals
			if width <= 0 {
				width = defaultNumeric
			}
			if decimals <= 0 && f.Width <= 0 {
				decimals = defaultDecimal
			}
			fields[i] = shp.FloatField(name, uint8(width), uint8(decimals))
		case dataset.TypeInteger:
			width := f.Width
			if width <= 0 {
				width = defaultNumeric
			}
			fields[i] = shp.NumberField(name, uint8(width))
		default:
			fields[i] = shp.StringField(name, uint8(stringWidth(t, i, f.Width)))
		}
	}
	return fields, names
}

func dbfName(name string, used map[string]bool) string {
	base := name
	if len(base) > maxFieldName {
		base = base[:maxFieldName]
	}
	candidate := base
	for n := 1; used[strings.ToUpper(candidate)]; n++ {
		suffix := "_" + strconv.Itoa(n)
		cut := maxFieldName - len(suffix)
		if cut > len(base) {
			cut = len(base)
		}
		candidate = base[:cut] + suffix
	}
	used[strings.ToUpper(candidate)] = true
	return candidate
}

// stringWidth sizes a text column to its longest value.
func stringWidth(t *dataset.Table, col, declared int) int {
	width := declared
	for _, row := range t.Rows {
		if n := len(dataset.Text(row[col])); n > width {
			width = n
		}
	}
	if width < 1 {
		width = 1
	}
	if width > maxStringWidth {
		width = maxStringWidth
	}
	return width
}

func dbfValue(v any, f dataset.Field) any {
	if v == nil {
		return ""
	}
	switch f.Type {
	case dataset.TypeFloat:
		if x, ok, err := dataset.Float(v); err == nil && ok {
			return x
		}
		return ""
	case dataset.TypeInteger:
		if x, ok, err := dataset.Float(v); err == nil && ok {
			return int(x)
		}
		return ""
	default:
		return dataset.Text(v)
	}
}
