// Package shapefile reads and writes ESRI shapefiles as dataset layers.
package shapefile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// ReadOptions configures shapefile reading.
type ReadOptions struct {
	// Encoding names the DBF text encoding (e.g. "windows-1252"). Empty means the
	// sibling .cpg file is consulted, then UTF-8 is assumed.
	Encoding string
}

// Read loads a shapefile and its attributes into a layer.
func Read(path string, opts ReadOptions) (*dataset.Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	dec, err := decoder(path, opts.Encoding)
	if err != nil {
		return nil, err
	}

	shpFields := reader.Fields()
	fields := make([]dataset.Field, len(shpFields))
	for i, f := range shpFields {
		fields[i] = fieldFromShp(f)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	layer := dataset.NewLayer(name, kindOf(reader.GeometryType), fields)

	var nullShapes, badValues int
	for reader.Next() {
		_, shape := reader.Shape()

		row := make([]any, len(fields))
		for i, f := range fields {
			raw := strings.TrimRight(reader.Attribute(i), "\x00")
			raw = strings.TrimSpace(raw)
			if dec != nil && f.Type == dataset.TypeString && raw != "" {
				if s, decErr := dec.String(raw); decErr == nil {
					raw = s
				}
			}
			v, perr := dataset.ParseValue(raw, f.Type)
			if perr != nil {
				// Overflowed numeric cells are stored as asterisks.
				badValues++
				v = nil
			}
			row[i] = v
		}

		g, gerr := ToGeom(shape)
		if gerr != nil {
			return nil, eris.Wrapf(gerr, "shapefile: read %s", path)
		}
		if g == nil {
			nullShapes++
		}

		if err := layer.AppendFeature(row, g); err != nil {
			return nil, eris.Wrapf(err, "shapefile: read %s", path)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", path)
	}

	if nullShapes > 0 || badValues > 0 {
		zap.L().Debug("shapefile: read with gaps",
			zap.String("path", path),
			zap.Int("null_shapes", nullShapes),
			zap.Int("unparsable_values", badValues),
		)
	}

	prj, err := os.ReadFile(sidecar(path, ".prj"))
	switch {
	case err == nil:
		layer.PRJ = strings.TrimSpace(string(prj))
	case !errors.Is(err, os.ErrNotExist):
		return nil, eris.Wrapf(err, "shapefile: read projection for %s", path)
	}

	return layer, nil
}

// Fields returns the attribute schema of a shapefile without reading records.
func Fields(path string) ([]dataset.Field, int, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	shpFields := reader.Fields()
	fields := make([]dataset.Field, len(shpFields))
	for i, f := range shpFields {
		fields[i] = fieldFromShp(f)
	}

	count := 0
	for reader.Next() {
		count++
	}
	return fields, count, eris.Wrapf(reader.Err(), "shapefile: scan %s", path)
}

func fieldFromShp(f shp.Field) dataset.Field {
	field := dataset.Field{
		Name:     strings.TrimRight(f.String(), "\x00"),
		Width:    int(f.Size),
		Decimals: int(f.Precision),
	}
	switch f.Fieldtype {
	case 'N':
		if f.Precision > 0 {
			field.Type = dataset.TypeFloat
		} else {
			field.Type = dataset.TypeInteger
		}
	case 'F', 'O':
		field.Type = dataset.TypeFloat
	default:
		field.Type = dataset.TypeString
		field.Decimals = 0
	}
	return field
}

func kindOf(t shp.ShapeType) dataset.Kind {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM, shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return dataset.KindPoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return dataset.KindLine
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return dataset.KindPolygon
	default:
		return dataset.KindUnknown
	}
}

// decoder returns a text decoder for DBF strings, or nil for UTF-8.
func decoder(path, name string) (*encoding.Decoder, error) {
	if name == "" {
		cpg, err := os.ReadFile(sidecar(path, ".cpg"))
		if err != nil {
			return nil, nil
		}
		name = strings.TrimSpace(string(cpg))
	}
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	// ESRI writes bare code page numbers, e.g. "1252".
	if strings.Trim(name, "0123456789") == "" {
		name = "windows-" + name
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: unknown encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
