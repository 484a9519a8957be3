package db

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB encodes g as little-endian EWKB tagged with srid. A nil geometry
// encodes as nil (SQL NULL).
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	switch t := g.(type) {
	case *geom.Point:
		g = geom.NewPointFlat(t.Layout(), t.FlatCoords()).SetSRID(srid)
	case *geom.MultiPoint:
		g = geom.NewMultiPointFlat(t.Layout(), t.FlatCoords()).SetSRID(srid)
	case *geom.LineString:
		g = geom.NewLineStringFlat(t.Layout(), t.FlatCoords()).SetSRID(srid)
	case *geom.MultiLineString:
		g = geom.NewMultiLineStringFlat(t.Layout(), t.FlatCoords(), t.Ends()).SetSRID(srid)
	case *geom.Polygon:
		g = geom.NewPolygonFlat(t.Layout(), t.FlatCoords(), t.Ends()).SetSRID(srid)
	case *geom.MultiPolygon:
		g = geom.NewMultiPolygonFlat(t.Layout(), t.FlatCoords(), t.Endss()).SetSRID(srid)
	default:
		return nil, eris.Errorf("db: unsupported geometry %T", g)
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "db: encode EWKB")
	}
	return data, nil
}
