// Package export writes output layers in formats other than shapefile.
package export

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// FeatureCollection converts a layer to GeoJSON. Rings follow the RFC 7946
// winding order and rows without geometry get a null geometry.
func FeatureCollection(l *dataset.Layer) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for r, g := range l.Geometries {
		og, err := toOrb(g)
		if err != nil {
			return nil, eris.Wrapf(err, "export: row %d of %s", r, l.Name)
		}
		f := geojson.NewFeature(og)
		f.Properties = make(geojson.Properties, len(l.Fields))
		for i, field := range l.Fields {
			f.Properties[field.Name] = l.Rows[r][i]
		}
		fc.Append(f)
	}
	return fc, nil
}

// WriteGeoJSON writes a layer as a GeoJSON feature collection.
func WriteGeoJSON(path string, l *dataset.Layer) error {
	fc, err := FeatureCollection(l)
	if err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrapf(err, "export: encode %s", l.Name)
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "export: write %s", path)
}

func toOrb(g geom.T) (orb.Geometry, error) {
	switch t := g.(type) {
	case nil:
		return nil, nil
	case *geom.Point:
		if t.Empty() {
			return nil, nil
		}
		return orb.Point{t.X(), t.Y()}, nil
	case *geom.MultiPoint:
		return orb.MultiPoint(points(t.FlatCoords(), t.Stride())), nil
	case *geom.LineString:
		return orb.LineString(points(t.FlatCoords(), t.Stride())), nil
	case *geom.MultiLineString:
		mls := make(orb.MultiLineString, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			mls = append(mls, points(ls.FlatCoords(), ls.Stride()))
		}
		return mls, nil
	case *geom.Polygon:
		return polygon(t), nil
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			mp = append(mp, polygon(t.Polygon(i)))
		}
		return mp, nil
	default:
		return nil, eris.Errorf("export: unsupported geometry %T", g)
	}
}

func points(flat []float64, stride int) []orb.Point {
	out := make([]orb.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, orb.Point{flat[i], flat[i+1]})
	}
	return out
}

// polygon converts p with a counter-clockwise shell and clockwise holes.
func polygon(p *geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		lr := p.LinearRing(i)
		ring := orb.Ring(points(lr.FlatCoords(), lr.Stride()))
		want := orb.CCW
		if i > 0 {
			want = orb.CW
		}
		if o := ring.Orientation(); o != 0 && o != want {
			ring.Reverse()
		}
		out = append(out, ring)
	}
	return out
}
