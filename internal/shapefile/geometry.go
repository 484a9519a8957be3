package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// ToGeom converts a go-shp shape to a go-geom geometry. Z and M values are
// dropped. Returns nil, nil for null or empty shapes.
func ToGeom(shape shp.Shape) (geom.T, error) {
	if shape == nil {
		return nil, nil
	}

	switch s := shape.(type) {
	case *shp.Null:
		return nil, nil

	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil

	case *shp.MultiPoint:
		return multiPoint(s.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(s.Points), nil
	case *shp.MultiPointM:
		return multiPoint(s.Points), nil

	case *shp.PolyLine:
		return multiLineString(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineZ:
		return multiLineString(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineM:
		return multiLineString(splitParts(s.Parts, s.Points)), nil

	case *shp.Polygon:
		return multiPolygon(splitParts(s.Parts, s.Points))
	case *shp.PolygonZ:
		return multiPolygon(splitParts(s.Parts, s.Points))
	case *shp.PolygonM:
		return multiPolygon(splitParts(s.Parts, s.Points))

	default:
		return nil, eris.Errorf("shapefile: unsupported shape type %T", shape)
	}
}

// splitParts cuts a shapefile point array into flat XY coordinate parts.
func splitParts(parts []int32, points []shp.Point) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	if len(parts) == 0 {
		parts = []int32{0}
	}

	out := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		flat := make([]float64, 0, (end-start)*2)
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

func multiPoint(points []shp.Point) geom.T {
	if len(points) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return geom.NewMultiPointFlat(geom.XY, flat)
}

func multiLineString(parts [][]float64) geom.T {
	mls := geom.NewMultiLineString(geom.XY)
	for i, flat := range parts {
		if len(flat) < 4 {
			zap.L().Debug("shapefile: skipping degenerate line part", zap.Int("part", i))
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("shapefile: skipping malformed line part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// multiPolygon groups shapefile rings into polygons. Clockwise rings are shells;
// counter-clockwise rings are holes of the shell that contains them.
func multiPolygon(parts [][]float64) (geom.T, error) {
	type shell struct {
		rings [][]float64
	}
	var shells []*shell
	var holes [][]float64

	for i, ring := range parts {
		ring = closeRing(ring)
		if len(ring) < 8 {
			zap.L().Debug("shapefile: skipping degenerate ring", zap.Int("part", i))
			continue
		}
		if xy.IsRingCounterClockwise(geom.XY, ring) {
			holes = append(holes, ring)
			continue
		}
		shells = append(shells, &shell{rings: [][]float64{ring}})
	}

	// Rings written with the wrong winding and no shell at all: treat every
	// ring as its own shell.
	if len(shells) == 0 {
		for _, h := range holes {
			shells = append(shells, &shell{rings: [][]float64{h}})
		}
		holes = nil
	}

	for _, h := range holes {
		owner := shells[len(shells)-1]
		probe := geom.Coord{h[0], h[1]}
		for _, s := range shells {
			if xy.IsPointInRing(geom.XY, probe, s.rings[0]) {
				owner = s
				break
			}
		}
		owner.rings = append(owner.rings, h)
	}

	if len(shells) == 0 {
		return nil, nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, s := range shells {
		var flat []float64
		ends := make([]int, 0, len(s.rings))
		for _, r := range s.rings {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			return nil, eris.Wrap(err, "shapefile: build multipolygon")
		}
	}
	return mp, nil
}

func closeRing(flat []float64) []float64 {
	n := len(flat)
	if n < 4 {
		return flat
	}
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return flat
}

// FromGeom converts a go-geom geometry to a go-shp shape. Polygon shells are
// written clockwise and holes counter-clockwise. nil becomes a null shape.
func FromGeom(g geom.T) (shp.Shape, error) {
	if g == nil {
		return &shp.Null{}, nil
	}

	switch t := g.(type) {
	case *geom.Point:
		if t.Empty() {
			return &shp.Null{}, nil
		}
		return &shp.Point{X: t.X(), Y: t.Y()}, nil

	case *geom.MultiPoint:
		points := flatToPoints(t.FlatCoords(), t.Stride())
		if len(points) == 0 {
			return &shp.Null{}, nil
		}
		return &shp.MultiPoint{
			Box:       shp.BBoxFromPoints(points),
			NumPoints: int32(len(points)),
			Points:    points,
		}, nil

	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{flatToPoints(t.FlatCoords(), t.Stride())}), nil

	case *geom.MultiLineString:
		var parts [][]shp.Point
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			parts = append(parts, flatToPoints(ls.FlatCoords(), ls.Stride()))
		}
		if len(parts) == 0 {
			return &shp.Null{}, nil
		}
		return shp.NewPolyLine(parts), nil

	case *geom.Polygon:
		return polygonShape([]*geom.Polygon{t}), nil

	case *geom.MultiPolygon:
		polys := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
		return polygonShape(polys), nil

	default:
		return nil, eris.Errorf("shapefile: unsupported geometry type %T", g)
	}
}

func polygonShape(polys []*geom.Polygon) shp.Shape {
	var parts [][]shp.Point
	for _, p := range polys {
		for i := 0; i < p.NumLinearRings(); i++ {
			ring := p.LinearRing(i)
			flat := append([]float64(nil), ring.FlatCoords()...)
			if ring.Stride() != 2 {
				flat = dropExtraDims(flat, ring.Stride())
			}
			ccw := xy.IsRingCounterClockwise(geom.XY, flat)
			// Shell (i == 0) must be clockwise, holes counter-clockwise.
			if (i == 0) == ccw {
				reverseFlat(flat)
			}
			parts = append(parts, flatToPoints(flat, 2))
		}
	}
	if len(parts) == 0 {
		return &shp.Null{}
	}
	return (*shp.Polygon)(shp.NewPolyLine(parts))
}

func flatToPoints(flat []float64, stride int) []shp.Point {
	if stride < 2 {
		return nil
	}
	points := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		points = append(points, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return points
}

func dropExtraDims(flat []float64, stride int) []float64 {
	out := make([]float64, 0, len(flat)/stride*2)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, flat[i], flat[i+1])
	}
	return out
}

func reverseFlat(flat []float64) {
	n := len(flat) / 2
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		flat[2*i], flat[2*j] = flat[2*j], flat[2*i]
		flat[2*i+1], flat[2*j+1] = flat[2*j+1], flat[2*i+1]
	}
}
