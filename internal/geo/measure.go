package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// parts is a geometry broken down into XY paths (single points, polylines, and
// polygon rings) plus the polygons used for containment tests.
type parts struct {
	paths [][]float64
	polys [][]int // polygon -> indexes into paths, shell first
}

func decompose(g geom.T) parts {
	var p parts
	addGeom(&p, g)
	return p
}

func addGeom(p *parts, g geom.T) {
	switch t := g.(type) {
	case nil:
	case *geom.Point:
		if !t.Empty() {
			p.paths = append(p.paths, xyOnly(t.FlatCoords(), t.Stride()))
		}
	case *geom.MultiPoint:
		flat := xyOnly(t.FlatCoords(), t.Stride())
		for i := 0; i+1 < len(flat); i += 2 {
			p.paths = append(p.paths, flat[i:i+2])
		}
	case *geom.LineString:
		p.paths = append(p.paths, xyOnly(t.FlatCoords(), t.Stride()))
	case *geom.LinearRing:
		p.paths = append(p.paths, xyOnly(t.FlatCoords(), t.Stride()))
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			addGeom(p, t.LineString(i))
		}
	case *geom.Polygon:
		rings := make([]int, 0, t.NumLinearRings())
		for i := 0; i < t.NumLinearRings(); i++ {
			r := t.LinearRing(i)
			rings = append(rings, len(p.paths))
			p.paths = append(p.paths, xyOnly(r.FlatCoords(), r.Stride()))
		}
		if len(rings) > 0 {
			p.polys = append(p.polys, rings)
		}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			addGeom(p, t.Polygon(i))
		}
	case *geom.GeometryCollection:
		for _, child := range t.Geoms() {
			addGeom(p, child)
		}
	}
}

func xyOnly(flat []float64, stride int) []float64 {
	if stride == 2 {
		return flat
	}
	out := make([]float64, 0, len(flat)/stride*2)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, flat[i], flat[i+1])
	}
	return out
}

func (p parts) empty() bool { return len(p.paths) == 0 }

// containsPoint reports whether (x, y) lies inside the polygon, honouring holes.
// Points on the boundary count as inside.
func (p parts) containsPoint(poly []int, c geom.Coord) bool {
	if len(poly) == 0 || !inRing(p.paths[poly[0]], c) {
		return false
	}
	for _, h := range poly[1:] {
		hole := p.paths[h]
		if inRing(hole, c) && !onRing(hole, c) {
			return false
		}
	}
	return true
}

func inRing(ring []float64, c geom.Coord) bool {
	if len(ring) < 6 {
		return false
	}
	return xy.IsPointInRing(geom.XY, c, ring) || onRing(ring, c)
}

func onRing(ring []float64, c geom.Coord) bool {
	return xy.DistanceFromPointToLineString(geom.XY, c, ring) == 0
}

// pathDistance is the minimum distance between two paths, stopping early once it
// drops to limit or below.
func pathDistance(a, b []float64, limit float64) float64 {
	switch {
	case len(a) < 2 || len(b) < 2:
		return math.Inf(1)
	case len(a) == 2 && len(b) == 2:
		return math.Hypot(a[0]-b[0], a[1]-b[1])
	case len(a) == 2:
		return xy.DistanceFromPointToLineString(geom.XY, geom.Coord{a[0], a[1]}, b)
	case len(b) == 2:
		return xy.DistanceFromPointToLineString(geom.XY, geom.Coord{b[0], b[1]}, a)
	}

	best := math.Inf(1)
	for i := 0; i+3 < len(a); i += 2 {
		a0 := geom.Coord{a[i], a[i+1]}
		a1 := geom.Coord{a[i+2], a[i+3]}
		for j := 0; j+3 < len(b); j += 2 {
			d := xy.DistanceFromLineToLine(a0, a1, geom.Coord{b[j], b[j+1]}, geom.Coord{b[j+2], b[j+3]})
			if d < best {
				best = d
				if best <= limit {
					return best
				}
			}
		}
	}
	return best
}

// partsDistance is the minimum planar distance between two decomposed
// geometries; 0 when one contains or touches the other. It returns as soon as
// the distance is known to be at most limit.
func partsDistance(a, b parts, limit float64) float64 {
	if a.empty() || b.empty() {
		return math.Inf(1)
	}
	if anyVertexInside(a, b) || anyVertexInside(b, a) {
		return 0
	}

	best := math.Inf(1)
	for _, pa := range a.paths {
		for _, pb := range b.paths {
			if d := pathDistance(pa, pb, limit); d < best {
				best = d
				if best <= limit {
					return best
				}
			}
		}
	}
	return best
}

func anyVertexInside(a, b parts) bool {
	if len(b.polys) == 0 {
		return false
	}
	for _, path := range a.paths {
		for i := 0; i+1 < len(path); i += 2 {
			c := geom.Coord{path[i], path[i+1]}
			for _, poly := range b.polys {
				if b.containsPoint(poly, c) {
					return true
				}
			}
		}
	}
	return false
}

// PlanarDistance returns the minimum distance between two geometries in their
// own coordinate units.
func PlanarDistance(a, b geom.T) (float64, error) {
	pa, pb := decompose(a), decompose(b)
	if pa.empty() || pb.empty() {
		return 0, eris.New("geo: distance to an empty geometry")
	}
	return partsDistance(pa, pb, -1), nil
}
