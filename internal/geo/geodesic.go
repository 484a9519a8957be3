package geo

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// earthRadius is the GRS80/WGS84 equatorial radius in metres.
const earthRadius = 6378137.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// haversine is the great-circle distance in metres between two lon/lat points.
func haversine(p, q [2]float64) float64 {
	phi1, phi2 := radians(p[1]), radians(q[1])
	sinLat := math.Sin((phi2 - phi1) / 2)
	sinLon := math.Sin(radians(q[0]-p[0]) / 2)
	h := sinLat*sinLat + math.Cos(phi1)*math.Cos(phi2)*sinLon*sinLon
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// latSpan is the widest latitude difference, in degrees, between two points at
// most d metres apart.
func latSpan(d float64) float64 {
	return degrees(d / earthRadius)
}

// lonSpan is the widest longitude difference, in degrees, between two points at
// most d metres apart whose latitudes do not exceed lat in absolute value. It
// follows from hav(d) >= cos(lat1)cos(lat2)hav(dlon).
func lonSpan(d, lat float64) float64 {
	half := d / (2 * earthRadius)
	if half >= math.Pi/2 || lat >= 90 {
		return 180
	}
	s, c := math.Sin(half), math.Cos(radians(lat))
	if s >= c {
		return 180
	}
	return degrees(2 * math.Asin(s/c))
}

// geodesicWithin reports whether two lon/lat geometries come within d metres of
// each other on the sphere. Geometries that touch or overlap always do.
// Otherwise each pair of segments is checked at its locally closest points, so
// the result does not depend on argument order.
func geodesicWithin(a, b parts, d float64) bool {
	if a.empty() || b.empty() {
		return false
	}
	if anyVertexInside(a, b) || anyVertexInside(b, a) {
		return true
	}
	for _, pa := range a.paths {
		for _, pb := range b.paths {
			if pathsWithin(pa, pb, d) {
				return true
			}
		}
	}
	return false
}

func pathsWithin(a, b []float64, d float64) bool {
	for i := range segments(a) {
		a0, a1 := segment(a, i)
		for j := range segments(b) {
			b0, b1 := segment(b, j)
			if segmentsWithin(a0, a1, b0, b1, d) {
				return true
			}
		}
	}
	return false
}

// segments is the number of segments of a path; a single point is one
// zero-length segment.
func segments(path []float64) int {
	if len(path) < 4 {
		return len(path) / 2
	}
	return len(path)/2 - 1
}

func segment(path []float64, i int) ([2]float64, [2]float64) {
	p := [2]float64{path[2*i], path[2*i+1]}
	if len(path) < 4 {
		return p, p
	}
	return p, [2]float64{path[2*i+2], path[2*i+3]}
}

// segmentsWithin checks two lon/lat segments. Crossing segments are at distance
// zero. Otherwise the closest points lie at an endpoint of one segment and its
// projection onto the other, found in a plane scaled for the pair's latitude.
func segmentsWithin(a0, a1, b0, b1 [2]float64, d float64) bool {
	if a0 != a1 && b0 != b1 &&
		xy.DistanceFromLineToLine(coord(a0), coord(a1), coord(b0), coord(b1)) == 0 {
		return true
	}

	lo := math.Min(math.Min(a0[1], a1[1]), math.Min(b0[1], b1[1]))
	hi := math.Max(math.Max(a0[1], a1[1]), math.Max(b0[1], b1[1]))
	kx := math.Cos(radians((lo + hi) / 2))

	return haversine(a0, closestOnSegment(a0, b0, b1, kx)) <= d ||
		haversine(a1, closestOnSegment(a1, b0, b1, kx)) <= d ||
		haversine(closestOnSegment(b0, a0, a1, kx), b0) <= d ||
		haversine(closestOnSegment(b1, a0, a1, kx), b1) <= d
}

// closestOnSegment projects p onto segment s0-s1 with longitudes scaled by kx.
func closestOnSegment(p, s0, s1 [2]float64, kx float64) [2]float64 {
	dx, dy := (s1[0]-s0[0])*kx, s1[1]-s0[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return s0
	}
	t := ((p[0]-s0[0])*kx*dx + (p[1]-s0[1])*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return [2]float64{s0[0] + t*(s1[0]-s0[0]), s0[1] + t*(s1[1]-s0[1])}
}

func coord(p [2]float64) geom.Coord { return geom.Coord{p[0], p[1]} }
