package geo

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// Measurer decides whether two features lie within a search distance of each
// other in a given coordinate system.
type Measurer struct {
	// Threshold is the search distance in working units: metres when Project
	// is set, the data's own units otherwise.
	Threshold float64
	// Project measures lon/lat pairs by great-circle distance.
	Project bool
}

// NewMeasurer resolves a search distance against a coordinate system.
func NewMeasurer(crs CRS, d Distance) (Measurer, error) {
	if d.Value < 0 || math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
		return Measurer{}, eris.Wrapf(ErrInvalidDistance, "geo: search distance %s", d)
	}

	switch d.Unit {
	case Unknown, "":
		return Measurer{Threshold: d.Value}, nil
	case DecimalDegrees:
		if !crs.Geographic {
			return Measurer{}, eris.Wrapf(ErrUnsupportedCRS, "geo: %s on projected data", d)
		}
		return Measurer{Threshold: d.Value}, nil
	}

	m, ok := d.Meters()
	if !ok {
		return Measurer{}, eris.Wrapf(ErrInvalidDistance, "geo: unknown unit %q", d.Unit)
	}
	if crs.Geographic {
		return Measurer{Threshold: m, Project: true}, nil
	}
	if crs.UnitMeters <= 0 {
		return Measurer{}, eris.Wrapf(ErrUnsupportedCRS, "geo: %s has no linear unit", label(crs))
	}
	return Measurer{Threshold: m / crs.UnitMeters}, nil
}

// padding is how far a bounding box must grow, in data units, so that anything
// within the threshold intersects it. For lon/lat data the longitude padding is
// taken at the highest latitude a matching selector can reach.
func (m Measurer) padding(f *feature) (float64, float64) {
	if !m.Project {
		return m.Threshold, m.Threshold
	}
	dLat := latSpan(m.Threshold)
	lat := math.Max(math.Abs(f.bounds.Min(1)), math.Abs(f.bounds.Max(1))) + dLat
	return lonSpan(m.Threshold, lat), dLat
}

func (m Measurer) within(a, b *feature) bool {
	if m.Project {
		return geodesicWithin(a.parts, b.parts, m.Threshold)
	}
	return partsDistance(a.parts, b.parts, m.Threshold) <= m.Threshold
}

// WithinDistance returns, in ascending order, the rows of targets that lie
// within d of at least one feature of selectors. Features without geometry never
// match.
func WithinDistance(targets, selectors *dataset.Layer, d Distance) ([]int, error) {
	tc, err := DetectCRS(targets)
	if err != nil {
		return nil, err
	}
	sc, err := DetectCRS(selectors)
	if err != nil {
		return nil, err
	}
	crs, err := Compatible(tc, sc)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: %s against %s", targets.Name, selectors.Name)
	}
	m, err := NewMeasurer(crs, d)
	if err != nil {
		return nil, err
	}
	return m.Select(targets, selectors), nil
}

// Select applies the measurer to every target feature.
func (m Measurer) Select(targets, selectors *dataset.Layer) []int {
	idx := newIndex(features(selectors))

	var rows []int
	compared := 0
	for _, t := range features(targets) {
		padX, padY := m.padding(t)
		for _, s := range idx.candidates(t.bounds, padX, padY) {
			compared++
			if m.within(t, s) {
				rows = append(rows, t.row)
				break
			}
		}
	}
	sort.Ints(rows)

	zap.L().Debug("geo: within-distance search",
		zap.String("targets", targets.Name),
		zap.String("selectors", selectors.Name),
		zap.Float64("threshold", m.Threshold),
		zap.Bool("projected_pairs", m.Project),
		zap.Int("comparisons", compared),
		zap.Int("matches", len(rows)),
	)
	return rows
}
