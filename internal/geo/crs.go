// Package geo provides the spatial operations behind the proximity queries:
// coordinate system detection, distance parsing, and within-distance search.
package geo

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// ErrUnsupportedCRS is returned when two layers cannot be measured against each
// other without reprojection.
var ErrUnsupportedCRS = eris.New("geo: unsupported coordinate system combination")

// CRS summarises what the distance code needs to know about a coordinate system.
type CRS struct {
	Geographic bool
	// UnitMeters is the size of one coordinate unit in metres. Zero for
	// geographic systems.
	UnitMeters float64
	Name       string
	Guessed    bool
}

var (
	unitRE = regexp.MustCompile(`UNIT\s*\[\s*"([^"]*)"\s*,\s*([-+0-9.eE]+)`)
	nameRE = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS)\s*\[\s*"([^"]*)"`)
)

// ParsePRJ reads an ESRI .prj WKT string.
func ParsePRJ(wkt string) (CRS, error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)

	var crs CRS
	if m := nameRE.FindStringSubmatch(s); m != nil {
		crs.Name = m[1]
	}

	switch {
	case strings.HasPrefix(upper, "PROJCS"):
		units := unitRE.FindAllStringSubmatch(s, -1)
		if len(units) == 0 {
			return CRS{}, eris.Errorf("geo: projected CRS %q has no linear unit", crs.Name)
		}
		// The projected unit is the last UNIT clause; earlier ones belong to the
		// nested GEOGCS.
		factor, err := strconv.ParseFloat(units[len(units)-1][2], 64)
		if err != nil || factor <= 0 {
			return CRS{}, eris.Errorf("geo: invalid linear unit in CRS %q", crs.Name)
		}
		crs.UnitMeters = factor
		return crs, nil

	case strings.HasPrefix(upper, "GEOGCS"):
		crs.Geographic = true
		return crs, nil

	default:
		return CRS{}, eris.Errorf("geo: unrecognised projection definition %.40q", s)
	}
}

// DetectCRS returns the coordinate system of a layer. Without a .prj the layer is
// assumed geographic when every coordinate fits in ±180/±90, metres otherwise.
func DetectCRS(l *dataset.Layer) (CRS, error) {
	if l.PRJ != "" {
		crs, err := ParsePRJ(l.PRJ)
		if err != nil {
			return CRS{}, eris.Wrapf(err, "geo: detect CRS of %s", l.Name)
		}
		return crs, nil
	}

	b := layerBounds(l)
	geographic := b.IsEmpty() ||
		(b.Min(0) >= -180 && b.Max(0) <= 180 && b.Min(1) >= -90 && b.Max(1) <= 90)

	crs := CRS{Geographic: geographic, Guessed: true}
	if !geographic {
		crs.UnitMeters = 1
	}
	zap.L().Warn("geo: layer has no .prj, guessing coordinate system",
		zap.String("layer", l.Name),
		zap.Bool("geographic", crs.Geographic),
	)
	return crs, nil
}

// Compatible returns the CRS measurements should use for the pair, or
// ErrUnsupportedCRS when they disagree.
func Compatible(a, b CRS) (CRS, error) {
	if a.Geographic != b.Geographic {
		return CRS{}, eris.Wrapf(ErrUnsupportedCRS, "geo: %s is %s but %s is %s", label(a), kind(a), label(b), kind(b))
	}
	if !a.Geographic && math.Abs(a.UnitMeters-b.UnitMeters) > 1e-9*a.UnitMeters {
		return CRS{}, eris.Wrapf(ErrUnsupportedCRS, "geo: linear units differ (%g m vs %g m)", a.UnitMeters, b.UnitMeters)
	}
	if a.Guessed && !b.Guessed {
		return b, nil
	}
	return a, nil
}

func kind(c CRS) string {
	if c.Geographic {
		return "geographic"
	}
	return "projected"
}

func label(c CRS) string {
	if c.Name != "" {
		return c.Name
	}
	return "layer without .prj"
}

func layerBounds(l *dataset.Layer) *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, g := range l.Geometries {
		if g != nil {
			b.Extend(g)
		}
	}
	return b
}
