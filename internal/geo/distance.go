package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidDistance is returned for search distances that cannot be parsed.
var ErrInvalidDistance = eris.New("geo: invalid search distance")

// Unit is a linear unit accepted in search distances.
type Unit string

// Supported units.
const (
	Unknown        Unit = "Unknown"
	Meters         Unit = "Meters"
	Kilometers     Unit = "Kilometers"
	Miles          Unit = "Miles"
	Feet           Unit = "Feet"
	Yards          Unit = "Yards"
	NauticalMiles  Unit = "NauticalMiles"
	Inches         Unit = "Inches"
	Centimeters    Unit = "Centimeters"
	Millimeters    Unit = "Millimeters"
	Decimeters     Unit = "Decimeters"
	DecimalDegrees Unit = "DecimalDegrees"
)

var unitMeters = map[Unit]float64{
	Meters:        1,
	Kilometers:    1000,
	Miles:         1609.344,
	Feet:          0.3048,
	Yards:         0.9144,
	NauticalMiles: 1852,
	Inches:        0.0254,
	Centimeters:   0.01,
	Millimeters:   0.001,
	Decimeters:    0.1,
}

var unitAliases = map[string]Unit{
	"":               Unknown,
	"unknown":        Unknown,
	"m":              Meters,
	"meter":          Meters,
	"meters":         Meters,
	"metre":          Meters,
	"metres":         Meters,
	"km":             Kilometers,
	"kilometer":      Kilometers,
	"kilometers":     Kilometers,
	"kilometre":      Kilometers,
	"kilometres":     Kilometers,
	"mi":             Miles,
	"mile":           Miles,
	"miles":          Miles,
	"ft":             Feet,
	"foot":           Feet,
	"feet":           Feet,
	"yd":             Yards,
	"yard":           Yards,
	"yards":          Yards,
	"nm":             NauticalMiles,
	"nmi":            NauticalMiles,
	"nauticalmile":   NauticalMiles,
	"nauticalmiles":  NauticalMiles,
	"in":             Inches,
	"inch":           Inches,
	"inches":         Inches,
	"cm":             Centimeters,
	"centimeter":     Centimeters,
	"centimeters":    Centimeters,
	"mm":             Millimeters,
	"millimeter":     Millimeters,
	"millimeters":    Millimeters,
	"dm":             Decimeters,
	"decimeter":      Decimeters,
	"decimeters":     Decimeters,
	"dd":             DecimalDegrees,
	"deg":            DecimalDegrees,
	"degree":         DecimalDegrees,
	"degrees":        DecimalDegrees,
	"decimaldegree":  DecimalDegrees,
	"decimaldegrees": DecimalDegrees,
}

// Distance is a search radius with its unit.
type Distance struct {
	Value float64
	Unit  Unit
}

// String renders the distance the way it is accepted by ParseDistance.
func (d Distance) String() string {
	return fmt.Sprintf("%s %s", strconv.FormatFloat(d.Value, 'f', -1, 64), d.Unit)
}

// Meters converts a linear distance to metres. ok is false for Unknown and
// DecimalDegrees.
func (d Distance) Meters() (float64, bool) {
	f, ok := unitMeters[d.Unit]
	if !ok {
		return 0, false
	}
	return d.Value * f, true
}

// ParseDistance reads strings such as "10 Miles", "2.5km", or "500". A missing
// unit means the data's own units.
func ParseDistance(s string) (Distance, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Distance{}, eris.Wrap(ErrInvalidDistance, "geo: empty search distance")
	}

	split := strings.IndexFunc(raw, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E'
	})
	num, unitText := raw, ""
	if split >= 0 {
		num, unitText = raw[:split], raw[split:]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return Distance{}, eris.Wrapf(ErrInvalidDistance, "geo: parse number in %q", s)
	}
	if value < 0 {
		return Distance{}, eris.Wrapf(ErrInvalidDistance, "geo: negative search distance %q", s)
	}

	key := strings.ToLower(strings.Join(strings.Fields(unitText), ""))
	key = strings.ReplaceAll(key, "_", "")
	unit, ok := unitAliases[key]
	if !ok {
		return Distance{}, eris.Wrapf(ErrInvalidDistance, "geo: unknown unit %q", strings.TrimSpace(unitText))
	}

	return Distance{Value: value, Unit: unit}, nil
}
