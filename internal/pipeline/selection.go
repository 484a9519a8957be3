package pipeline

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

var (
	// ErrInvalidComparison is returned for unknown comparison operators.
	ErrInvalidComparison = eris.New("pipeline: invalid comparison")
	// ErrInvalidThreshold is returned when the threshold is not a number.
	ErrInvalidThreshold = eris.New("pipeline: invalid threshold")
)

// Comparison is the operator applied between the evaluation and the threshold.
type Comparison string

// Supported comparisons.
const (
	Greater      Comparison = ">"
	GreaterEqual Comparison = ">="
	Less         Comparison = "<"
	LessEqual    Comparison = "<="
	Equal        Comparison = "="
	NotEqual     Comparison = "<>"
)

// ParseComparison reads a comparison operator. "==" is accepted for "=" and
// "!=" for "<>".
func ParseComparison(s string) (Comparison, error) {
	switch c := strings.TrimSpace(s); c {
	case ">", ">=", "<", "<=", "=", "<>":
		return Comparison(c), nil
	case "==":
		return Equal, nil
	case "!=":
		return NotEqual, nil
	default:
		return "", eris.Wrapf(ErrInvalidComparison, "pipeline: comparison %q", s)
	}
}

// ParseThreshold reads the numeric threshold. A trailing percent sign is
// ignored.
func ParseThreshold(s string) (float64, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, eris.Wrapf(ErrInvalidThreshold, "pipeline: threshold %q", s)
	}
	return v, nil
}

// Matches reports whether v <c> threshold holds.
func (c Comparison) Matches(v, threshold float64) bool {
	switch c {
	case Greater:
		return v > threshold
	case GreaterEqual:
		return v >= threshold
	case Less:
		return v < threshold
	case LessEqual:
		return v <= threshold
	case Equal:
		return v == threshold
	case NotEqual:
		return v != threshold
	}
	return false
}

// Select returns the rows of t whose field satisfies the comparison. Null values
// never match.
func Select(t *dataset.Table, field string, c Comparison, threshold float64) ([]int, error) {
	i := t.FieldIndex(field)
	if i < 0 {
		return nil, eris.Wrapf(dataset.ErrFieldNotFound, "pipeline: select on %s in %s", field, t.Name)
	}

	rows := []int{}
	for r, row := range t.Rows {
		v, ok, err := dataset.Float(row[i])
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: select row %d of %s", r, t.Name)
		}
		if ok && c.Matches(v, threshold) {
			rows = append(rows, r)
		}
	}
	return rows, nil
}
