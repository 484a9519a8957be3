package dataset

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNonNumeric is returned when a value cannot be read as a number.
var ErrNonNumeric = eris.New("dataset: value is not numeric")

// Float reads v as a number. ok is false for nil and blank strings.
func Float(v any) (f float64, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case int64:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return 0, false, eris.Wrapf(ErrNonNumeric, "dataset: parse %q", x)
		}
		return f, true, nil
	default:
		return 0, false, eris.Wrapf(ErrNonNumeric, "dataset: unsupported value type %T", v)
	}
}

// Text renders v as a string. nil renders as "".
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		return ""
	}
}

// ParseValue converts raw text to a value of type t. Blank text is nil.
func ParseValue(raw string, t FieldType) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	switch t {
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, eris.Wrapf(ErrNonNumeric, "dataset: parse float %q", raw)
		}
		return f, nil
	case TypeInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n, nil
		}
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil, eris.Wrapf(ErrNonNumeric, "dataset: parse integer %q", raw)
		}
		return int64(f), nil
	default:
		return raw, nil
	}
}

// ConvertField re-types an existing string field in place, parsing every value.
// A field already of type t is left alone.
func (t *Table) ConvertField(name string, to FieldType) error {
	i := t.FieldIndex(name)
	if i < 0 {
		return eris.Wrapf(ErrFieldNotFound, "dataset: convert %s in %s", name, t.Name)
	}
	if t.Fields[i].Type == to {
		return nil
	}
	for r, row := range t.Rows {
		var parsed any
		var err error
		switch to {
		case TypeString:
			parsed = nilIfEmpty(Text(row[i]))
		default:
			parsed, err = ParseValue(Text(row[i]), to)
		}
		if err != nil {
			return eris.Wrapf(err, "dataset: convert %s row %d", name, r)
		}
		row[i] = parsed
	}
	t.Fields[i].Type = to
	if to == TypeString {
		t.Fields[i].Decimals = 0
	}
	return nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
