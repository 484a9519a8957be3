package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrSkippedCode2 guards against a third code given without a second.
var ErrSkippedCode2 = eris.New("Please don't skip code2!")

// Codes names the attribute columns combined into the evaluation. Code1 is
// required; Code2 and Code3 are optional but Code3 needs Code2.
type Codes struct {
	Code1 string `yaml:"code1"`
	Code2 string `yaml:"code2,omitempty"`
	Code3 string `yaml:"code3,omitempty"`
}

// List returns the codes in order.
func (c Codes) List() ([]string, error) {
	switch {
	case strings.TrimSpace(c.Code1) == "":
		return nil, eris.New("pipeline: code1 is required")
	case c.Code2 == "" && c.Code3 != "":
		return nil, ErrSkippedCode2
	case c.Code3 != "":
		return []string{c.Code1, c.Code2, c.Code3}, nil
	case c.Code2 != "":
		return []string{c.Code1, c.Code2}, nil
	default:
		return []string{c.Code1}, nil
	}
}

// Names returns the non-empty codes without validating them.
func (c Codes) Names() []string {
	var out []string
	for _, s := range []string{c.Code1, c.Code2, c.Code3} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func codesFrom(list []string) Codes {
	var c Codes
	for i, s := range list {
		switch i {
		case 0:
			c.Code1 = s
		case 1:
			c.Code2 = s
		case 2:
			c.Code3 = s
		}
	}
	return c
}
