package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/owlmanandy/superfund-counties/internal/geo"
)

// NumArgs is the number of positional parameters a run takes.
const NumArgs = 11

// Params are the positional parameters of a run, parsed and validated.
type Params struct {
	Workspace string
	Sites     string
	Counties  string
	Table     string
	Codes     Codes
	Operator  Operator
	Compare   Comparison
	Threshold float64
	Distance  geo.Distance
}

// ParseArgs reads the eleven positional parameters: workspace, sites,
// counties, table, code1, code2, code3, operator, comparison, threshold and
// search distance. Optional values may be blank or "#".
func ParseArgs(args []string) (Params, error) {
	if len(args) != NumArgs {
		return Params{}, eris.Errorf("pipeline: expected %d parameters, got %d", NumArgs, len(args))
	}

	var p Params
	p.Workspace = optional(args[0])
	p.Sites = optional(args[1])
	p.Counties = optional(args[2])
	p.Table = optional(args[3])
	required := []struct{ name, value string }{
		{"workspace", p.Workspace},
		{"sites", p.Sites},
		{"counties", p.Counties},
		{"table", p.Table},
	}
	for _, r := range required {
		if r.value == "" {
			return Params{}, eris.Errorf("pipeline: %s is required", r.name)
		}
	}

	p.Codes = Codes{Code1: optional(args[4]), Code2: optional(args[5]), Code3: optional(args[6])}
	if _, err := p.Codes.List(); err != nil {
		return Params{}, err
	}

	var err error
	if p.Operator, err = ParseOperator(args[7]); err != nil {
		return Params{}, err
	}
	if p.Compare, err = ParseComparison(args[8]); err != nil {
		return Params{}, err
	}
	if p.Threshold, err = ParseThreshold(args[9]); err != nil {
		return Params{}, err
	}
	if p.Distance, err = geo.ParseDistance(args[10]); err != nil {
		return Params{}, err
	}
	return p, nil
}

func optional(s string) string {
	s = strings.TrimSpace(s)
	if s == "#" {
		return ""
	}
	return s
}
