package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

var (
	// ErrMissingOperator is returned when several codes are given without an
	// operator to combine them.
	ErrMissingOperator = eris.New("pipeline: an operator is required to combine several codes")
	// ErrInvalidOperator is returned for operators other than + - * /.
	ErrInvalidOperator = eris.New("pipeline: invalid operator")
)

// Operator is the arithmetic operator folded over the code columns.
type Operator string

// Supported operators. OpNone is only valid with a single code.
const (
	OpNone Operator = ""
	OpAdd  Operator = "+"
	OpSub  Operator = "-"
	OpMul  Operator = "*"
	OpDiv  Operator = "/"
)

// ParseOperator reads an operator; blank and "#" mean none.
func ParseOperator(s string) (Operator, error) {
	s = strings.TrimSpace(s)
	if s == "#" {
		s = ""
	}
	switch op := Operator(s); op {
	case OpNone, OpAdd, OpSub, OpMul, OpDiv:
		return op, nil
	}
	return OpNone, eris.Wrapf(ErrInvalidOperator, "pipeline: operator %q", s)
}

// apply combines a and b. ok is false on division by zero.
func (o Operator) apply(a, b float64) (float64, bool) {
	switch o {
	case OpAdd:
		return a + b, true
	case OpSub:
		return a - b, true
	case OpMul:
		return a * b, true
	case OpDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}
	return 0, false
}

// EvalResult summarises a Compute call.
type EvalResult struct {
	Computed       int
	NullInputs     int
	DivisionByZero int
}

// Nulls is the number of rows left with a null evaluation.
func (r EvalResult) Nulls() int { return r.NullInputs + r.DivisionByZero }

// Compute writes (code1 op code2) op code3 into evalField for every row. Rows
// with a null input, or dividing by zero, get a null evaluation.
func Compute(t *dataset.Table, evalField string, codes Codes, op Operator) (EvalResult, error) {
	list, err := codes.List()
	if err != nil {
		return EvalResult{}, err
	}
	if len(list) > 1 && op == OpNone {
		return EvalResult{}, eris.Wrapf(ErrMissingOperator, "pipeline: combine %s", strings.Join(list, ", "))
	}

	out := t.FieldIndex(evalField)
	if out < 0 {
		return EvalResult{}, eris.Wrapf(dataset.ErrFieldNotFound, "pipeline: evaluation field %s in %s", evalField, t.Name)
	}
	cols := make([]int, len(list))
	for i, name := range list {
		if cols[i] = t.FieldIndex(name); cols[i] < 0 {
			return EvalResult{}, eris.Wrapf(dataset.ErrFieldNotFound, "pipeline: evaluate %s in %s", name, t.Name)
		}
	}

	var res EvalResult
	for r, row := range t.Rows {
		v, state, err := fold(row, cols, op)
		if err != nil {
			return res, eris.Wrapf(err, "pipeline: evaluate row %d of %s", r, t.Name)
		}
		switch state {
		case foldNull:
			res.NullInputs++
			t.Set(r, out, nil)
		case foldDivZero:
			res.DivisionByZero++
			t.Set(r, out, nil)
		default:
			res.Computed++
			t.Set(r, out, v)
		}
	}

	if res.Nulls() > 0 {
		zap.L().Warn("pipeline: rows with null evaluation",
			zap.String("component", "pipeline"),
			zap.String("table", t.Name),
			zap.Int("null_inputs", res.NullInputs),
			zap.Int("division_by_zero", res.DivisionByZero),
		)
	}
	return res, nil
}

type foldState int

const (
	foldOK foldState = iota
	foldNull
	foldDivZero
)

func fold(row []any, cols []int, op Operator) (float64, foldState, error) {
	var acc float64
	for i, c := range cols {
		x, ok, err := dataset.Float(row[c])
		if err != nil {
			return 0, foldOK, err
		}
		if !ok {
			return 0, foldNull, nil
		}
		if i == 0 {
			acc = x
			continue
		}
		if acc, ok = op.apply(acc, x); !ok {
			return 0, foldDivZero, nil
		}
	}
	return acc, foldOK, nil
}
