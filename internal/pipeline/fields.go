package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// ProvisionEval adds the float evaluation field to t, reusing an existing float
// field of the same name. It returns the field's index.
func ProvisionEval(t *dataset.Table, name string, width, decimals int) (int, error) {
	i, err := t.AddField(dataset.Field{
		Name:     name,
		Type:     dataset.TypeFloat,
		Width:    width,
		Decimals: decimals,
	})
	if err != nil {
		return -1, eris.Wrapf(err, "pipeline: provision %s on %s", name, t.Name)
	}
	return i, nil
}
