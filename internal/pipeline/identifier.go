package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// DefaultPrefixLength is the length of the ACS summary-level prefix on county
// identifiers ("05000US").
const DefaultPrefixLength = 7

// NormalizeIdentifier strips the first prefixLen characters from id.
// Identifiers no longer than the prefix normalise to "".
func NormalizeIdentifier(id string, prefixLen int) string {
	r := []rune(id)
	if prefixLen >= len(r) {
		return ""
	}
	return string(r[prefixLen:])
}

// CleanIdentifiers writes the normalised form of keyField into a new text field
// outField. Null identifiers stay null. It returns the number of rows written.
func CleanIdentifiers(t *dataset.Table, keyField, outField string, prefixLen int) (int, error) {
	if prefixLen < 0 {
		return 0, eris.Errorf("pipeline: invalid identifier prefix length %d", prefixLen)
	}
	src := t.FieldIndex(keyField)
	if src < 0 {
		return 0, eris.Wrapf(dataset.ErrFieldNotFound, "pipeline: identifier field %s in %s", keyField, t.Name)
	}
	dst, err := t.AddField(dataset.Field{Name: outField, Type: dataset.TypeString})
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: add %s to %s", outField, t.Name)
	}

	n := 0
	for r, row := range t.Rows {
		if row[src] == nil {
			t.Set(r, dst, nil)
			continue
		}
		t.Set(r, dst, NormalizeIdentifier(dataset.Text(row[src]), prefixLen))
		n++
	}
	return n, nil
}
