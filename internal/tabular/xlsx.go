package tabular

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
	"github.com/owlmanandy/superfund-counties/internal/fetcher"
)

// loadXLSX reads the named worksheet, or the first one when sheet is empty.
func loadXLSX(path, sheet string) (*dataset.Table, error) {
	s, err := fetcher.ReadSheet(path, sheet)
	if errors.Is(err, fetcher.ErrNoHeader) {
		return nil, eris.Errorf("tabular: %s has no header row", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return fromRecords(baseName(path), s.Header, s.Rows)
}
