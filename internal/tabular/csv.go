package tabular

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
	"github.com/owlmanandy/superfund-counties/internal/fetcher"
)

func loadCSV(ctx context.Context, path, encoding string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if encoding != "" {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: unknown encoding %q", encoding)
		}
		r = transform.NewReader(f, enc.NewDecoder())
	}

	stream, err := fetcher.OpenCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true})
	if errors.Is(err, fetcher.ErrNoHeader) {
		return nil, eris.Errorf("tabular: %s has no header row", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}

	var records [][]string
	for row := range stream.Rows {
		records = append(records, row.Fields)
	}
	if err := stream.Err(); err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return fromRecords(baseName(path), stream.Header, records)
}
