package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNoHeader is returned when a CSV source has no header row.
var ErrNoHeader = eris.New("csv: no header row")

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	// TrimSpace trims surrounding whitespace from every cell.
	TrimSpace bool
}

// CSVRow is one data record and the input line it starts on.
type CSVRow struct {
	Line   int
	Fields []string
}

// CSVStream is an attribute table being read: the header is available at once,
// data rows arrive on Rows.
type CSVStream struct {
	Header []string
	Rows   <-chan CSVRow
	errCh  <-chan error
}

// Err returns the error that ended the stream, if any. Call it after Rows is
// drained.
func (s *CSVStream) Err() error {
	return <-s.errCh
}

// OpenCSV reads the header row of r and streams the remaining rows. A leading
// UTF-8 byte order mark never reaches the first header name. The caller must
// drain Rows.
func OpenCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*CSVStream, error) {
	reader := csv.NewReader(withoutBOM(r))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.Comment = opts.Comment
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rowCh := make(chan CSVRow, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(rowCh)
		defer close(errCh)

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			line, _ := reader.FieldPos(0)
			if opts.TrimSpace {
				for i := range record {
					record[i] = strings.TrimSpace(record[i])
				}
			}

			select {
			case rowCh <- CSVRow{Line: line, Fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return &CSVStream{Header: header, Rows: rowCh, errCh: errCh}, nil
}

// withoutBOM drops a leading UTF-8 byte order mark.
func withoutBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
