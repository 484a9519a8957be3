// Package tabular loads attribute tables (CSV, XLSX, SQLite/GeoPackage, or a
// shapefile's DBF) into dataset tables.
package tabular

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
	"github.com/owlmanandy/superfund-counties/internal/shapefile"
)

// Extensions lists the file types Load understands.
var Extensions = []string{".csv", ".txt", ".xlsx", ".sqlite", ".db", ".gpkg", ".shp"}

// Options configures table loading.
type Options struct {
	// Table selects the table of a SQLite or GeoPackage database, or the sheet
	// of an XLSX workbook.
	Table string
	// Encoding names the text encoding of CSV and DBF sources. Empty means UTF-8
	// (or the .cpg of a shapefile).
	Encoding string
	// Text lists fields forced to text, such as identifiers.
	Text []string
	// Numeric lists fields parsed as floats. A missing field is an error.
	Numeric []string
}

// SplitRef separates a "path#table" reference. References without a table part
// are returned unchanged.
func SplitRef(ref string) (string, string) {
	i := strings.LastIndex(ref, "#")
	if i < 0 {
		return ref, ""
	}
	// Plain files never take a table suffix.
	switch strings.ToLower(filepath.Ext(ref[:i])) {
	case ".sqlite", ".db", ".gpkg", ".xlsx", ".zip":
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// Load reads the table at path, dispatching on its extension.
func Load(ctx context.Context, path string, opts Options) (*dataset.Table, error) {
	var (
		t   *dataset.Table
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		t, err = loadCSV(ctx, path, opts.Encoding)
	case ".xlsx":
		t, err = loadXLSX(path, opts.Table)
	case ".sqlite", ".db", ".gpkg":
		t, err = loadSQLite(ctx, path, opts.Table)
	case ".shp":
		var l *dataset.Layer
		l, err = shapefile.Read(path, shapefile.ReadOptions{Encoding: opts.Encoding})
		if l != nil {
			t = l.Table
		}
	case ".dbf":
		return nil, eris.Errorf("tabular: %s: open the .shp next to the .dbf instead", path)
	default:
		return nil, eris.Errorf("tabular: unsupported table format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	for _, name := range opts.Text {
		if err := t.ConvertField(name, dataset.TypeString); err != nil {
			return nil, eris.Wrapf(err, "tabular: load %s", path)
		}
	}
	for _, name := range opts.Numeric {
		if err := t.ConvertField(name, dataset.TypeFloat); err != nil {
			return nil, eris.Wrapf(err, "tabular: load %s", path)
		}
	}

	zap.L().Debug("tabular: loaded table",
		zap.String("component", "tabular"),
		zap.String("path", path),
		zap.Int("fields", len(t.Fields)),
		zap.Int("rows", t.Len()),
	)
	return t, nil
}

// fromRecords builds a text table from a header and rows. Blank header cells
// are named FIELDn and repeated names get a numeric suffix. Short rows are
// padded with nulls.
func fromRecords(name string, header []string, records [][]string) (*dataset.Table, error) {
	t := dataset.NewTable(name, nil)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "FIELD" + strconv.Itoa(i+1)
		}
		if _, err := t.AddField(dataset.Field{Name: t.UniqueName(h), Type: dataset.TypeString}); err != nil {
			return nil, eris.Wrapf(err, "tabular: header of %s", name)
		}
	}

	for n, rec := range records {
		if len(rec) > len(t.Fields) {
			return nil, eris.Errorf("tabular: %s row %d has %d values for %d columns", name, n+1, len(rec), len(t.Fields))
		}
		row := make([]any, len(t.Fields))
		for i, v := range rec {
			if v = strings.TrimSpace(v); v != "" {
				row[i] = v
			}
		}
		if err := t.Append(row); err != nil {
			return nil, eris.Wrapf(err, "tabular: %s row %d", name, n+1)
		}
	}
	return t, nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
