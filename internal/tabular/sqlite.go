package tabular

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// userTables lists tables and views, skipping SQLite and GeoPackage metadata
// and spatial index tables.
const userTables = `
SELECT name FROM sqlite_master
WHERE type IN ('table', 'view')
  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
  AND name NOT LIKE 'gpkg\_%' ESCAPE '\'
  AND name NOT LIKE 'rtree\_%' ESCAPE '\'
ORDER BY name`

// loadSQLite reads one table of a SQLite or GeoPackage database. Without a
// table name the database must hold exactly one user table. BLOB columns
// (GeoPackage geometries) are skipped.
func loadSQLite(ctx context.Context, path, table string) (*dataset.Table, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	defer db.Close() //nolint:errcheck

	if table == "" {
		table, err = onlyTable(ctx, db, path)
		if err != nil {
			return nil, err
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: query %s in %s", table, path)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: columns of %s", table)
	}

	var (
		fields []dataset.Field
		keep   []int
	)
	for i, c := range cols {
		ft, ok := sqliteType(c.DatabaseTypeName())
		if !ok {
			continue
		}
		fields = append(fields, dataset.Field{Name: c.Name(), Type: ft})
		keep = append(keep, i)
	}
	t := dataset.NewTable(table, fields)

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "tabular: scan %s", table)
		}
		row := make([]any, len(keep))
		for j, i := range keep {
			row[j] = sqliteValue(raw[i], fields[j].Type)
		}
		if err := t.Append(row); err != nil {
			return nil, eris.Wrapf(err, "tabular: %s", table)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", table)
	}
	return t, nil
}

func onlyTable(ctx context.Context, db *sql.DB, path string) (string, error) {
	rows, err := db.QueryContext(ctx, userTables)
	if err != nil {
		return "", eris.Wrapf(err, "tabular: list tables in %s", path)
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", eris.Wrap(err, "tabular: scan table name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return "", eris.Wrapf(err, "tabular: list tables in %s", path)
	}
	if len(names) != 1 {
		return "", eris.Errorf("tabular: %s holds %d tables %v; name one as path#table", path, len(names), names)
	}
	return names[0], nil
}

// sqliteType maps a declared column type using SQLite's affinity rules. ok is
// false for BLOB columns.
func sqliteType(decl string) (dataset.FieldType, bool) {
	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "INT"):
		return dataset.TypeInteger, true
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return dataset.TypeString, true
	case strings.Contains(d, "BLOB"), strings.Contains(d, "GEOMETRY"), strings.Contains(d, "POLYGON"),
		strings.Contains(d, "POINT"), strings.Contains(d, "LINESTRING"):
		return 0, false
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"),
		strings.Contains(d, "NUMERIC"), strings.Contains(d, "DECIMAL"):
		return dataset.TypeFloat, true
	default:
		return dataset.TypeString, true
	}
}

func sqliteValue(v any, t dataset.FieldType) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		v = string(x)
	case time.Time:
		v = x.Format(time.RFC3339)
	}

	switch t {
	case dataset.TypeInteger:
		switch x := v.(type) {
		case int64:
			return x
		case float64:
			return int64(x)
		}
	case dataset.TypeFloat:
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		}
	case dataset.TypeString:
		switch x := v.(type) {
		case string:
			return x
		case int64:
			return strconv.FormatInt(x, 10)
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	// Dynamic typing lets a value disagree with its column; parse its text.
	parsed, err := dataset.ParseValue(dataset.Text(v), t)
	if err != nil {
		return nil
	}
	return parsed
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
