package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

const geomColumn = "geom"

// Publisher replaces PostGIS tables with the contents of output layers.
type Publisher struct {
	pool   Pool
	schema string
	srid   int
}

// NewPublisher creates a Publisher writing into schema with geometries tagged
// srid.
func NewPublisher(pool Pool, schema string, srid int) *Publisher {
	return &Publisher{pool: pool, schema: schema, srid: srid}
}

// Publish publishes every layer in order, stopping at the first failure.
func (p *Publisher) Publish(ctx context.Context, layers ...*dataset.Layer) error {
	if _, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{p.schema}.Sanitize()); err != nil {
		return eris.Wrapf(err, "db: create schema %s", p.schema)
	}
	for _, l := range layers {
		if _, err := p.PublishLayer(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// PublishLayer replaces the layer's table (its lower-cased name) in a single
// transaction: drop, create, copy every feature, index the geometry column.
// On failure the previously published table is left untouched.
func (p *Publisher) PublishLayer(ctx context.Context, l *dataset.Layer) (int64, error) {
	if err := l.Validate(); err != nil {
		return 0, eris.Wrap(err, "db: publish")
	}

	table := TableName(l.Name)
	qualified := pgx.Identifier{p.schema, table}.Sanitize()
	columns := Columns(l)

	rows, err := p.copyRows(l)
	if err != nil {
		return 0, err
	}

	defs := make([]string, 0, len(columns)+2)
	defs = append(defs, `"fid" integer PRIMARY KEY`)
	for i, f := range l.Fields {
		defs = append(defs, pgx.Identifier{columns[i+1]}.Sanitize()+" "+sqlType(f.Type))
	}
	defs = append(defs, fmt.Sprintf("%s geometry(Geometry, %d)", pgx.Identifier{geomColumn}.Sanitize(), p.srid))

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: begin publish of %s.%s", p.schema, table)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{
		"DROP TABLE IF EXISTS " + qualified,
		fmt.Sprintf("CREATE TABLE %s (%s)", qualified, strings.Join(defs, ", ")),
	}
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return 0, eris.Wrapf(err, "db: prepare %s.%s", p.schema, table)
		}
	}

	n, err := CopyFromSchema(ctx, tx, p.schema, table, columns, rows, 0)
	if err != nil {
		return 0, err
	}

	idx := pgx.Identifier{"idx_" + table + "_geom"}.Sanitize()
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (%s)", idx, qualified, geomColumn)); err != nil {
		return 0, eris.Wrapf(err, "db: index %s.%s", p.schema, table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: commit publish of %s.%s", p.schema, table)
	}

	zap.L().Info("db: published layer",
		zap.String("component", "db"),
		zap.String("table", p.schema+"."+table),
		zap.Int64("rows", n),
	)
	return n, nil
}

// copyRows encodes the layer's features in Columns order.
func (p *Publisher) copyRows(l *dataset.Layer) ([][]any, error) {
	rows := make([][]any, len(l.Rows))
	for r, row := range l.Rows {
		wkb, err := EncodeEWKB(l.Geometries[r], p.srid)
		if err != nil {
			return nil, eris.Wrapf(err, "db: row %d of %s", r, l.Name)
		}
		out := make([]any, 0, len(row)+2)
		out = append(out, int32(r+1))
		for i, v := range row {
			out = append(out, sqlValue(v, l.Fields[i].Type))
		}
		out = append(out, wkb)
		rows[r] = out
	}
	return rows, nil
}

// TableName is the PostGIS table a layer is published to.
func TableName(layer string) string { return strings.ToLower(layer) }

// Columns returns the COPY column list for a layer: fid, the lower-cased field
// names made unique, then the geometry column.
func Columns(l *dataset.Layer) []string {
	used := map[string]bool{"fid": true, geomColumn: true}
	cols := make([]string, 0, len(l.Fields)+2)
	cols = append(cols, "fid")
	for _, f := range l.Fields {
		base := strings.ToLower(f.Name)
		name := base
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		cols = append(cols, name)
	}
	return append(cols, geomColumn)
}

func sqlType(t dataset.FieldType) string {
	switch t {
	case dataset.TypeFloat:
		return "double precision"
	case dataset.TypeInteger:
		return "bigint"
	default:
		return "text"
	}
}

func sqlValue(v any, t dataset.FieldType) any {
	if v == nil {
		return nil
	}
	switch t {
	case dataset.TypeFloat:
		if f, ok, err := dataset.Float(v); err == nil && ok {
			return f
		}
		return nil
	case dataset.TypeInteger:
		if f, ok, err := dataset.Float(v); err == nil && ok {
			return int64(f)
		}
		return nil
	default:
		return dataset.Text(v)
	}
}
