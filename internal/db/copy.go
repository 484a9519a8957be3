package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultBatchSize = 10000

// CopyFromSchema bulk-inserts rows into schema.table with the COPY protocol,
// batchSize rows at a time (0 = default).
func CopyFromSchema(ctx context.Context, q Querier, schema, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		n, err := q.CopyFrom(ctx, pgx.Identifier{schema, table}, columns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s.%s (batch %d-%d)", schema, table, i, end)
		}
		total += n

		zap.L().Debug("db: batch copied",
			zap.String("component", "db"),
			zap.String("table", schema+"."+table),
			zap.Int("batch_start", i),
			zap.Int64("rows", n),
		)
	}
	return total, nil
}
