package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/singlefetch/singlefetch/internal/debug"
)

// Querier is the database handle a batch executes against. *sql.DB,
// *sql.Tx and *sql.Conn all satisfy it.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// runBatch executes the combined statement and returns the raw JSON of its
// single cell. Failures wrap ErrBatchFailed; the statement serves every
// queryset in the batch, so errors carry no per-queryset attribution.
func runBatch(ctx context.Context, q Querier, stmt string) (json.RawMessage, error) {
	debug.Debug("executing batch", "sql", stmt)

	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return nil, batchErr(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, batchErr(err)
		}
		return nil, fmt.Errorf("%w: statement produced no row", ErrBatchFailed)
	}
	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, batchErr(err)
	}
	if err := rows.Close(); err != nil {
		return nil, batchErr(err)
	}
	return json.RawMessage(raw), nil
}

func batchErr(err error) error {
	if code := sqlState(err); code != "" {
		return fmt.Errorf("%w (SQLSTATE %s): %w", ErrBatchFailed, code, err)
	}
	return fmt.Errorf("%w: %w", ErrBatchFailed, err)
}

// sqlState extracts the SQLSTATE code from a driver error. Both lib/pq and
// pgx errors expose it through the same method; other drivers report no
// code.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	var e sqlStateErr
	if errors.As(err, &e) {
		return e.SQLState()
	}
	return ""
}
