// Package batch combines several independent read queries into a single
// database round trip. Each query compiles to a fragment that evaluates to
// one JSON value; the fragments are folded into one SELECT returning a
// single JSON object, and the response is demultiplexed back into per-query
// typed results. Querysets that can match no rows by construction never
// reach the database: their empty results are substituted locally, and when
// every queryset in a batch is like that, nothing executes at all.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/singlefetch/singlefetch/internal/debug"
	"github.com/singlefetch/singlefetch/query/sqlgen"
)

// Fetch dispatches batches against one database handle.
type Fetch struct {
	q       Querier
	dialect sqlgen.Dialect
}

// Option configures a Fetch.
type Option func(*Fetch)

// WithDialect selects the SQL dialect statements compile to. The default
// is Postgres.
func WithDialect(d sqlgen.Dialect) Option {
	return func(f *Fetch) { f.dialect = d }
}

// NewFetch returns a dispatcher bound to a database handle. The handle is
// only ever read from; *sql.DB and *sql.Tx both satisfy Querier.
func NewFetch(q Querier, opts ...Option) *Fetch {
	f := &Fetch{q: q, dialect: sqlgen.Postgres}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Execute runs the intents in at most one database round trip and returns
// one result per intent, in input order. Position i of the returned slice
// holds intent i's result: []interface{} of entity instances, value maps or
// slices for Rows; int64 for CountOf; the row's shape or nil for
// FirstOrNone; map[string]interface{} for AggregateOf.
//
// Postgres caps json_build_object at 100 arguments, so a single batch can
// carry at most 50 non-empty intents there; the server reports violations,
// they are not checked here.
func (f *Fetch) Execute(ctx context.Context, intents ...Intent) ([]interface{}, error) {
	g, err := sqlgen.NewGenerator(f.dialect)
	if err != nil {
		return nil, err
	}

	results := make([]interface{}, len(intents))
	frags := make([]*fragment, 0, len(intents))
	for i, in := range intents {
		frag, err := compileFragment(g, i, in)
		if errors.Is(err, sqlgen.ErrEmptyResultSet) {
			results[i] = emptyResult(in)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("intent %d: %w", i, err)
		}
		debug.Debug("compiled fragment", "position", frag.pos, "sql", frag.sql)
		frags = append(frags, frag)
	}

	if len(frags) == 0 {
		debug.Debug("batch is statically empty, skipping execution", "intents", len(intents))
		return results, nil
	}

	raw, err := runBatch(ctx, f.q, buildStatement(g, frags))
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: batch cell is not a JSON object: %v", ErrUnsupportedShape, err)
	}

	for _, frag := range frags {
		payload, ok := top[frag.key]
		if !ok {
			return nil, fmt.Errorf("%w: key %q missing from batch response", ErrUnsupportedShape, frag.key)
		}
		r, err := rehydrateFragment(frag, payload)
		if err != nil {
			return nil, fmt.Errorf("intent %d: %w", frag.pos, err)
		}
		results[frag.pos] = r
	}
	return results, nil
}
