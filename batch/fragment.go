package batch

import (
	"fmt"
	"strconv"

	"github.com/singlefetch/singlefetch/query/sqlgen"
)

// fragment is one compiled member of a batch: a literal-inlined SQL
// expression that evaluates to a single JSON value, keyed by the intent's
// position in the input list.
type fragment struct {
	pos      int
	key      string
	sql      string
	intent   Intent
	compiled *sqlgen.CompiledSelect
}

// compileFragment compiles an intent into an embeddable JSON-valued
// expression. It returns sqlgen.ErrEmptyResultSet when the queryset can
// match no rows by construction; such intents contribute their empty result
// without ever joining the combined statement.
func compileFragment(g sqlgen.Generator, position int, in Intent) (*fragment, error) {
	if in.qs == nil {
		return nil, fmt.Errorf("intent %d has no queryset", position)
	}

	var (
		compiled *sqlgen.CompiledSelect
		err      error
	)
	switch in.kind {
	case kindRows:
		compiled, err = g.Select(in.qs)
	case kindCount:
		compiled, err = g.Count(in.qs)
	case kindFirstOrNone:
		// A zero or negative cap empties the queryset before the
		// narrowing below could widen it back to one row.
		if n, ok := in.qs.Limit(); ok && n <= 0 {
			return nil, sqlgen.ErrEmptyResultSet
		}
		compiled, err = g.Select(in.qs.Take(1))
	case kindAggregate:
		compiled, err = g.Aggregate(in.qs, in.aggs)
	default:
		return nil, fmt.Errorf("unknown intent kind %d", in.kind)
	}
	if err != nil {
		return nil, err
	}

	sqlText, err := inlineLiterals(g, compiled.SQL, compiled.Params)
	if err != nil {
		return nil, err
	}

	var expr string
	switch in.kind {
	case kindRows:
		expr = g.FoldRows(sqlText, compiled.Columns)
	case kindCount:
		// Single row, single numeric column: embeddable as a bare scalar
		// subquery, no JSON folding needed.
		expr = "(" + sqlText + ")"
	case kindFirstOrNone, kindAggregate:
		expr = g.FoldObject(sqlText, compiled.Columns)
	}

	return &fragment{
		pos:      position,
		key:      strconv.Itoa(position),
		sql:      expr,
		intent:   in,
		compiled: compiled,
	}, nil
}
