package sqlgen

import "errors"

var (
	// ErrEmptyResultSet marks a query that can match no rows by
	// construction, e.g. an IN filter over zero candidates or a zero-row
	// limit. It is a compilation outcome, not a failure: callers substitute
	// the query's empty result without executing anything.
	ErrEmptyResultSet = errors.New("query matches no rows by construction")

	ErrUnknownColumn      = errors.New("unknown column")
	ErrUnknownRelation    = errors.New("unknown relation")
	ErrInvalidCondition   = errors.New("invalid condition")
	ErrFlatSingleField    = errors.New("flat values list takes exactly one field")
	ErrNoAggregates       = errors.New("aggregate requires at least one function")
	ErrDuplicateAggregate = errors.New("duplicate aggregate alias")
	ErrUnsupportedDialect = errors.New("unsupported dialect")
)
