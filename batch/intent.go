package batch

import "github.com/singlefetch/singlefetch/query"

// intentKind tags the result shape an intent demultiplexes into.
type intentKind int

const (
	kindRows intentKind = iota
	kindCount
	kindFirstOrNone
	kindAggregate
)

// Intent pairs a queryset with the shape of result wanted from it. A batch
// is an ordered list of intents; each contributes exactly one position to
// the result list, whether or not it touches the database.
type Intent struct {
	kind intentKind
	qs   *query.Queryset
	aggs []query.Aggregate
}

// Rows requests the queryset's rows in the shape of its result mode:
// entity instances, value maps, value slices, or a flat value list.
func Rows(qs *query.Queryset) Intent {
	return Intent{kind: kindRows, qs: qs}
}

// CountOf requests the number of rows the queryset matches, as an int64.
func CountOf(qs *query.Queryset) Intent {
	return Intent{kind: kindCount, qs: qs}
}

// FirstOrNone requests the queryset's first row, or nil when it matches
// nothing. Any wider row cap on the queryset is narrowed to one.
func FirstOrNone(qs *query.Queryset) Intent {
	return Intent{kind: kindFirstOrNone, qs: qs}
}

// AggregateOf requests named reductions over the queryset's rows as a map
// keyed by aggregate alias. Over an empty queryset, counts come back 0 and
// every other function nil.
func AggregateOf(qs *query.Queryset, aggs ...query.Aggregate) Intent {
	return Intent{kind: kindAggregate, qs: qs, aggs: aggs}
}
