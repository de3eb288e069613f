// Package query builds the logical read queries that singlefetch batches.
// A Queryset is an immutable description of one SELECT against a registered
// entity; every builder method returns a copy, so narrowing a queryset for
// one intent never disturbs the caller's value.
package query

import (
	"github.com/singlefetch/singlefetch/schema"
)

// Op enumerates the comparison operators a filter condition can use.
type Op int

const (
	OpEquals Op = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpIsNull
	OpContains
)

// Condition is a single WHERE clause predicate. For OpIn, Value holds a
// []interface{} of candidates; an empty slice makes the whole query
// statically empty. For OpIsNull, Value holds a bool.
type Condition struct {
	Column string
	Op     Op
	Value  interface{}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Annotation attaches a computed column to every result row. Expr is a SQL
// expression in which {column} references expand to the qualified base-table
// column. Kind declares the coercion applied to the value after the JSON
// round trip. Aggregate marks expressions containing an aggregate function;
// they group the query by its non-aggregate selected columns.
type Annotation struct {
	Alias     string
	Expr      string
	Kind      schema.Kind
	Aggregate bool
}

// AggregateFunc enumerates the reduction functions usable in an aggregate
// intent.
type AggregateFunc int

const (
	AggCount AggregateFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// Aggregate is one named reduction over the queryset's rows. Column is empty
// for COUNT(*).
type Aggregate struct {
	Alias  string
	Func   AggregateFunc
	Column string
}

// Count builds a COUNT(*) aggregate.
func Count(alias string) Aggregate { return Aggregate{Alias: alias, Func: AggCount} }

// Sum builds a SUM aggregate over a column.
func Sum(alias, column string) Aggregate {
	return Aggregate{Alias: alias, Func: AggSum, Column: column}
}

// Avg builds an AVG aggregate over a column.
func Avg(alias, column string) Aggregate {
	return Aggregate{Alias: alias, Func: AggAvg, Column: column}
}

// Min builds a MIN aggregate over a column.
func Min(alias, column string) Aggregate {
	return Aggregate{Alias: alias, Func: AggMin, Column: column}
}

// Max builds a MAX aggregate over a column.
func Max(alias, column string) Aggregate {
	return Aggregate{Alias: alias, Func: AggMax, Column: column}
}

// ResultMode selects the shape rows rehydrate into.
type ResultMode int

const (
	// ModeEntities rebuilds full entity instances with relations attached.
	ModeEntities ResultMode = iota
	// ModeValues yields one map per row keyed by the requested field names.
	ModeValues
	// ModeValuesList yields one value slice per row.
	ModeValuesList
	// ModeFlatValuesList yields the single requested field as a flat slice.
	ModeFlatValuesList
)

// KnownRelation carries caller-supplied candidate instances for a relation.
// During rehydration each row's foreign key is looked up among the
// candidates; a matching instance is attached instead of building a fresh
// one, and rows whose key has no candidate keep a nil relation.
type KnownRelation struct {
	Relation   string
	Candidates []interface{}
}

// Queryset describes one logical SELECT. Build it with New and the chainable
// methods; it is compiled and executed by the batch package.
type Queryset struct {
	entity      *schema.Entity
	conds       []Condition
	orderBy     []Order
	limit       *int
	offset      *int
	distinct    bool
	none        bool
	related     []string
	mode        ResultMode
	fields      []string
	annotations []Annotation
	known       []KnownRelation
}

// New returns an unfiltered queryset over a registered entity.
func New(e *schema.Entity) *Queryset {
	return &Queryset{entity: e}
}

func (q *Queryset) clone() *Queryset {
	c := *q
	c.conds = append([]Condition(nil), q.conds...)
	c.orderBy = append([]Order(nil), q.orderBy...)
	c.related = append([]string(nil), q.related...)
	c.fields = append([]string(nil), q.fields...)
	c.annotations = append([]Annotation(nil), q.annotations...)
	c.known = append([]KnownRelation(nil), q.known...)
	if q.limit != nil {
		v := *q.limit
		c.limit = &v
	}
	if q.offset != nil {
		v := *q.offset
		c.offset = &v
	}
	return &c
}

// Filter adds a WHERE predicate.
func (q *Queryset) Filter(column string, op Op, value interface{}) *Queryset {
	c := q.clone()
	c.conds = append(c.conds, Condition{Column: column, Op: op, Value: value})
	return c
}

// OrderBy appends an ORDER BY term.
func (q *Queryset) OrderBy(column string, desc bool) *Queryset {
	c := q.clone()
	c.orderBy = append(c.orderBy, Order{Column: column, Desc: desc})
	return c
}

// Take caps the number of rows returned.
func (q *Queryset) Take(n int) *Queryset {
	c := q.clone()
	c.limit = &n
	return c
}

// Skip drops the first n rows.
func (q *Queryset) Skip(n int) *Queryset {
	c := q.clone()
	c.offset = &n
	return c
}

// Distinct deduplicates result rows.
func (q *Queryset) Distinct() *Queryset {
	c := q.clone()
	c.distinct = true
	return c
}

// None marks the queryset as matching no rows. It compiles to nothing and
// contributes its empty result without touching the database.
func (q *Queryset) None() *Queryset {
	c := q.clone()
	c.none = true
	return c
}

// SelectRelated joins the named to-one relations so their entities are
// rebuilt alongside each row. Nested relations chain with double
// underscores, e.g. "category__store".
func (q *Queryset) SelectRelated(paths ...string) *Queryset {
	c := q.clone()
	c.related = append(c.related, paths...)
	return c
}

// Values switches the queryset to ModeValues over the given fields (declared
// columns or annotation aliases). With no fields, every declared column is
// included.
func (q *Queryset) Values(fields ...string) *Queryset {
	c := q.clone()
	c.mode = ModeValues
	c.fields = append([]string(nil), fields...)
	return c
}

// ValuesList switches the queryset to ModeValuesList over the given fields.
func (q *Queryset) ValuesList(fields ...string) *Queryset {
	c := q.clone()
	c.mode = ModeValuesList
	c.fields = append([]string(nil), fields...)
	return c
}

// Flat narrows a single-field ValuesList to a flat slice of values.
// Compilation fails when more than one field is selected.
func (q *Queryset) Flat() *Queryset {
	c := q.clone()
	c.mode = ModeFlatValuesList
	return c
}

// Annotate attaches a computed column.
func (q *Queryset) Annotate(alias, expr string, kind schema.Kind) *Queryset {
	c := q.clone()
	c.annotations = append(c.annotations, Annotation{Alias: alias, Expr: expr, Kind: kind})
	return c
}

// AnnotateAggregate attaches a computed column whose expression aggregates,
// grouping the query by its non-aggregate selected columns.
func (q *Queryset) AnnotateAggregate(alias, expr string, kind schema.Kind) *Queryset {
	c := q.clone()
	c.annotations = append(c.annotations, Annotation{Alias: alias, Expr: expr, Kind: kind, Aggregate: true})
	return c
}

// WithKnownRelated supplies candidate instances for a relation. Rows whose
// foreign key matches a candidate's primary key get that instance attached;
// rows without a match keep a nil relation, which is expected when the
// queryset is a union whose parts carry different candidates.
func (q *Queryset) WithKnownRelated(relation string, candidates ...interface{}) *Queryset {
	c := q.clone()
	c.known = append(c.known, KnownRelation{Relation: relation, Candidates: candidates})
	return c
}

// Entity returns the queried entity's metadata.
func (q *Queryset) Entity() *schema.Entity { return q.entity }

// Conditions returns the WHERE predicates in order of addition.
func (q *Queryset) Conditions() []Condition { return q.conds }

// Ordering returns the ORDER BY terms.
func (q *Queryset) Ordering() []Order { return q.orderBy }

// Limit reports the row cap, if set.
func (q *Queryset) Limit() (int, bool) {
	if q.limit == nil {
		return 0, false
	}
	return *q.limit, true
}

// Offset reports the row offset, if set.
func (q *Queryset) Offset() (int, bool) {
	if q.offset == nil {
		return 0, false
	}
	return *q.offset, true
}

// IsDistinct reports whether rows are deduplicated.
func (q *Queryset) IsDistinct() bool { return q.distinct }

// IsNone reports whether the queryset was marked as matching no rows.
func (q *Queryset) IsNone() bool { return q.none }

// Related returns the requested relation paths.
func (q *Queryset) Related() []string { return q.related }

// Mode returns the result shape rows rehydrate into.
func (q *Queryset) Mode() ResultMode { return q.mode }

// Fields returns the fields selected by Values or ValuesList.
func (q *Queryset) Fields() []string { return q.fields }

// Annotations returns the attached computed columns.
func (q *Queryset) Annotations() []Annotation { return q.annotations }

// KnownRelations returns the caller-supplied relation candidates.
func (q *Queryset) KnownRelations() []KnownRelation { return q.known }

// HasAggregateAnnotation reports whether any annotation aggregates, which
// forces GROUP BY emission and subquery wrapping when the queryset is
// counted.
func (q *Queryset) HasAggregateAnnotation() bool {
	for _, a := range q.annotations {
		if a.Aggregate {
			return true
		}
	}
	return false
}
