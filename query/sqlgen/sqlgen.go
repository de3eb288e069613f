// Package sqlgen compiles querysets into dialect-specific SQL and supplies
// the JSON folding expressions the batch engine wraps around each compiled
// query. Every selected column carries a generated alias (t0_id, t1_name,
// ...per joined table) so the JSON row objects the database emits have
// collision-free keys the rehydrator can address.
package sqlgen

import (
	"fmt"
	"time"

	"github.com/singlefetch/singlefetch/query"
	"github.com/singlefetch/singlefetch/schema"
)

// Dialect names a supported database flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// SelectColumn is one output column of a compiled query: its SQL alias and
// the declared kind that drives coercion after the JSON round trip.
type SelectColumn struct {
	Alias string
	Kind  schema.Kind
}

// RowPlan describes how to rebuild an entity from one JSON row object. The
// plan's table index determines the aliases of its columns; Relations carry
// the plans of joined to-one entities.
type RowPlan struct {
	Entity    *schema.Entity
	TableIdx  int
	Relations []RelatedPlan
}

// RelatedPlan pairs a relation with the plan of its joined entity.
type RelatedPlan struct {
	Relation *schema.Relation
	Plan     *RowPlan
}

// Alias returns the generated alias of one of the plan entity's columns.
func (p *RowPlan) Alias(column string) string {
	return fmt.Sprintf("t%d_%s", p.TableIdx, column)
}

// CompiledSelect is the output of compiling one queryset: parameterized SQL,
// its parameters in placeholder order, the output columns in emission order,
// and, for entity-mode row fetches, the row plan.
type CompiledSelect struct {
	SQL     string
	Params  []interface{}
	Columns []SelectColumn
	Plan    *RowPlan
}

// Generator compiles querysets for one SQL dialect and exposes the quoting
// and JSON-folding primitives the batch engine builds statements with.
type Generator interface {
	Dialect() Dialect

	// Select compiles a queryset per its result mode. It returns
	// ErrEmptyResultSet when the queryset can match no rows by construction.
	Select(qs *query.Queryset) (*CompiledSelect, error)
	// Count compiles the row-count rewrite of a queryset: the queryset is
	// wrapped as a subquery so grouping, distinctness and slicing keep their
	// effect on the counted rows, and ordering is cleared when no slice
	// depends on it.
	Count(qs *query.Queryset) (*CompiledSelect, error)
	// Aggregate compiles named reductions over the queryset's rows, one
	// output column per aggregate.
	Aggregate(qs *query.Queryset, aggs []query.Aggregate) (*CompiledSelect, error)

	// Placeholder returns the parameter marker for the 1-based index i.
	Placeholder(i int) string
	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string
	// QuoteString returns s as a safely quoted string literal.
	QuoteString(s string) string
	// TimeLiteral renders t as a quoted timestamp literal.
	TimeLiteral(t time.Time) string

	// FoldRows wraps a compiled row set so it evaluates to a single JSON
	// array of row objects, '[]' when the query matches nothing.
	FoldRows(sql string, cols []SelectColumn) string
	// FoldObject wraps a compiled single-row select so it evaluates to one
	// JSON object keyed by the select's aliases.
	FoldObject(sql string, cols []SelectColumn) string
	// BatchObject assembles the combined statement: a single SELECT whose
	// one cell is a JSON object mapping each key to its fragment's JSON.
	BatchObject(keys []string, fragments []string) string
}

// NewGenerator returns the SQL generator for a dialect.
func NewGenerator(d Dialect) (Generator, error) {
	switch d {
	case Postgres:
		return &postgresGenerator{}, nil
	case MySQL:
		return &mysqlGenerator{}, nil
	case SQLite:
		return &sqliteGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, d)
	}
}
