package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/singlefetch/singlefetch/query"
)

type postgresGenerator struct{}

func (g *postgresGenerator) Dialect() Dialect { return Postgres }

func (g *postgresGenerator) Select(qs *query.Queryset) (*CompiledSelect, error) {
	return compileSelect(g, qs, selectOpts{})
}

func (g *postgresGenerator) Count(qs *query.Queryset) (*CompiledSelect, error) {
	return compileCount(g, qs)
}

func (g *postgresGenerator) Aggregate(qs *query.Queryset, aggs []query.Aggregate) (*CompiledSelect, error) {
	return compileAggregate(g, qs, aggs)
}

func (g *postgresGenerator) Placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

func (g *postgresGenerator) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (g *postgresGenerator) QuoteString(s string) string {
	return pq.QuoteLiteral(s)
}

func (g *postgresGenerator) TimeLiteral(t time.Time) string {
	return pq.QuoteLiteral(t.Format("2006-01-02 15:04:05.999999-07:00"))
}

// FoldRows turns a row-returning select into a single value: a JSON array of
// one object per row. COALESCE covers the zero-row case, where json_agg
// yields SQL NULL rather than an empty array.
func (g *postgresGenerator) FoldRows(sql string, cols []SelectColumn) string {
	return fmt.Sprintf("(SELECT COALESCE(json_agg(item), '[]') FROM (%s) item)", sql)
}

// FoldObject turns a single-row select into one JSON object, or SQL NULL
// when the select matches no rows.
func (g *postgresGenerator) FoldObject(sql string, cols []SelectColumn) string {
	pairs := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		pairs = append(pairs, g.QuoteString(c.Alias), "obj."+g.QuoteIdentifier(c.Alias))
	}
	return fmt.Sprintf("(SELECT json_build_object(%s) FROM (%s) obj)",
		strings.Join(pairs, ", "), sql)
}

func (g *postgresGenerator) BatchObject(keys []string, fragments []string) string {
	pairs := make([]string, 0, len(keys)*2)
	for i, key := range keys {
		pairs = append(pairs, g.QuoteString(key), fragments[i])
	}
	return fmt.Sprintf("SELECT json_build_object(%s)", strings.Join(pairs, ", "))
}
