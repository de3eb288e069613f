package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/singlefetch/singlefetch/query"
	"github.com/singlefetch/singlefetch/schema"
)

type sqliteGenerator struct{}

func (g *sqliteGenerator) Dialect() Dialect { return SQLite }

func (g *sqliteGenerator) Select(qs *query.Queryset) (*CompiledSelect, error) {
	return compileSelect(g, qs, selectOpts{})
}

func (g *sqliteGenerator) Count(qs *query.Queryset) (*CompiledSelect, error) {
	return compileCount(g, qs)
}

func (g *sqliteGenerator) Aggregate(qs *query.Queryset, aggs []query.Aggregate) (*CompiledSelect, error) {
	return compileAggregate(g, qs, aggs)
}

func (g *sqliteGenerator) Placeholder(i int) string { return "?" }

func (g *sqliteGenerator) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (g *sqliteGenerator) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (g *sqliteGenerator) TimeLiteral(t time.Time) string {
	return g.QuoteString(t.UTC().Format("2006-01-02 15:04:05"))
}

// FoldRows aggregates rows into a JSON array of objects. Values selected from
// JSON columns arrive as plain text inside a subquery, so they pass through
// json() to keep their structure instead of being embedded as strings.
func (g *sqliteGenerator) FoldRows(sql string, cols []SelectColumn) string {
	pairs := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		ref := "item." + g.QuoteIdentifier(c.Alias)
		if c.Kind == schema.JSON {
			ref = "json(" + ref + ")"
		}
		pairs = append(pairs, g.QuoteString(c.Alias), ref)
	}
	return fmt.Sprintf("(SELECT json_group_array(json_object(%s)) FROM (%s) item)",
		strings.Join(pairs, ", "), sql)
}

func (g *sqliteGenerator) FoldObject(sql string, cols []SelectColumn) string {
	pairs := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		ref := "obj." + g.QuoteIdentifier(c.Alias)
		if c.Kind == schema.JSON {
			ref = "json(" + ref + ")"
		}
		pairs = append(pairs, g.QuoteString(c.Alias), ref)
	}
	return fmt.Sprintf("(SELECT json_object(%s) FROM (%s) obj)",
		strings.Join(pairs, ", "), sql)
}

// BatchObject assembles the enclosing one-row object. Each fragment is
// re-tagged with json() because the JSON subtype does not survive the
// subquery boundary; without it the fragments would nest as quoted strings.
func (g *sqliteGenerator) BatchObject(keys []string, fragments []string) string {
	pairs := make([]string, 0, len(keys)*2)
	for i, key := range keys {
		pairs = append(pairs, g.QuoteString(key), fmt.Sprintf("json((%s))", fragments[i]))
	}
	return fmt.Sprintf("SELECT json_object(%s)", strings.Join(pairs, ", "))
}
