package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/singlefetch/singlefetch/query"
)

type mysqlGenerator struct{}

func (g *mysqlGenerator) Dialect() Dialect { return MySQL }

func (g *mysqlGenerator) Select(qs *query.Queryset) (*CompiledSelect, error) {
	return compileSelect(g, qs, selectOpts{})
}

func (g *mysqlGenerator) Count(qs *query.Queryset) (*CompiledSelect, error) {
	return compileCount(g, qs)
}

func (g *mysqlGenerator) Aggregate(qs *query.Queryset, aggs []query.Aggregate) (*CompiledSelect, error) {
	return compileAggregate(g, qs, aggs)
}

func (g *mysqlGenerator) Placeholder(i int) string { return "?" }

func (g *mysqlGenerator) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteString escapes for the default sql_mode, where backslash is an escape
// character inside string literals.
func (g *mysqlGenerator) QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`''`)
		case '\\':
			b.WriteString(`\\`)
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0x1a:
			b.WriteString(`\Z`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func (g *mysqlGenerator) TimeLiteral(t time.Time) string {
	return g.QuoteString(t.UTC().Format("2006-01-02 15:04:05.999999"))
}

// FoldRows aggregates rows into a JSON array of objects. JSON_ARRAYAGG
// returns SQL NULL for an empty set, so COALESCE substitutes the empty
// array. MySQL does not define the aggregation order of JSON_ARRAYAGG; the
// inner ORDER BY holds in practice for single-table derived tables but is
// not contractual.
func (g *mysqlGenerator) FoldRows(sql string, cols []SelectColumn) string {
	pairs := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		pairs = append(pairs, g.QuoteString(c.Alias), "item."+g.QuoteIdentifier(c.Alias))
	}
	return fmt.Sprintf("(SELECT COALESCE(JSON_ARRAYAGG(JSON_OBJECT(%s)), JSON_ARRAY()) FROM (%s) item)",
		strings.Join(pairs, ", "), sql)
}

func (g *mysqlGenerator) FoldObject(sql string, cols []SelectColumn) string {
	pairs := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		pairs = append(pairs, g.QuoteString(c.Alias), "obj."+g.QuoteIdentifier(c.Alias))
	}
	return fmt.Sprintf("(SELECT JSON_OBJECT(%s) FROM (%s) obj)",
		strings.Join(pairs, ", "), sql)
}

func (g *mysqlGenerator) BatchObject(keys []string, fragments []string) string {
	pairs := make([]string, 0, len(keys)*2)
	for i, key := range keys {
		pairs = append(pairs, g.QuoteString(key), fragments[i])
	}
	return fmt.Sprintf("SELECT JSON_OBJECT(%s)", strings.Join(pairs, ", "))
}
