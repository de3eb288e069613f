package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/singlefetch/singlefetch/query/sqlgen"
)

// encodeLiteral renders one query parameter as a SQL literal. Combining
// several queries into one statement leaves no way to pass per-query
// parameter lists, so every parameter is inlined, and only types with an
// unambiguous safe encoding are allowed through.
func encodeLiteral(g sqlgen.Generator, v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return g.QuoteString(t), nil
	case uuid.UUID:
		return g.QuoteString(t.String()), nil
	case time.Time:
		return g.TimeLiteral(t), nil
	case int:
		return strconv.FormatInt(int64(t), 10), nil
	case int8:
		return strconv.FormatInt(int64(t), 10), nil
	case int16:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedParamType, v)
	}
}

// inlineLiterals substitutes a compiled query's placeholders with encoded
// literals, yielding SQL that executes without a parameter list.
func inlineLiterals(g sqlgen.Generator, sql string, params []interface{}) (string, error) {
	if len(params) == 0 {
		return sql, nil
	}
	literals := make([]string, len(params))
	for i, p := range params {
		lit, err := encodeLiteral(g, p)
		if err != nil {
			return "", err
		}
		literals[i] = lit
	}
	if g.Dialect() == sqlgen.Postgres {
		return inlineNumbered(sql, literals), nil
	}
	return inlineOrdinal(sql, literals)
}

// inlineNumbered replaces $N markers. Highest first, so $1 never matches
// the front of $10.
func inlineNumbered(sql string, literals []string) string {
	for i := len(literals); i >= 1; i-- {
		sql = strings.ReplaceAll(sql, "$"+strconv.Itoa(i), literals[i-1])
	}
	return sql
}

// inlineOrdinal replaces ? markers in order of appearance, skipping quoted
// regions so question marks inside string literals and quoted identifiers
// survive.
func inlineOrdinal(sql string, literals []string) (string, error) {
	var b strings.Builder
	b.Grow(len(sql))

	var quote rune // active quote character, 0 outside quoted regions
	next := 0
	for _, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			b.WriteRune(r)
		case r == '\'' || r == '"' || r == '`':
			quote = r
			b.WriteRune(r)
		case r == '?':
			if next >= len(literals) {
				return "", fmt.Errorf("query has more placeholders than parameters")
			}
			b.WriteString(literals[next])
			next++
		default:
			b.WriteRune(r)
		}
	}
	if next != len(literals) {
		return "", fmt.Errorf("query has %d placeholders for %d parameters", next, len(literals))
	}
	return b.String(), nil
}
