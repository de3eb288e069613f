package batch

import (
	"errors"
	"strconv"

	"github.com/singlefetch/singlefetch/query/sqlgen"
)

// Preview describes what a batch of intents would execute, without touching
// a database.
type Preview struct {
	// Fragments holds one entry per intent, in input order.
	Fragments []FragmentPreview
	// Statement is the combined SQL the batch would run, or "" when every
	// fragment is statically empty and no round trip would happen.
	Statement string
}

// FragmentPreview is the compiled form of a single intent.
type FragmentPreview struct {
	Position int
	Key      string
	// SQL is the fragment as it appears inside the combined statement.
	// Empty fragments have no SQL.
	SQL   string
	Empty bool
}

// Explain compiles intents for the given dialect and reports the
// per-fragment SQL alongside the combined statement Execute would send.
// Statically empty intents are marked rather than compiled, exactly as
// Execute would skip them.
func Explain(dialect sqlgen.Dialect, intents ...Intent) (*Preview, error) {
	g, err := sqlgen.NewGenerator(dialect)
	if err != nil {
		return nil, err
	}

	p := &Preview{Fragments: make([]FragmentPreview, 0, len(intents))}
	frags := make([]*fragment, 0, len(intents))
	for i, in := range intents {
		frag, err := compileFragment(g, i, in)
		if err != nil {
			if errors.Is(err, sqlgen.ErrEmptyResultSet) {
				p.Fragments = append(p.Fragments, FragmentPreview{
					Position: i,
					Key:      strconv.Itoa(i),
					Empty:    true,
				})
				continue
			}
			return nil, err
		}
		p.Fragments = append(p.Fragments, FragmentPreview{
			Position: frag.pos,
			Key:      frag.key,
			SQL:      frag.sql,
		})
		frags = append(frags, frag)
	}

	if len(frags) > 0 {
		p.Statement = buildStatement(g, frags)
	}
	return p, nil
}
