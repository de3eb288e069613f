package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singlefetch/singlefetch/batch"
	"github.com/singlefetch/singlefetch/query/sqlgen"
)

func TestDemoBatchCompilesForEveryDialect(t *testing.T) {
	for _, dialect := range []sqlgen.Dialect{sqlgen.Postgres, sqlgen.MySQL, sqlgen.SQLite} {
		t.Run(string(dialect), func(t *testing.T) {
			p, err := batch.Explain(dialect, demoIntents()...)
			require.NoError(t, err)
			require.Len(t, p.Fragments, 5)

			// The last demo intent is the statically empty one.
			assert.True(t, p.Fragments[4].Empty)
			for _, frag := range p.Fragments[:4] {
				assert.NotEmpty(t, frag.SQL)
			}
			assert.NotEmpty(t, p.Statement)
		})
	}
}
