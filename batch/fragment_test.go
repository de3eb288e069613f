package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singlefetch/singlefetch/query"
	"github.com/singlefetch/singlefetch/query/sqlgen"
	"github.com/singlefetch/singlefetch/schema"
)

type track struct {
	ID     int64   `db:"id"`
	Title  string  `db:"title"`
	Length float64 `db:"length"`
}

var trackEntity = schema.MustRegister(&track{}, schema.Entity{
	Name:  "track",
	Table: "tracks",
	Columns: []schema.Column{
		{Name: "id", Kind: schema.Int, PrimaryKey: true},
		{Name: "title", Kind: schema.String},
		{Name: "length", Kind: schema.Float},
	},
})

const trackSelect = `SELECT t0."id" AS "t0_id", t0."title" AS "t0_title", t0."length" AS "t0_length" FROM "tracks" AS t0`

func TestCompileFragment(t *testing.T) {
	g := generator(t, sqlgen.Postgres)

	t.Run("rows fold into a JSON array with literals inlined", func(t *testing.T) {
		qs := query.New(trackEntity).Filter("title", query.OpEquals, "Ap's")
		frag, err := compileFragment(g, 3, Rows(qs))
		require.NoError(t, err)
		assert.Equal(t, "3", frag.key)
		assert.Equal(t, 3, frag.pos)
		assert.Equal(t,
			`(SELECT COALESCE(json_agg(item), '[]') FROM (`+trackSelect+` WHERE t0."title" = 'Ap''s') item)`,
			frag.sql)
	})

	t.Run("counts embed as bare scalar subqueries", func(t *testing.T) {
		frag, err := compileFragment(g, 0, CountOf(query.New(trackEntity)))
		require.NoError(t, err)
		assert.Equal(t,
			`(SELECT COUNT(*) AS "count" FROM (`+trackSelect+`) AS sub)`,
			frag.sql)
	})

	t.Run("first-or-none narrows to one row and folds into an object", func(t *testing.T) {
		frag, err := compileFragment(g, 0, FirstOrNone(query.New(trackEntity).Take(5)))
		require.NoError(t, err)
		assert.Equal(t,
			`(SELECT json_build_object('t0_id', obj."t0_id", 't0_title', obj."t0_title", 't0_length', obj."t0_length") FROM (`+trackSelect+` LIMIT 1) obj)`,
			frag.sql)
	})

	t.Run("first-or-none over an emptied queryset stays empty", func(t *testing.T) {
		_, err := compileFragment(g, 0, FirstOrNone(query.New(trackEntity).Take(0)))
		assert.ErrorIs(t, err, sqlgen.ErrEmptyResultSet)
	})

	t.Run("aggregates fold into an object keyed by alias", func(t *testing.T) {
		frag, err := compileFragment(g, 0, AggregateOf(query.New(trackEntity),
			query.Count("n"), query.Max("longest", "length")))
		require.NoError(t, err)
		assert.Equal(t,
			`(SELECT json_build_object('n', obj."n", 'longest', obj."longest") FROM (SELECT COUNT(*) AS "n", MAX(sub."t0_length") AS "longest" FROM (`+trackSelect+`) AS sub) obj)`,
			frag.sql)
	})

	t.Run("statically empty querysets refuse compilation", func(t *testing.T) {
		empty := query.New(trackEntity).None()
		for _, in := range []Intent{Rows(empty), CountOf(empty), FirstOrNone(empty), AggregateOf(empty, query.Count("n"))} {
			_, err := compileFragment(g, 0, in)
			assert.ErrorIs(t, err, sqlgen.ErrEmptyResultSet)
		}
	})

	t.Run("unencodable parameters abort", func(t *testing.T) {
		qs := query.New(trackEntity).Filter("title", query.OpEquals, true)
		_, err := compileFragment(g, 0, Rows(qs))
		assert.ErrorIs(t, err, ErrUnsupportedParamType)
	})
}

func TestBuildStatement(t *testing.T) {
	g := generator(t, sqlgen.Postgres)

	t.Run("keys keep input positions when empties are skipped", func(t *testing.T) {
		f0, err := compileFragment(g, 0, CountOf(query.New(trackEntity)))
		require.NoError(t, err)
		f2, err := compileFragment(g, 2, CountOf(query.New(trackEntity)))
		require.NoError(t, err)

		stmt := buildStatement(g, []*fragment{f0, f2})
		assert.Equal(t,
			`SELECT json_build_object('0', `+f0.sql+`, '2', `+f2.sql+`)`,
			stmt)
	})
}
