package sqlgen_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singlefetch/singlefetch/query"
	"github.com/singlefetch/singlefetch/query/sqlgen"
	"github.com/singlefetch/singlefetch/schema"
)

type store struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type product struct {
	ID      int64           `db:"id"`
	Name    string          `db:"name"`
	Price   decimal.Decimal `db:"price"`
	Meta    json.RawMessage `db:"meta"`
	StoreID *int64          `db:"store_id"`
	Store   *store          `db:"-"`
}

var storeEntity = schema.MustRegister(&store{}, schema.Entity{
	Name:  "store",
	Table: "stores",
	Columns: []schema.Column{
		{Name: "id", Kind: schema.Int, PrimaryKey: true},
		{Name: "name", Kind: schema.String},
	},
})

var productEntity = schema.MustRegister(&product{}, schema.Entity{
	Name:  "product",
	Table: "products",
	Columns: []schema.Column{
		{Name: "id", Kind: schema.Int, PrimaryKey: true},
		{Name: "name", Kind: schema.String},
		{Name: "price", Kind: schema.Decimal},
		{Name: "meta", Kind: schema.JSON},
		{Name: "store_id", Kind: schema.Int},
	},
	Relations: []schema.Relation{
		{Name: "store", Column: "store_id", Target: "store", Field: "Store"},
	},
})

func pg(t *testing.T) sqlgen.Generator {
	t.Helper()
	g, err := sqlgen.NewGenerator(sqlgen.Postgres)
	require.NoError(t, err)
	return g
}

const productSelect = `SELECT t0."id" AS "t0_id", t0."name" AS "t0_name", t0."price" AS "t0_price", t0."meta" AS "t0_meta", t0."store_id" AS "t0_store_id" FROM "products" AS t0`

func TestSelectEntities(t *testing.T) {
	g := pg(t)

	t.Run("bare queryset selects every declared column", func(t *testing.T) {
		c, err := g.Select(query.New(productEntity))
		require.NoError(t, err)
		assert.Equal(t, productSelect, c.SQL)
		assert.Empty(t, c.Params)
		require.NotNil(t, c.Plan)
		assert.Equal(t, 0, c.Plan.TableIdx)
		assert.Equal(t, "t0_price", c.Plan.Alias("price"))
	})

	t.Run("filters order and slice", func(t *testing.T) {
		qs := query.New(productEntity).
			Filter("name", query.OpEquals, "Ap's").
			OrderBy("name", false).
			Take(2).
			Skip(1)
		c, err := g.Select(qs)
		require.NoError(t, err)
		assert.Equal(t, productSelect+` WHERE t0."name" = $1 ORDER BY t0."name" ASC LIMIT 2 OFFSET 1`, c.SQL)
		assert.Equal(t, []interface{}{"Ap's"}, c.Params)
	})

	t.Run("multiple conditions join with AND", func(t *testing.T) {
		qs := query.New(productEntity).
			Filter("store_id", query.OpIsNull, false).
			Filter("price", query.OpGreaterThan, decimal.New(10, 0)).
			Filter("name", query.OpContains, "phone")
		c, err := g.Select(qs)
		require.NoError(t, err)
		assert.Equal(t, productSelect+` WHERE t0."store_id" IS NOT NULL AND t0."price" > $1 AND t0."name" LIKE $2`, c.SQL)
		require.Len(t, c.Params, 2)
		assert.Equal(t, "%phone%", c.Params[1])
	})

	t.Run("IN expands one placeholder per candidate", func(t *testing.T) {
		qs := query.New(productEntity).
			Filter("id", query.OpIn, []interface{}{int64(1), int64(2), int64(3)})
		c, err := g.Select(qs)
		require.NoError(t, err)
		assert.Equal(t, productSelect+` WHERE t0."id" IN ($1, $2, $3)`, c.SQL)
		assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, c.Params)
	})

	t.Run("distinct", func(t *testing.T) {
		c, err := g.Select(query.New(productEntity).Distinct())
		require.NoError(t, err)
		assert.Contains(t, c.SQL, "SELECT DISTINCT ")
	})

	t.Run("unknown filter column", func(t *testing.T) {
		_, err := g.Select(query.New(productEntity).Filter("serial", query.OpEquals, 1))
		assert.ErrorIs(t, err, sqlgen.ErrUnknownColumn)
	})
}

func TestSelectRelatedSQL(t *testing.T) {
	g := pg(t)
	c, err := g.Select(query.New(productEntity).SelectRelated("store"))
	require.NoError(t, err)

	want := `SELECT t0."id" AS "t0_id", t0."name" AS "t0_name", t0."price" AS "t0_price", t0."meta" AS "t0_meta", t0."store_id" AS "t0_store_id", t1."id" AS "t1_id", t1."name" AS "t1_name" FROM "products" AS t0 LEFT JOIN "stores" AS t1 ON t1."id" = t0."store_id"`
	assert.Equal(t, want, c.SQL)

	require.NotNil(t, c.Plan)
	require.Len(t, c.Plan.Relations, 1)
	rel := c.Plan.Relations[0]
	assert.Equal(t, "store", rel.Relation.Name)
	assert.Equal(t, storeEntity, rel.Plan.Entity)
	assert.Equal(t, 1, rel.Plan.TableIdx)
	assert.Equal(t, "t1_name", rel.Plan.Alias("name"))

	t.Run("repeated path shares one join", func(t *testing.T) {
		c2, err := g.Select(query.New(productEntity).SelectRelated("store", "store"))
		require.NoError(t, err)
		assert.Equal(t, want, c2.SQL)
	})

	t.Run("unknown relation", func(t *testing.T) {
		_, err := g.Select(query.New(productEntity).SelectRelated("warehouse"))
		assert.ErrorIs(t, err, sqlgen.ErrUnknownRelation)
	})
}

func TestStaticallyEmpty(t *testing.T) {
	g := pg(t)

	cases := []struct {
		name string
		qs   *query.Queryset
	}{
		{"none", query.New(productEntity).None()},
		{"zero limit", query.New(productEntity).Take(0)},
		{"negative limit", query.New(productEntity).Take(-1)},
		{"empty IN", query.New(productEntity).Filter("id", query.OpIn, []interface{}{})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Select(tc.qs)
			assert.ErrorIs(t, err, sqlgen.ErrEmptyResultSet)
			_, err = g.Count(tc.qs)
			assert.ErrorIs(t, err, sqlgen.ErrEmptyResultSet)
			_, err = g.Aggregate(tc.qs, []query.Aggregate{query.Count("n")})
			assert.ErrorIs(t, err, sqlgen.ErrEmptyResultSet)
		})
	}
}

func TestValuesModes(t *testing.T) {
	g := pg(t)

	t.Run("values selects requested columns under plain aliases", func(t *testing.T) {
		c, err := g.Select(query.New(productEntity).Values("name", "price"))
		require.NoError(t, err)
		assert.Equal(t, `SELECT t0."name" AS "name", t0."price" AS "price" FROM "products" AS t0`, c.SQL)
		require.Len(t, c.Columns, 2)
		assert.Equal(t, sqlgen.SelectColumn{Alias: "name", Kind: schema.String}, c.Columns[0])
		assert.Equal(t, sqlgen.SelectColumn{Alias: "price", Kind: schema.Decimal}, c.Columns[1])
		assert.Nil(t, c.Plan)
	})

	t.Run("values with no fields selects every declared column", func(t *testing.T) {
		c, err := g.Select(query.New(productEntity).Values())
		require.NoError(t, err)
		assert.Equal(t, `SELECT t0."id" AS "id", t0."name" AS "name", t0."price" AS "price", t0."meta" AS "meta", t0."store_id" AS "store_id" FROM "products" AS t0`, c.SQL)
	})

	t.Run("flat requires exactly one field", func(t *testing.T) {
		_, err := g.Select(query.New(productEntity).ValuesList("name", "price").Flat())
		assert.ErrorIs(t, err, sqlgen.ErrFlatSingleField)

		c, err := g.Select(query.New(productEntity).ValuesList("name").Flat())
		require.NoError(t, err)
		assert.Equal(t, `SELECT t0."name" AS "name" FROM "products" AS t0`, c.SQL)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := g.Select(query.New(productEntity).Values("serial"))
		assert.ErrorIs(t, err, sqlgen.ErrUnknownColumn)
	})
}

func TestAnnotations(t *testing.T) {
	g := pg(t)

	t.Run("expression references expand to qualified columns", func(t *testing.T) {
		qs := query.New(productEntity).
			Annotate("upper_name", "UPPER({name})", schema.String).
			Values("name", "upper_name")
		c, err := g.Select(qs)
		require.NoError(t, err)
		assert.Equal(t, `SELECT t0."name" AS "name", (UPPER(t0."name")) AS "upper_name" FROM "products" AS t0`, c.SQL)
		assert.Equal(t, sqlgen.SelectColumn{Alias: "upper_name", Kind: schema.String}, c.Columns[1])
	})

	t.Run("entity mode appends annotations after declared columns", func(t *testing.T) {
		qs := query.New(productEntity).Annotate("double_price", "{price} * 2", schema.Decimal)
		c, err := g.Select(qs)
		require.NoError(t, err)
		assert.Equal(t, productSelect+`, (t0."price" * 2) AS "double_price"`, c.SQL)
	})

	t.Run("aggregate annotation groups by the selected columns", func(t *testing.T) {
		qs := query.New(productEntity).
			AnnotateAggregate("n", "COUNT(*)", schema.Int).
			Values("store_id", "n")
		c, err := g.Select(qs)
		require.NoError(t, err)
		assert.Equal(t, `SELECT t0."store_id" AS "store_id", (COUNT(*)) AS "n" FROM "products" AS t0 GROUP BY t0."store_id"`, c.SQL)
	})

	t.Run("ordering by an annotation alias", func(t *testing.T) {
		qs := query.New(productEntity).
			AnnotateAggregate("n", "COUNT(*)", schema.Int).
			Values("store_id", "n").
			OrderBy("n", true)
		c, err := g.Select(qs)
		require.NoError(t, err)
		assert.Equal(t, `SELECT t0."store_id" AS "store_id", (COUNT(*)) AS "n" FROM "products" AS t0 GROUP BY t0."store_id" ORDER BY "n" DESC`, c.SQL)
	})

	t.Run("unknown column reference", func(t *testing.T) {
		qs := query.New(productEntity).Annotate("x", "{serial} + 1", schema.Int)
		_, err := g.Select(qs)
		assert.ErrorIs(t, err, sqlgen.ErrUnknownColumn)
	})
}

func TestCount(t *testing.T) {
	g := pg(t)

	t.Run("plain count clears ordering", func(t *testing.T) {
		qs := query.New(productEntity).OrderBy("name", false)
		c, err := g.Count(qs)
		require.NoError(t, err)
		assert.Equal(t, `SELECT COUNT(*) AS "count" FROM (`+productSelect+`) AS sub`, c.SQL)
		require.Len(t, c.Columns, 1)
		assert.Equal(t, sqlgen.SelectColumn{Alias: "count", Kind: schema.Int}, c.Columns[0])
	})

	t.Run("sliced count keeps ordering and slice", func(t *testing.T) {
		qs := query.New(productEntity).OrderBy("name", false).Take(5)
		c, err := g.Count(qs)
		require.NoError(t, err)
		assert.Equal(t, `SELECT COUNT(*) AS "count" FROM (`+productSelect+` ORDER BY t0."name" ASC LIMIT 5) AS sub`, c.SQL)
	})

	t.Run("count carries the inner params", func(t *testing.T) {
		qs := query.New(productEntity).Filter("name", query.OpEquals, "x")
		c, err := g.Count(qs)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"x"}, c.Params)
	})
}

func TestAggregates(t *testing.T) {
	g := pg(t)

	t.Run("every function over the wrapped queryset", func(t *testing.T) {
		c, err := g.Aggregate(query.New(productEntity), []query.Aggregate{
			query.Count("n"),
			query.Sum("total", "price"),
			query.Avg("avg_id", "id"),
			query.Min("cheapest", "price"),
			query.Max("dearest", "price"),
		})
		require.NoError(t, err)
		assert.Equal(t, `SELECT COUNT(*) AS "n", SUM(sub."t0_price") AS "total", AVG(sub."t0_id") AS "avg_id", MIN(sub."t0_price") AS "cheapest", MAX(sub."t0_price") AS "dearest" FROM (`+productSelect+`) AS sub`, c.SQL)
		want := []sqlgen.SelectColumn{
			{Alias: "n", Kind: schema.Int},
			{Alias: "total", Kind: schema.Decimal},
			{Alias: "avg_id", Kind: schema.Float},
			{Alias: "cheapest", Kind: schema.Decimal},
			{Alias: "dearest", Kind: schema.Decimal},
		}
		assert.Equal(t, want, c.Columns)
	})

	t.Run("values mode aggregates address plain aliases", func(t *testing.T) {
		qs := query.New(productEntity).Values("price")
		c, err := g.Aggregate(qs, []query.Aggregate{query.Sum("total", "price")})
		require.NoError(t, err)
		assert.Equal(t, `SELECT SUM(sub."price") AS "total" FROM (SELECT t0."price" AS "price" FROM "products" AS t0) AS sub`, c.SQL)
	})

	t.Run("no aggregates", func(t *testing.T) {
		_, err := g.Aggregate(query.New(productEntity), nil)
		assert.ErrorIs(t, err, sqlgen.ErrNoAggregates)
	})

	t.Run("duplicate alias", func(t *testing.T) {
		_, err := g.Aggregate(query.New(productEntity), []query.Aggregate{
			query.Count("n"), query.Max("n", "price"),
		})
		assert.ErrorIs(t, err, sqlgen.ErrDuplicateAggregate)
	})

	t.Run("sum without column", func(t *testing.T) {
		_, err := g.Aggregate(query.New(productEntity), []query.Aggregate{
			{Alias: "total", Func: query.AggSum},
		})
		assert.Error(t, err)
	})
}

func TestOffsetWithoutLimit(t *testing.T) {
	qs := query.New(productEntity).Values("name").Skip(3)

	cases := []struct {
		dialect sqlgen.Dialect
		want    string
	}{
		{sqlgen.Postgres, `SELECT t0."name" AS "name" FROM "products" AS t0 OFFSET 3`},
		{sqlgen.SQLite, `SELECT t0."name" AS "name" FROM "products" AS t0 LIMIT -1 OFFSET 3`},
		{sqlgen.MySQL, "SELECT t0.`name` AS `name` FROM `products` AS t0 LIMIT 18446744073709551615 OFFSET 3"},
	}
	for _, tc := range cases {
		t.Run(string(tc.dialect), func(t *testing.T) {
			g, err := sqlgen.NewGenerator(tc.dialect)
			require.NoError(t, err)
			c, err := g.Select(qs)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.SQL)
		})
	}
}

func TestDialectPrimitives(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

	t.Run("postgres", func(t *testing.T) {
		g, err := sqlgen.NewGenerator(sqlgen.Postgres)
		require.NoError(t, err)
		assert.Equal(t, "$4", g.Placeholder(4))
		assert.Equal(t, `"order"`, g.QuoteIdentifier("order"))
		assert.Equal(t, `'Ap''s'`, g.QuoteString("Ap's"))
		assert.Equal(t, `'2024-03-05 10:30:00+00:00'`, g.TimeLiteral(ts))
	})

	t.Run("sqlite", func(t *testing.T) {
		g, err := sqlgen.NewGenerator(sqlgen.SQLite)
		require.NoError(t, err)
		assert.Equal(t, "?", g.Placeholder(4))
		assert.Equal(t, `'Ap''s'`, g.QuoteString("Ap's"))
		assert.Equal(t, `'2024-03-05 10:30:00'`, g.TimeLiteral(ts))
	})

	t.Run("mysql", func(t *testing.T) {
		g, err := sqlgen.NewGenerator(sqlgen.MySQL)
		require.NoError(t, err)
		assert.Equal(t, "?", g.Placeholder(4))
		assert.Equal(t, "`order`", g.QuoteIdentifier("order"))
		assert.Equal(t, `'a\\b''c'`, g.QuoteString(`a\b'c`))
		assert.Equal(t, `'2024-03-05 10:30:00'`, g.TimeLiteral(ts))
	})

	t.Run("unsupported dialect", func(t *testing.T) {
		_, err := sqlgen.NewGenerator("oracle")
		assert.ErrorIs(t, err, sqlgen.ErrUnsupportedDialect)
	})
}

func TestJSONFolding(t *testing.T) {
	cols := []sqlgen.SelectColumn{
		{Alias: "t0_name", Kind: schema.String},
		{Alias: "t0_meta", Kind: schema.JSON},
	}

	t.Run("postgres", func(t *testing.T) {
		g, err := sqlgen.NewGenerator(sqlgen.Postgres)
		require.NoError(t, err)
		assert.Equal(t,
			`(SELECT COALESCE(json_agg(item), '[]') FROM (SELECT 1) item)`,
			g.FoldRows("SELECT 1", cols))
		assert.Equal(t,
			`(SELECT json_build_object('t0_name', obj."t0_name", 't0_meta', obj."t0_meta") FROM (SELECT 1) obj)`,
			g.FoldObject("SELECT 1", cols))
		assert.Equal(t,
			`SELECT json_build_object('0', f0, '1', f1)`,
			g.BatchObject([]string{"0", "1"}, []string{"f0", "f1"}))
	})

	t.Run("sqlite retags json values across subquery boundaries", func(t *testing.T) {
		g, err := sqlgen.NewGenerator(sqlgen.SQLite)
		require.NoError(t, err)
		assert.Equal(t,
			`(SELECT json_group_array(json_object('t0_name', item."t0_name", 't0_meta', json(item."t0_meta"))) FROM (SELECT 1) item)`,
			g.FoldRows("SELECT 1", cols))
		assert.Equal(t,
			`(SELECT json_object('t0_name', obj."t0_name", 't0_meta', json(obj."t0_meta")) FROM (SELECT 1) obj)`,
			g.FoldObject("SELECT 1", cols))
		assert.Equal(t,
			`SELECT json_object('0', json((f0)), '1', json((f1)))`,
			g.BatchObject([]string{"0", "1"}, []string{"f0", "f1"}))
	})

	t.Run("mysql", func(t *testing.T) {
		g, err := sqlgen.NewGenerator(sqlgen.MySQL)
		require.NoError(t, err)
		assert.Equal(t,
			"(SELECT COALESCE(JSON_ARRAYAGG(JSON_OBJECT('t0_name', item.`t0_name`, 't0_meta', item.`t0_meta`)), JSON_ARRAY()) FROM (SELECT 1) item)",
			g.FoldRows("SELECT 1", cols))
		assert.Equal(t,
			"SELECT JSON_OBJECT('0', f0, '1', f1)",
			g.BatchObject([]string{"0", "1"}, []string{"f0", "f1"}))
	})
}
