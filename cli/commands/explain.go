package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/singlefetch/singlefetch/batch"
	"github.com/singlefetch/singlefetch/cli/internal/config"
	"github.com/singlefetch/singlefetch/query"
	"github.com/singlefetch/singlefetch/query/sqlgen"
	"github.com/singlefetch/singlefetch/schema"
)

// The explain command compiles a fixed demonstration batch so the generated
// SQL can be inspected for any dialect without declaring entities or
// connecting anywhere.

type customer struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type order struct {
	ID         int64           `db:"id"`
	Reference  uuid.UUID       `db:"reference"`
	Status     string          `db:"status"`
	Total      decimal.Decimal `db:"total"`
	PlacedAt   time.Time       `db:"placed_at"`
	CustomerID *int64          `db:"customer_id"`
	Customer   *customer       `db:"-"`
}

var customerEntity = schema.MustRegister(&customer{}, schema.Entity{
	Name:  "customer",
	Table: "customers",
	Columns: []schema.Column{
		{Name: "id", Kind: schema.Int, PrimaryKey: true},
		{Name: "name", Kind: schema.String},
	},
})

var orderEntity = schema.MustRegister(&order{}, schema.Entity{
	Name:  "order",
	Table: "orders",
	Columns: []schema.Column{
		{Name: "id", Kind: schema.Int, PrimaryKey: true},
		{Name: "reference", Kind: schema.UUID},
		{Name: "status", Kind: schema.String},
		{Name: "total", Kind: schema.Decimal},
		{Name: "placed_at", Kind: schema.DateTime},
		{Name: "customer_id", Kind: schema.Int},
	},
	Relations: []schema.Relation{
		{Name: "customer", Column: "customer_id", Target: "customer", Field: "Customer"},
	},
})

// NewExplainCommand creates the explain command.
func NewExplainCommand() *cobra.Command {
	var dialect string

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the SQL a demonstration batch would execute",
		Long: `Compile a demonstration batch for the configured dialect and print each
fragment together with the combined single-statement form.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if dialect == "" {
				dialect = cfg.Dialect
			}
			return runExplain(sqlgen.Dialect(dialect))
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "", "SQL dialect: postgres, mysql or sqlite (defaults to config)")

	return cmd
}

func runExplain(dialect sqlgen.Dialect) error {
	p, err := batch.Explain(dialect, demoIntents()...)
	if err != nil {
		return err
	}

	heading := color.New(color.FgCyan, color.Bold)
	for _, frag := range p.Fragments {
		heading.Printf("-- fragment %d\n", frag.Position)
		if frag.Empty {
			fmt.Println("(statically empty: answered without the database)")
		} else {
			fmt.Println(frag.SQL)
		}
		fmt.Println()
	}

	heading.Println("-- combined statement")
	if p.Statement == "" {
		fmt.Println("(every fragment is statically empty: no round trip)")
		return nil
	}
	fmt.Println(p.Statement)
	return nil
}

func demoIntents() []batch.Intent {
	recent := query.New(orderEntity).
		Filter("status", query.OpIn, []interface{}{"paid", "shipped"}).
		SelectRelated("customer").
		OrderBy("placed_at", true).
		Take(10)

	return []batch.Intent{
		batch.Rows(recent),
		batch.CountOf(query.New(orderEntity)),
		batch.FirstOrNone(query.New(customerEntity).Filter("name", query.OpEquals, "Ada")),
		batch.AggregateOf(query.New(orderEntity),
			query.Count("n"),
			query.Sum("revenue", "total")),
		batch.Rows(query.New(orderEntity).None()),
	}
}
