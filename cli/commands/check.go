package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/singlefetch/singlefetch/cli/internal/config"
	"github.com/singlefetch/singlefetch/query/sqlgen"
	"github.com/singlefetch/singlefetch/runtime/client"
)

// Servers older than these floors lack the JSON functions the combined
// statement is built from (json_agg, json_group_array, JSON_ARRAYAGG).
var versionFloors = map[sqlgen.Dialect]string{
	sqlgen.Postgres: "9.4",
	sqlgen.SQLite:   "3.38",
	sqlgen.MySQL:    "5.7",
}

var versionQueries = map[sqlgen.Dialect]string{
	sqlgen.Postgres: "SHOW server_version",
	sqlgen.SQLite:   "SELECT sqlite_version()",
	sqlgen.MySQL:    "SELECT VERSION()",
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var (
		dsn     string
		dialect string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the configured server supports JSON batching",
		Long: `Connect to the configured database and verify the server version meets
the JSON-function floor for its dialect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.DatabaseURL
			}
			if dialect == "" {
				dialect = cfg.Dialect
			}
			return runCheck(cmd.Context(), sqlgen.Dialect(dialect), dsn)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "database connection string (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&dialect, "dialect", "", "SQL dialect: postgres, mysql or sqlite (defaults to config)")

	return cmd
}

func runCheck(ctx context.Context, dialect sqlgen.Dialect, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("no connection string: pass --dsn or set DATABASE_URL")
	}
	floor, ok := versionFloors[dialect]
	if !ok {
		return fmt.Errorf("%w: %q", sqlgen.ErrUnsupportedDialect, dialect)
	}

	c, err := client.Open(dialect, dsn)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	raw, err := serverVersion(ctx, c, dialect)
	if err != nil {
		return fmt.Errorf("version query failed: %w", err)
	}

	got, err := version.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("cannot parse server version %q: %w", raw, err)
	}
	required := version.Must(version.NewVersion(floor))

	if got.Core().LessThan(required) {
		color.New(color.FgRed, color.Bold).Printf("✗ %s %s is below the JSON floor %s\n", dialect, raw, floor)
		return fmt.Errorf("server version %s is below %s", raw, floor)
	}

	color.New(color.FgGreen, color.Bold).Printf("✓ %s %s meets the JSON floor %s\n", dialect, raw, floor)
	return nil
}

func serverVersion(ctx context.Context, c *client.Client, dialect sqlgen.Dialect) (string, error) {
	var raw string
	if err := c.DB().QueryRowContext(ctx, versionQueries[dialect]).Scan(&raw); err != nil {
		return "", err
	}
	// Some builds report "15.4 (Debian 15.4-1.pgdg120+1)"; keep the number.
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		raw = raw[:i]
	}
	return raw, nil
}
