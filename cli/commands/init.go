package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/singlefetch/singlefetch/cli/internal/config"
	"github.com/singlefetch/singlefetch/query/sqlgen"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var (
		dsn     string
		dialect string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Save connection defaults to a config file",
		Long: `Write ~/.config/singlefetch/.singlefetch.yaml so later invocations pick
up the dialect and connection string without flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := sqlgen.NewGenerator(sqlgen.Dialect(dialect)); err != nil {
				return err
			}
			cfg := &config.Config{DatabaseURL: dsn, Dialect: dialect}
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			color.New(color.FgGreen, color.Bold).Printf("✓ saved %s defaults to ~/.config/singlefetch/.singlefetch.yaml\n", dialect)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "database connection string to store")
	cmd.Flags().StringVar(&dialect, "dialect", "postgres", "SQL dialect: postgres, mysql or sqlite")

	return cmd
}
