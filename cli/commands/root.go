// Package commands implements the singlefetch CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/singlefetch/singlefetch/cli/internal/config"
	"github.com/singlefetch/singlefetch/internal/debug"
)

// Execute is the main entry point for the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	var debugFlag bool

	root := &cobra.Command{
		Use:   "singlefetch",
		Short: "Batch independent SQL reads into a single round trip",
		Long: `singlefetch compiles several independent reads into one SQL statement
built from JSON aggregation functions, executes it in a single round
trip and splits the combined result back into per-query values.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			debug.Init(debugFlag || cfg.Debug)
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(NewInitCommand())
	root.AddCommand(NewExplainCommand())
	root.AddCommand(NewCheckCommand())
	root.AddCommand(NewVersionCommand())

	return root
}
