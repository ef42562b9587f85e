package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Environment variables that supply flag defaults. LoadEnv fills them from
// a .env file.
const (
	EnvDatabase = "AGENTFLOW_DB"
	EnvConfig   = "AGENTFLOW_CONFIG"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // SQLite path for the checkpoint store
	Config   string // agent profile YAML; empty uses DefaultProfile
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the agentflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "agentflow",
		Short: "agentflow - agent workflow runtime",
		Long: `A checkpointed workflow runtime for hired trading agents.

Each thread carries one agent through hiring, operator onboarding,
trading cycles and firing. Instructions are applied one at a time and
the resulting state is checkpointed to SQLite.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", os.Getenv(EnvDatabase), "path to SQLite database (env "+EnvDatabase+")")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", os.Getenv(EnvConfig), "agent profile YAML (env "+EnvConfig+")")

	// Add subcommands
	cmd.AddCommand(NewTickCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRecomputeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
