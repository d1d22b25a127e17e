package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "driftline",
		Short: "Driftline - Configuration Revision & Change-Detection Engine",
		Long: `Driftline records configuration snapshots of cloud resources and tracks
how they change over time.

Features:
  - Deterministic content hashing of resource configurations
  - Durable hashing that ignores ephemeral, noisy fields
  - Per-resource revision history with in-place ephemeral updates
  - Audit issue reconciliation between snapshots
  - Append-only exception ledger with TTL-based purging`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newAccountCommand())
	rootCmd.AddCommand(newStoreCommand())
	rootCmd.AddCommand(newItemsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newIssuesCommand())
	rootCmd.AddCommand(newExceptionsCommand())

	return rootCmd
}
