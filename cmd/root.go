// Package cmd defines and implements the CLI commands for the steamharvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steamharvest",
		Short: "An adaptive-rate harvester for Steam store data.",
		Long: `steamharvest walks a catalog of Steam app identifiers and collects
details, reviews, and store-page metadata for each one. It paces itself
against the remote's rate limiting, persists results incrementally so a
run can resume after any interruption, and hibernates when the store
blocks it outright.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses built-in defaults and HARVESTER_ env vars)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
