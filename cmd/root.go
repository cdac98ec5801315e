// Package cmd defines the CLI commands for the webharvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webharvest",
		Short: "A resilient multi-stage data-acquisition pipeline.",
		Long: `webharvest runs crawl, scrape and parse steps against a news site,
checkpointing progress so interrupted runs resume where they stopped
instead of refetching everything.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./webharvest.yaml)")

	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
