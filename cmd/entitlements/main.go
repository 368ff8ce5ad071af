package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/entitlements/pkg/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func main() {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:     "entitlements",
		Short:   "Subscription entitlement engine",
		Long:    `Turns card and platform payment events into one premium access decision per user, and serves it over HTTP.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv(envFiles...)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load variables from these .env files (default: ./.env if present)")

	rootCmd.AddCommand(
		newServeCommand(),
		newWorkerCommand(),
		newMigrateCommand(),
		newTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
