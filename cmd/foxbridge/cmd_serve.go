package main

import (
	"github.com/spf13/cobra"
)

// newServeCmd creates the "foxbridge serve" subcommand.
func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge (default)",
		Long:  "Starts the HTTP API, recovers paired tenants and runs until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(*configPath))
		},
	}
}
