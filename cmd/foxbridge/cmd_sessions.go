package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/foxbridge/internal/credentials"
	"github.com/nerrad567/foxbridge/internal/infrastructure/config"
)

// newSessionsCmd creates the "foxbridge sessions" subcommand.
func newSessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List tenants with stored credentials",
		Long:  "Lists the credential directories that boot recovery would re-initialize.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			store, err := credentials.NewStore(cfg.Sessions.AuthDir, cfg.Sessions.DirPrefix)
			if err != nil {
				return err
			}

			ids, err := store.List()
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "no credential directory at", store.Root())
				return nil
			}
			if err != nil {
				return fmt.Errorf("listing credentials: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT\tPATH")
			for _, id := range ids {
				fmt.Fprintf(w, "%s\t%s\n", id, store.Path(id))
			}
			return w.Flush()
		},
	}
}
