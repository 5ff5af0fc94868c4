package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/foxbridge/internal/api"
	"github.com/nerrad567/foxbridge/internal/infrastructure/config"
)

// newTokenCmd creates the "foxbridge token" subcommand.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		tenant  string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Long:  "Signs a token with security.jwt.secret. --tenant restricts it to one restaurant.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if !cfg.Security.AuthEnabled() {
				return fmt.Errorf("security.jwt.secret is not set; the API accepts requests without a token")
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}

			token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, tenant, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "pos", "token subject")
	cmd.Flags().StringVar(&tenant, "tenant", "", "restrict the token to one tenant")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_ttl)")
	return cmd
}
