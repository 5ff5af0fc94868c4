// Fox Bridge - chat-network session bridge for restaurant point-of-sale.
//
// Each restaurant (tenant) pairs its own chat account once; afterwards the
// POS asks the bridge over HTTP to send bill images to customers. The bridge
// owns every tenant session, restarts stale pairings, survives restarts by
// recovering paired tenants at boot, and reports live status.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nerrad567/foxbridge/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.1 -X main.commit=abc123"
var (
	version = "1.0.1"
	commit  = "unknown"
	date    = "unknown"
)

// dotEnvPath is loaded before any command runs, when present.
const dotEnvPath = ".env"

func main() {
	// Cancel on Ctrl+C and SIGTERM so serve can shut down gracefully.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command. Without a subcommand it serves.
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "foxbridge",
		Short:         "Chat bridge for restaurant point-of-sale systems",
		Long:          "foxbridge keeps one chat session per restaurant and delivers bills\nthrough it on behalf of the point-of-sale.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotEnv(dotEnvPath)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(configPath))
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default $FOXBRIDGE_CONFIG or "+config.DefaultPath+")")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newTokenCmd(&configPath),
		newSessionsCmd(&configPath),
	)
	return cmd
}

// getConfigPath returns the configuration file path: the --config flag,
// then FOXBRIDGE_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("FOXBRIDGE_CONFIG"); path != "" {
		return path
	}
	return config.DefaultPath
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
