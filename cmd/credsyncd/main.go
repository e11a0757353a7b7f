// Package main is the credsyncd daemon and admin CLI: it runs sync workers,
// serves the HTTP API and inspects queues.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	credsync "github.com/jdziat/credibility-sync"
	"github.com/jdziat/credibility-sync/pkg/config"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:           "credsyncd",
	Short:         "Credibility sync daemon",
	Long:          "credsyncd syncs repository, social, education and certification evidence into credibility scores through durable job queues.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Additional .env files to load (repeatable)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openSystem loads configuration and assembles the service.
func openSystem(ctx context.Context) (*credsync.System, *config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	sys, err := credsync.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open service: %w", err)
	}
	return sys, cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
