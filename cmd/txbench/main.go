// Package main provides the txbench CLI: submit a batch of signed transfers
// to a node, track their receipts and report throughput and latency.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gateway-fm/txbench/internal/config"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger, level)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("txbench failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "txbench",
		Short: "Transaction submission and confirmation benchmark",
		Long: `txbench signs a batch of transfers from one account, submits them to a
node's transaction pool over JSON-RPC, tracks every accepted transaction until
its receipt appears or it times out, and reports throughput and latency.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			l, err := cfg.SlogLevel()
			if err != nil {
				return err
			}
			level.Set(l)
			return nil
		},
	}

	// Environment first, so flags given on the command line win.
	envErr := cfg.ApplyEnv()

	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel,
		"Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.DatabasePath, "database", cfg.DatabasePath,
		"SQLite run archive path (empty disables archiving for run)")

	root.AddCommand(newRunCmd(logger, cfg, envErr))
	root.AddCommand(newHistoryCmd(cfg))

	return root
}
