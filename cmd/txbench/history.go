package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gateway-fm/txbench/internal/config"
	"github.com/gateway-fm/txbench/internal/metrics"
	"github.com/gateway-fm/txbench/internal/storage"
)

func newHistoryCmd(cfg *config.Config) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := cfg.DatabasePath
			if path == "" {
				path = config.DefaultDatabasePath
			}
			return printHistory(cmd.Context(), path, limit, offset, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Max runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")

	return cmd
}

func printHistory(ctx context.Context, path string, limit, offset int, out io.Writer) error {
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return fmt.Errorf("open run archive: %w", err)
	}
	defer store.Close()

	page, err := store.ListRuns(ctx, limit, offset)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Started", "Status", "Submitted", "Confirmed", "Failed", "TX/s"})
	for _, run := range page.Runs {
		table.Append([]string{
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Status,
			strconv.Itoa(run.Stats.TotalSubmitted),
			strconv.Itoa(run.Stats.TotalConfirmed),
			strconv.Itoa(run.Stats.TotalFailed),
			metrics.FormatThroughput(run.Stats),
		})
	}
	table.Render()

	_, err = fmt.Fprintf(out, "%d of %d runs\n", len(page.Runs), page.Total)
	return err
}
