package mcp

import (
	"fmt"
	"strings"

	"github.com/gateway-fm/txbench/internal/metrics"
	"github.com/gateway-fm/txbench/internal/storage"
	"github.com/gateway-fm/txbench/pkg/types"
)

const maxListedTxs = 20

func formatHistory(page *storage.PaginatedRuns) string {
	lines := joinLines(
		section("Run History"),
		kv("Total Runs", formatNumber(page.Total)),
		"",
	)

	if len(page.Runs) == 0 {
		return lines + "\nNo runs found."
	}

	var b strings.Builder
	b.WriteString(lines)
	b.WriteString("\n\n")
	for _, run := range page.Runs {
		fmt.Fprintf(&b, "### %s\n", run.ID)
		b.WriteString(joinLines(
			kv("Status", run.Status),
			kv("Started", run.StartedAt.Format("2006-01-02 15:04:05")),
			kv("TXs Submitted", formatNumber(run.Stats.TotalSubmitted)),
			kv("TXs Confirmed", formatNumber(run.Stats.TotalConfirmed)),
			kv("TXs Failed", formatNumber(run.Stats.TotalFailed)),
			kv("Throughput", metrics.FormatThroughput(run.Stats)+" tx/s"),
		))
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatRunDetail(run *storage.Run) string {
	stats := run.Stats
	balance := "N/A"
	if stats.AccountBalanceAtStart != nil {
		balance = stats.AccountBalanceAtStart.String() + " wei"
	}

	lines := joinLines(
		section("Run: "+run.ID),
		kv("Status", run.Status),
		kv("RPC", run.RPCURL),
		kv("Chain ID", run.ChainID),
		kv("Sender", run.Sender),
		kv("Order", run.Order),
		kv("Balance", balance),
		kv("Start Nonce", stats.NonceAtStart),
		kv("Duration", fmt.Sprintf("%.3fs", stats.WallClockDuration.Seconds())),
		kv("Requested", formatNumber(run.Count)),
		kv("Sign Failures", formatNumber(run.SignFailures)),
		kv("TXs Submitted", formatNumber(stats.TotalSubmitted)),
		kv("TXs Accepted", formatNumber(stats.TotalAccepted)),
		kv("TXs Rejected", formatNumber(stats.TotalRejected)),
		kv("TXs Confirmed", formatNumber(stats.TotalConfirmed)),
		kv("TXs Reverted", formatNumber(stats.TotalReverted)),
		kv("TXs Timed Out", formatNumber(stats.TotalTimedOut)),
		kv("Confirmed", formatPct(confirmedPct(stats))),
		kv("Throughput", metrics.FormatThroughput(stats)+" tx/s"),
	)

	if lat := stats.Latency; lat != nil && lat.Count > 0 {
		lines += "\n\n" + joinLines(
			section("Confirmation Latency"),
			kv("Min", formatMs(lat.Min)),
			kv("Avg", formatMs(lat.Avg)),
			kv("P50", formatMs(lat.P50)),
			kv("P95", formatMs(lat.P95)),
			kv("P99", formatMs(lat.P99)),
			kv("Max", formatMs(lat.Max)),
		)
		for _, bucket := range lat.Buckets {
			lines += "\n" + kv(bucket.Label, formatNumber(bucket.Count))
		}
	}
	return lines
}

func formatRunTxs(page *storage.PaginatedTxLogs) string {
	lines := joinLines(
		section("Transaction Logs"),
		kv("Total", formatNumber(page.Total)),
		"",
	)

	if len(page.Transactions) == 0 {
		return lines + "\nNo transactions found."
	}

	var b strings.Builder
	b.WriteString(lines)
	b.WriteString("\n\n")
	for i, tx := range page.Transactions {
		if i >= maxListedTxs {
			fmt.Fprintf(&b, "\n... and %d more", len(page.Transactions)-maxListedTxs)
			break
		}
		state := tx.Outcome
		if tx.Status != "" {
			state = tx.Status
		}
		fmt.Fprintf(&b, "  [%d] %s  %s  nonce=%d", tx.Index, shortHash(tx.TxHash), state, tx.Nonce)
		if tx.LatencyMs > 0 {
			fmt.Fprintf(&b, "  %dms", tx.LatencyMs)
		}
		if tx.ErrorReason != "" {
			b.WriteString("  - " + tx.ErrorReason)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func confirmedPct(stats types.RunStatistics) float64 {
	if stats.TotalSubmitted == 0 {
		return 0
	}
	return float64(stats.TotalConfirmed) / float64(stats.TotalSubmitted) * 100
}

func shortHash(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:18] + "..."
}

// formatNumber adds comma separators to integers.
func formatNumber(n any) string {
	var s string
	switch v := n.(type) {
	case float64:
		if v == float64(int64(v)) {
			s = fmt.Sprintf("%d", int64(v))
		} else {
			return fmt.Sprintf("%.1f", v)
		}
	case int64:
		s = fmt.Sprintf("%d", v)
	case uint64:
		s = fmt.Sprintf("%d", v)
	case int:
		s = fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", n)
	}

	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	start := len(s) % 3
	if start > 0 {
		result.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func formatMs(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}
