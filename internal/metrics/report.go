package metrics

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/gateway-fm/txbench/pkg/types"
)

const notAvailable = "N/A"

// SummaryLine is the operator-visible line: balance, start nonce and
// throughput, each right-justified to 30 columns.
func SummaryLine(stats types.RunStatistics) string {
	balance := notAvailable
	if stats.AccountBalanceAtStart != nil {
		balance = stats.AccountBalanceAtStart.String()
	}
	return fmt.Sprintf("%30s,%30s,%30s", balance, strconv.FormatUint(stats.NonceAtStart, 10), FormatThroughput(stats))
}

// FormatThroughput renders throughput in tx/s, or N/A when undefined.
func FormatThroughput(stats types.RunStatistics) string {
	if !stats.ThroughputDefined {
		return notAvailable
	}
	return strconv.FormatFloat(stats.Throughput, 'f', 2, 64)
}

// WriteSummary writes the duration line followed by the summary line.
func WriteSummary(w io.Writer, stats types.RunStatistics) error {
	_, err := fmt.Fprintf(w, "duration %s\n%s\n",
		strconv.FormatFloat(stats.WallClockDuration.Seconds(), 'f', 3, 64),
		SummaryLine(stats))
	return err
}

// WriteReport renders the run statistics as a table.
func WriteReport(w io.Writer, stats types.RunStatistics) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"submitted", strconv.Itoa(stats.TotalSubmitted)})
	table.Append([]string{"accepted", strconv.Itoa(stats.TotalAccepted)})
	table.Append([]string{"rejected", strconv.Itoa(stats.TotalRejected)})
	table.Append([]string{"confirmed", strconv.Itoa(stats.TotalConfirmed)})
	table.Append([]string{"reverted", strconv.Itoa(stats.TotalReverted)})
	table.Append([]string{"timed out", strconv.Itoa(stats.TotalTimedOut)})
	table.Append([]string{"failed", strconv.Itoa(stats.TotalFailed)})
	table.Append([]string{"duration", stats.WallClockDuration.String()})
	table.Append([]string{"throughput (tx/s)", FormatThroughput(stats)})

	if l := stats.Latency; l != nil {
		for _, row := range []struct {
			name string
			ms   float64
		}{
			{"latency min", l.Min},
			{"latency avg", l.Avg},
			{"latency p50", l.P50},
			{"latency p95", l.P95},
			{"latency p99", l.P99},
			{"latency max", l.Max},
		} {
			table.Append([]string{row.name, strconv.FormatFloat(row.ms, 'f', 1, 64) + "ms"})
		}
		for _, b := range l.Buckets {
			table.Append([]string{"latency " + b.Label, strconv.Itoa(b.Count)})
		}
	}

	table.Render()
}
