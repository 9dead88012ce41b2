package metrics

import (
	"time"

	"github.com/gateway-fm/txbench/pkg/types"
)

// Summarize aggregates one run. It does no I/O and returns the same
// statistics for the same inputs.
//
// Throughput counts successful confirmations only. Rejected, reverted and
// timed out transactions make up TotalFailed.
func Summarize(snap types.AccountSnapshot, results []types.SubmissionResult, receipts []types.ReceiptRecord, start, end time.Time) types.RunStatistics {
	stats := types.RunStatistics{
		AccountBalanceAtStart: snap.Balance,
		NonceAtStart:          snap.Nonce,
		TotalSubmitted:        len(results),
	}

	for _, r := range results {
		if r.Accepted() {
			stats.TotalAccepted++
		} else {
			stats.TotalRejected++
		}
	}

	var latencies []time.Duration
	for _, rec := range receipts {
		switch rec.Status {
		case types.ReceiptSuccess:
			stats.TotalConfirmed++
			latencies = append(latencies, rec.Latency())
		case types.ReceiptReverted:
			stats.TotalReverted++
		case types.ReceiptTimedOut:
			stats.TotalTimedOut++
		}
	}
	stats.TotalFailed = stats.TotalRejected + stats.TotalReverted + stats.TotalTimedOut

	if end.After(start) {
		stats.WallClockDuration = end.Sub(start)
	}
	if stats.WallClockDuration > 0 && stats.TotalConfirmed > 0 {
		stats.Throughput = float64(stats.TotalConfirmed) / stats.WallClockDuration.Seconds()
		stats.ThroughputDefined = true
	}
	stats.Latency = Latency(latencies)

	return stats
}
