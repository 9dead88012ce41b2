// Package metrics aggregates run results and exports run metrics.
package metrics

import (
	"sort"
	"time"

	"github.com/gateway-fm/txbench/pkg/types"
)

// Confirmation latency bucket bounds in milliseconds.
const (
	bucket0 = 250.0
	bucket1 = 500.0
	bucket2 = 1000.0
	bucket3 = 2000.0
)

var bucketLabels = []string{"0-250ms", "250-500ms", "500-1s", "1-2s", "2s+"}

// Latency computes the distribution of samples, or nil when there are none.
func Latency(samples []time.Duration) *types.LatencyStats {
	if len(samples) == 0 {
		return nil
	}

	sorted := make([]float64, len(samples))
	var sum float64
	for i, d := range samples {
		ms := float64(d) / float64(time.Millisecond)
		sorted[i] = ms
		sum += ms
	}
	sort.Float64s(sorted)

	counts := make([]int, len(bucketLabels))
	for _, ms := range sorted {
		counts[bucketIndex(ms)]++
	}
	buckets := make([]types.LatencyBucket, len(bucketLabels))
	for i, label := range bucketLabels {
		buckets[i] = types.LatencyBucket{Label: label, Count: counts[i]}
	}

	return &types.LatencyStats{
		Count:   len(sorted),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Avg:     sum / float64(len(sorted)),
		P50:     percentile(sorted, 0.50),
		P75:     percentile(sorted, 0.75),
		P90:     percentile(sorted, 0.90),
		P95:     percentile(sorted, 0.95),
		P99:     percentile(sorted, 0.99),
		Buckets: buckets,
	}
}

func bucketIndex(ms float64) int {
	for i, bound := range []float64{bucket0, bucket1, bucket2, bucket3} {
		if ms < bound {
			return i
		}
	}
	return len(bucketLabels) - 1
}

// percentile calculates the p-th percentile of a sorted slice by linear
// interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
