package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatency_Basic(t *testing.T) {
	samples := make([]time.Duration, 0, 100)
	for i := 99; i >= 0; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}

	stats := Latency(samples)
	require.NotNil(t, stats)
	require.Equal(t, 100, stats.Count)
	require.Zero(t, stats.Min)
	require.Equal(t, 99.0, stats.Max)
	require.InDelta(t, 49.5, stats.Avg, 1e-9)
	require.InDelta(t, 49.5, stats.P50, 1e-9)
	require.InDelta(t, 98.01, stats.P99, 1e-9)
}

func TestLatency_Empty(t *testing.T) {
	require.Nil(t, Latency(nil))
}

func TestLatency_Single(t *testing.T) {
	stats := Latency([]time.Duration{1500 * time.Millisecond})
	for name, v := range map[string]float64{
		"min": stats.Min, "max": stats.Max, "p50": stats.P50, "p99": stats.P99,
	} {
		require.Equal(t, 1500.0, v, name)
	}
}

func TestLatency_Buckets(t *testing.T) {
	var samples []time.Duration
	add := func(ms, n int) {
		for i := 0; i < n; i++ {
			samples = append(samples, time.Duration(ms)*time.Millisecond)
		}
	}
	add(100, 10)
	add(300, 20)
	add(750, 30)
	add(1500, 15)
	add(5000, 5)
	add(250, 1) // lower bound belongs to the next bucket

	stats := Latency(samples)
	want := map[string]int{
		"0-250ms":   10,
		"250-500ms": 21,
		"500-1s":    30,
		"1-2s":      15,
		"2s+":       5,
	}
	require.Len(t, stats.Buckets, len(want))
	for _, b := range stats.Buckets {
		require.Equal(t, want[b.Label], b.Count, b.Label)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{0.5, 25},
		{1, 40},
		{0.9, 37},
	}
	for _, tt := range tests {
		require.InDelta(t, tt.want, percentile(sorted, tt.p), 1e-9, "p=%v", tt.p)
	}
}
