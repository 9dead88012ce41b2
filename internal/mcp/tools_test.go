package mcp

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/txbench/internal/storage"
	"github.com/gateway-fm/txbench/pkg/types"
)

type fakeArchive struct {
	runs []storage.Run
	logs map[string][]storage.TxLog
	err  error

	lastLimit, lastOffset int
}

func (f *fakeArchive) GetRun(_ context.Context, id string) (*storage.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeArchive) ListRuns(_ context.Context, limit, offset int) (*storage.PaginatedRuns, error) {
	f.lastLimit, f.lastOffset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return &storage.PaginatedRuns{Runs: f.runs, Total: len(f.runs), Limit: limit, Offset: offset}, nil
}

func (f *fakeArchive) GetTxLogs(_ context.Context, runID string, limit, offset int) (*storage.PaginatedTxLogs, error) {
	f.lastLimit, f.lastOffset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	logs := f.logs[runID]
	return &storage.PaginatedTxLogs{Transactions: logs, Total: len(logs), Limit: limit, Offset: offset}, nil
}

func sampleRun() storage.Run {
	return storage.Run{
		ID:        "run-1",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RPCURL:    "http://localhost:8545",
		ChainID:   1337,
		Sender:    "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Count:     3,
		Order:     "shuffled",
		Status:    storage.RunCompleted,
		Stats: types.RunStatistics{
			AccountBalanceAtStart: big.NewInt(1_000_000),
			NonceAtStart:          7,
			TotalSubmitted:        3,
			TotalAccepted:         2,
			TotalRejected:         1,
			TotalConfirmed:        2,
			TotalFailed:           1,
			WallClockDuration:     2 * time.Second,
			Throughput:            1,
			ThroughputDefined:     true,
			Latency: &types.LatencyStats{
				Count: 2, Min: 100, Max: 300, Avg: 200, P50: 200, P95: 290, P99: 298,
				Buckets: []types.LatencyBucket{{Label: "0-250ms", Count: 1}, {Label: "250-500ms", Count: 1}},
			},
		},
	}
}

func callRequest(args map[string]any) gomcp.CallToolRequest {
	var req gomcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *gomcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(gomcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestHistory(t *testing.T) {
	archive := &fakeArchive{runs: []storage.Run{sampleRun()}}
	h := &handlers{archive: archive}

	res, err := h.history(context.Background(), callRequest(map[string]any{"limit": 5.0, "offset": 2.0}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, 5, archive.lastLimit)
	require.Equal(t, 2, archive.lastOffset)

	text := resultText(t, res)
	require.Contains(t, text, "## Run History")
	require.Contains(t, text, "### run-1")
	require.Contains(t, text, "2026-03-01 12:00:00")
	require.Contains(t, text, "1.00 tx/s")
}

func TestHistory_Clamp(t *testing.T) {
	archive := &fakeArchive{}
	h := &handlers{archive: archive}

	res, err := h.history(context.Background(), callRequest(map[string]any{"limit": 5000.0, "offset": -1.0}))
	require.NoError(t, err)
	require.Equal(t, maxHistoryLimit, archive.lastLimit)
	require.Equal(t, 0, archive.lastOffset)
	require.Contains(t, resultText(t, res), "No runs found.")

	_, err = h.history(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.Equal(t, defaultHistoryLimit, archive.lastLimit)
}

func TestHistory_ArchiveError(t *testing.T) {
	h := &handlers{archive: &fakeArchive{err: errors.New("database is locked")}}

	res, err := h.history(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "database is locked")
}

func TestRunDetail(t *testing.T) {
	h := &handlers{archive: &fakeArchive{runs: []storage.Run{sampleRun()}}}

	res, err := h.runDetail(context.Background(), callRequest(map[string]any{"id": "run-1"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	text := resultText(t, res)
	require.Contains(t, text, "## Run: run-1")
	require.Contains(t, text, "1000000 wei")
	require.Contains(t, text, "66.7%")
	require.Contains(t, text, "## Confirmation Latency")
	require.Contains(t, text, "290.0ms")
	require.Contains(t, text, "250-500ms:")
}

func TestRunDetail_Errors(t *testing.T) {
	h := &handlers{archive: &fakeArchive{}}

	res, err := h.runDetail(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "id is required")

	res, err = h.runDetail(context.Background(), callRequest(map[string]any{"id": "missing"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "not found")
}

func TestRunTxs(t *testing.T) {
	archive := &fakeArchive{logs: map[string][]storage.TxLog{
		"run-1": {
			{Index: 0, TxHash: "0x1111111111111111111111111111111111111111111111111111111111111111", Nonce: 7, Outcome: "accepted", Status: "success", LatencyMs: 120},
			{Index: 1, TxHash: "0x2222222222222222222222222222222222222222222222222222222222222222", Nonce: 8, Outcome: "rejected", ErrorReason: "nonce too low"},
		},
	}}
	h := &handlers{archive: archive}

	res, err := h.runTxs(context.Background(), callRequest(map[string]any{"id": "run-1"}))
	require.NoError(t, err)
	require.Equal(t, defaultTxLimit, archive.lastLimit)

	text := resultText(t, res)
	require.Contains(t, text, "[0] 0x1111111111111111...  success  nonce=7  120ms")
	require.Contains(t, text, "[1] 0x2222222222222222...  rejected  nonce=8  - nonce too low")
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{uint64(12345), "12,345"},
		{2.5, "2.5"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, formatNumber(tt.in), "formatNumber(%v)", tt.in)
	}
}
