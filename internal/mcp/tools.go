// Package mcp exposes the txbench run archive as MCP tools.
package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/txbench/internal/storage"
)

// Archive is the read side of storage.Storage.
type Archive interface {
	GetRun(ctx context.Context, id string) (*storage.Run, error)
	ListRuns(ctx context.Context, limit, offset int) (*storage.PaginatedRuns, error)
	GetTxLogs(ctx context.Context, runID string, limit, offset int) (*storage.PaginatedTxLogs, error)
}

// Pagination limits.
const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	defaultTxLimit      = 50
	maxTxLimit          = 1000
)

// RegisterTools registers all archive tools on the MCP server.
func RegisterTools(s *server.MCPServer, archive Archive) {
	h := &handlers{archive: archive}

	s.AddTool(gomcp.NewTool("txbench_history",
		gomcp.WithDescription("List archived txbench runs with summary metrics, newest first (paginated)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	), h.history)

	s.AddTool(gomcp.NewTool("txbench_run_detail",
		gomcp.WithDescription("Get the statistics and latency distribution of one archived run."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
	), h.runDetail)

	s.AddTool(gomcp.NewTool("txbench_run_txs",
		gomcp.WithDescription("Get per-transaction logs of one archived run (paginated)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max transactions to return (default: 50, max: 1000)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	), h.runTxs)
}

type handlers struct {
	archive Archive
}

func (h *handlers) history(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	limit := clamp(req.GetInt("limit", defaultHistoryLimit), 1, maxHistoryLimit)
	offset := max(req.GetInt("offset", 0), 0)

	page, err := h.archive.ListRuns(ctx, limit, offset)
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("History failed: %v", err)), nil
	}
	return gomcp.NewToolResultText(formatHistory(page)), nil
}

func (h *handlers) runDetail(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return gomcp.NewToolResultError("id is required"), nil
	}

	run, err := h.archive.GetRun(ctx, id)
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Run detail failed: %v", err)), nil
	}
	if run == nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Run %s not found", id)), nil
	}
	return gomcp.NewToolResultText(formatRunDetail(run)), nil
}

func (h *handlers) runTxs(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return gomcp.NewToolResultError("id is required"), nil
	}
	limit := clamp(req.GetInt("limit", defaultTxLimit), 1, maxTxLimit)
	offset := max(req.GetInt("offset", 0), 0)

	page, err := h.archive.GetTxLogs(ctx, id, limit, offset)
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Run transactions failed: %v", err)), nil
	}
	return gomcp.NewToolResultText(formatRunTxs(page)), nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
