// Package storage archives finished runs in SQLite.
package storage

import "context"

// Storage defines the persistence interface for run history.
type Storage interface {
	// SaveRun stores a finished run and its transaction log in one
	// transaction. An empty run.ID is replaced with a new UUID.
	SaveRun(ctx context.Context, run *Run, logs []TxLog) error

	// GetRun returns nil, nil when no run has the given id.
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error)
	GetTxLogs(ctx context.Context, runID string, limit, offset int) (*PaginatedTxLogs, error)

	Close() error
}
