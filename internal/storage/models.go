package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txbench/pkg/types"
)

// Run status values.
const (
	RunCompleted = "completed"
	RunCancelled = "cancelled"
)

// Run is one archived run.
// JSON tags use camelCase to match the MCP tool output.
type Run struct {
	ID           string              `json:"id"`
	StartedAt    time.Time           `json:"startedAt"`
	CompletedAt  time.Time           `json:"completedAt"`
	RPCURL       string              `json:"rpcUrl"`
	ChainID      uint64              `json:"chainId"`
	Sender       string              `json:"sender"`
	Count        int                 `json:"count"`
	Order        string              `json:"order"`
	SignFailures int                 `json:"signFailures"`
	Status       string              `json:"status"`
	Stats        types.RunStatistics `json:"stats"`
}

// TxLog is the archived lifecycle of one submitted transaction.
type TxLog struct {
	Index         int    `json:"index"`
	TxHash        string `json:"txHash"`
	Nonce         uint64 `json:"nonce"`
	Outcome       string `json:"outcome"`                 // accepted, rejected
	Status        string `json:"status,omitempty"`        // receipt status; empty when rejected
	SubmittedAtMs int64  `json:"submittedAtMs,omitempty"` // 0 if never sent
	ConfirmedAtMs int64  `json:"confirmedAtMs,omitempty"` // 0 if not confirmed
	LatencyMs     int64  `json:"latencyMs,omitempty"`     // 0 if not confirmed
	BlockNumber   uint64 `json:"blockNumber,omitempty"`
	GasUsed       uint64 `json:"gasUsed,omitempty"`
	ErrorReason   string `json:"errorReason,omitempty"`
}

// PaginatedRuns represents a paginated list of runs.
type PaginatedRuns struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// PaginatedTxLogs represents a paginated list of transaction logs.
type PaginatedTxLogs struct {
	Transactions []TxLog `json:"transactions"`
	Total        int     `json:"total"`
	Limit        int     `json:"limit"`
	Offset       int     `json:"offset"`
}

// NewTxLogs joins submission results with receipt records by hash.
func NewTxLogs(results []types.SubmissionResult, receipts []types.ReceiptRecord) []TxLog {
	byHash := make(map[common.Hash]types.ReceiptRecord, len(receipts))
	for _, rec := range receipts {
		byHash[rec.TxHash] = rec
	}

	logs := make([]TxLog, 0, len(results))
	for _, r := range results {
		log := TxLog{
			Index:   r.Index,
			TxHash:  r.Tx.Hash.Hex(),
			Nonce:   r.Nonce(),
			Outcome: string(r.Outcome),
		}
		if !r.SubmittedAt.IsZero() {
			log.SubmittedAtMs = r.SubmittedAt.UnixMilli()
		}

		if !r.Accepted() {
			log.ErrorReason = r.Reason
			logs = append(logs, log)
			continue
		}

		log.TxHash = r.TxHash.Hex()
		if rec, ok := byHash[r.TxHash]; ok {
			log.Status = string(rec.Status)
			log.BlockNumber = rec.BlockNumber
			log.GasUsed = rec.GasUsed
			if rec.Confirmed() {
				log.ConfirmedAtMs = rec.ConfirmedAt.UnixMilli()
				log.LatencyMs = rec.Latency().Milliseconds()
			}
			if rec.Err != nil {
				log.ErrorReason = rec.Err.Error()
			}
		}
		logs = append(logs, log)
	}
	return logs
}
