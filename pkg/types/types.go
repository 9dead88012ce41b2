// Package types contains the data model shared by the txbench stages.
// Values flow Builder -> Signer -> Scheduler -> Tracker -> Reporter and are
// never mutated once handed to the next stage.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxDescriptor is an unsigned transfer with its nonce already assigned.
type TxDescriptor struct {
	Nonce    uint64
	To       common.Address
	Value    *big.Int // wei
	GasLimit uint64
	GasPrice *big.Int // legacy gas price, or fee cap for EIP-1559
	ChainID  *big.Int

	GasTipCap *big.Int // EIP-1559 only; nil means GasPrice
	Legacy    bool     // type 0 envelope instead of EIP-1559
}

// SignedTx is a descriptor together with its signed RLP encoding.
type SignedTx struct {
	Descriptor TxDescriptor
	Raw        []byte
	Hash       common.Hash
}

// SubmitOrder controls the order in which a batch is dispatched.
type SubmitOrder string

const (
	OrderSequential SubmitOrder = "sequential"
	OrderShuffled   SubmitOrder = "shuffled"
	OrderReversed   SubmitOrder = "reversed"
)

// ParseSubmitOrder validates an order name.
func ParseSubmitOrder(s string) (SubmitOrder, bool) {
	switch o := SubmitOrder(s); o {
	case OrderSequential, OrderShuffled, OrderReversed:
		return o, true
	}
	return "", false
}

// Outcome is the result of a single submission attempt.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// SubmissionResult records what happened when a signed transaction was sent.
type SubmissionResult struct {
	Tx          SignedTx
	Index       int // position in the signed batch
	Outcome     Outcome
	TxHash      common.Hash // set when accepted
	Reason      string      // set when rejected
	Err         error       // set when rejected
	SubmittedAt time.Time
}

// Accepted reports whether the pool took the transaction.
func (r SubmissionResult) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}

// Nonce returns the nonce of the submitted descriptor.
func (r SubmissionResult) Nonce() uint64 {
	return r.Tx.Descriptor.Nonce
}

// ReceiptStatus is the terminal state of a tracked transaction.
type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
	ReceiptTimedOut ReceiptStatus = "timed_out"
)

// ReceiptRecord is the terminal state of one accepted transaction.
type ReceiptRecord struct {
	TxHash      common.Hash
	Nonce       uint64
	Status      ReceiptStatus
	SubmittedAt time.Time
	ConfirmedAt time.Time // zero when timed out
	BlockNumber uint64
	GasUsed     uint64
	Err         error // last poll error, or the cancellation cause
}

// Confirmed reports whether a receipt was observed.
func (r ReceiptRecord) Confirmed() bool {
	return r.Status == ReceiptSuccess || r.Status == ReceiptReverted
}

// Latency returns ConfirmedAt - SubmittedAt, or zero when not confirmed.
func (r ReceiptRecord) Latency() time.Duration {
	if !r.Confirmed() || r.SubmittedAt.IsZero() {
		return 0
	}
	return r.ConfirmedAt.Sub(r.SubmittedAt)
}

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"`     // ms
	Max     float64         `json:"max"`     // ms
	Avg     float64         `json:"avg"`     // ms
	P50     float64         `json:"p50"`     // ms
	P75     float64         `json:"p75"`     // ms
	P90     float64         `json:"p90"`     // ms
	P95     float64         `json:"p95"`     // ms
	P99     float64         `json:"p99"`     // ms
	Buckets []LatencyBucket `json:"buckets"` // histogram
}

// AccountSnapshot is the sender's state read from the node before a run.
type AccountSnapshot struct {
	Balance *big.Int
	Nonce   uint64
}

// RunStatistics is the derived summary of one run.
type RunStatistics struct {
	AccountBalanceAtStart *big.Int `json:"accountBalanceAtStart"`
	NonceAtStart          uint64   `json:"nonceAtStart"`

	TotalSubmitted int `json:"totalSubmitted"`
	TotalAccepted  int `json:"totalAccepted"`
	TotalRejected  int `json:"totalRejected"`
	TotalConfirmed int `json:"totalConfirmed"` // Confirmed(Success) only
	TotalReverted  int `json:"totalReverted"`
	TotalTimedOut  int `json:"totalTimedOut"`
	TotalFailed    int `json:"totalFailed"` // rejected + reverted + timed out

	WallClockDuration time.Duration `json:"wallClockDuration"`
	Throughput        float64       `json:"throughput"`        // confirmed tx/s
	ThroughputDefined bool          `json:"throughputDefined"` // false reports as N/A

	Latency *LatencyStats `json:"latency,omitempty"`
}
