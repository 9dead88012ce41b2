// Package tracker polls the node for receipts of accepted transactions until
// each one is confirmed or times out.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txbench/internal/rpc"
	"github.com/gateway-fm/txbench/pkg/types"
)

const (
	// DefaultConcurrency bounds concurrent receipt requests.
	DefaultConcurrency = 32

	// DefaultPollInterval is used when TrackAll gets a non-positive interval.
	DefaultPollInterval = 100 * time.Millisecond
)

// Metrics receives tracker observations.
type Metrics interface {
	ObserveReceipt(status types.ReceiptStatus, latency time.Duration)
	ObservePollError()
}

// Config for creating a Tracker.
type Config struct {
	Client      rpc.Client
	Concurrency int // default: DefaultConcurrency

	// BatchSize > 1 fetches receipts with JSON-RPC batches of that size.
	BatchSize int

	// MaxPollInterval caps the backoff between rounds that confirm nothing.
	// Values below the poll interval disable backoff.
	MaxPollInterval time.Duration

	// Heads, if set, wakes the tracker for an immediate round on each new block.
	Heads <-chan uint64

	Metrics Metrics
	Logger  *slog.Logger
}

// Tracker drives the Pending -> Confirmed | TimedOut state machine.
type Tracker struct {
	client      rpc.Client
	concurrency int
	batchSize   int
	maxInterval time.Duration
	heads       <-chan uint64
	metrics     Metrics
	logger      *slog.Logger
}

// New creates a new Tracker.
func New(cfg Config) *Tracker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		client:      cfg.Client,
		concurrency: concurrency,
		batchSize:   cfg.BatchSize,
		maxInterval: cfg.MaxPollInterval,
		heads:       cfg.Heads,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// pending is one transaction still waiting for its receipt.
type pending struct {
	pos     int // index into the output
	hash    common.Hash
	done    bool
	lastErr error
}

// TrackAll tracks every accepted result and returns exactly one terminal
// record per accepted result, in input order. Rejected results are skipped.
//
// timeout is measured from the call and also bounds every receipt request.
// When ctx is done no new polls start; requests already in flight finish and
// are recorded, and the remaining transactions are recorded as timed out
// with types.ErrCancelled.
func (t *Tracker) TrackAll(ctx context.Context, results []types.SubmissionResult, timeout, pollInterval time.Duration) []types.ReceiptRecord {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	maxInterval := t.maxInterval
	if maxInterval < pollInterval {
		maxInterval = pollInterval
	}

	start := time.Now()
	deadline := start.Add(timeout)

	// Requests outlive a cancelled ctx but never the deadline.
	callCtx, cancelCalls := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer cancelCalls()

	var records []types.ReceiptRecord
	var waiting []*pending
	for _, r := range results {
		if !r.Accepted() {
			continue
		}
		waiting = append(waiting, &pending{pos: len(records), hash: r.TxHash})
		records = append(records, types.ReceiptRecord{
			TxHash:      r.TxHash,
			Nonce:       r.Nonce(),
			Status:      types.ReceiptTimedOut,
			SubmittedAt: r.SubmittedAt,
		})
	}
	if len(waiting) == 0 {
		return records
	}

	t.logger.Info("tracking receipts",
		"count", len(waiting),
		"timeout", timeout,
		"pollInterval", pollInterval)

	heads := t.heads
	interval := pollInterval
	rounds := 0

	for {
		rounds++
		confirmed := t.pollRound(ctx, callCtx, waiting, records)
		waiting = compact(waiting)

		if len(waiting) == 0 {
			break
		}
		if ctx.Err() != nil {
			t.finish(waiting, records, fmt.Errorf("%w: %w", types.ErrCancelled, context.Cause(ctx)))
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.finish(waiting, records, nil)
			break
		}

		if confirmed > 0 {
			interval = pollInterval
		} else if rounds > 1 {
			interval = min(interval*2, maxInterval)
		}

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
		case <-timer.C:
		case _, ok := <-heads:
			if !ok {
				heads = nil
			}
			interval = pollInterval
		}
		timer.Stop()
	}

	t.logger.Info("receipt tracking finished",
		"rounds", rounds,
		"tracked", len(records),
		"elapsed", time.Since(start))

	return records
}

// pollRound polls every waiting transaction once and returns how many
// reached a terminal state. ctx gates new requests, callCtx carries them.
func (t *Tracker) pollRound(ctx, callCtx context.Context, waiting []*pending, records []types.ReceiptRecord) int {
	var confirmed atomic.Int32
	sem := make(chan struct{}, t.concurrency)
	var wg sync.WaitGroup

	for _, chunk := range t.chunks(waiting) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		case <-callCtx.Done():
		}
		if ctx.Err() != nil || callCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(chunk []*pending) {
			defer wg.Done()
			defer func() { <-sem }()
			confirmed.Add(int32(t.pollChunk(ctx, callCtx, chunk, records)))
		}(chunk)
	}
	wg.Wait()

	return int(confirmed.Load())
}

func (t *Tracker) chunks(waiting []*pending) [][]*pending {
	size := t.batchSize
	if size <= 1 {
		size = 1
	}
	out := make([][]*pending, 0, (len(waiting)+size-1)/size)
	for i := 0; i < len(waiting); i += size {
		out = append(out, waiting[i:min(i+size, len(waiting))])
	}
	return out
}

// pollChunk fetches receipts for a chunk; a failed batch falls back to
// individual requests.
func (t *Tracker) pollChunk(ctx, callCtx context.Context, chunk []*pending, records []types.ReceiptRecord) int {
	if len(chunk) > 1 {
		hashes := make([]common.Hash, len(chunk))
		for i, p := range chunk {
			hashes[i] = p.hash
		}
		receipts, errs, err := t.client.GetTransactionReceiptsBatch(callCtx, hashes)
		if err != nil && callCtx.Err() != nil {
			return 0
		}
		if err == nil && len(receipts) == len(chunk) {
			n := 0
			for i, p := range chunk {
				var perErr error
				if i < len(errs) {
					perErr = errs[i]
				}
				if perErr != nil && callCtx.Err() != nil {
					continue
				}
				if t.apply(p, receipts[i], perErr, records) {
					n++
				}
			}
			return n
		}
		t.logger.Debug("batch receipt fetch failed, falling back", "size", len(chunk), "error", err)
	}

	n := 0
	for _, p := range chunk {
		if ctx.Err() != nil || callCtx.Err() != nil {
			break
		}
		receipt, err := t.client.GetTransactionReceipt(callCtx, p.hash)
		if err != nil && callCtx.Err() != nil {
			// Cut off by the deadline, not a node failure.
			break
		}
		if t.apply(p, receipt, err, records) {
			n++
		}
	}
	return n
}

// apply updates a pending entry and its record from one poll result.
func (t *Tracker) apply(p *pending, receipt *rpc.TransactionReceipt, err error, records []types.ReceiptRecord) bool {
	if err != nil {
		p.lastErr = err
		if t.metrics != nil {
			t.metrics.ObservePollError()
		}
		t.logger.Debug("receipt poll failed", "txHash", p.hash.Hex(), "error", err)
		return false
	}
	if receipt == nil {
		return false
	}

	rec := &records[p.pos]
	rec.ConfirmedAt = time.Now()
	rec.BlockNumber = receipt.BlockNumber
	rec.GasUsed = receipt.GasUsed
	rec.Err = nil
	if receipt.Succeeded() {
		rec.Status = types.ReceiptSuccess
	} else {
		rec.Status = types.ReceiptReverted
	}
	p.done = true

	if t.metrics != nil {
		t.metrics.ObserveReceipt(rec.Status, rec.Latency())
	}
	t.logger.Debug("receipt received",
		"txHash", p.hash.Hex(),
		"nonce", rec.Nonce,
		"status", rec.Status,
		"block", rec.BlockNumber)
	return true
}

// finish marks the remaining transactions timed out. cause overrides the
// default timeout error.
func (t *Tracker) finish(waiting []*pending, records []types.ReceiptRecord, cause error) {
	for _, p := range waiting {
		rec := &records[p.pos]
		rec.Status = types.ReceiptTimedOut
		switch {
		case cause != nil:
			rec.Err = cause
		case p.lastErr != nil:
			rec.Err = fmt.Errorf("%w: last poll error: %w", types.ErrTimedOut, p.lastErr)
		default:
			rec.Err = types.ErrTimedOut
		}
		if t.metrics != nil {
			t.metrics.ObserveReceipt(types.ReceiptTimedOut, 0)
		}
	}
	t.logger.Warn("transactions left unconfirmed", "count", len(waiting), "error", cause)
}

func compact(waiting []*pending) []*pending {
	out := waiting[:0]
	for _, p := range waiting {
		if !p.done {
			out = append(out, p)
		}
	}
	return out
}
