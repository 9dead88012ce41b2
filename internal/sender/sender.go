// Package sender submits a signed batch to the node's transaction pool.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txbench/internal/ratelimit"
	"github.com/gateway-fm/txbench/internal/rpc"
	"github.com/gateway-fm/txbench/pkg/types"
)

// DefaultConcurrency is the number of submissions kept in flight when
// Config.Concurrency is unset.
const DefaultConcurrency = 64

// Metrics receives one observation per submission attempt.
type Metrics interface {
	ObserveSubmission(outcome types.Outcome, elapsed time.Duration)
}

// Config for creating a Scheduler.
type Config struct {
	Client      rpc.Client
	Concurrency int // max concurrent sends (default: DefaultConcurrency)
	Order       types.SubmitOrder
	Limiter     *ratelimit.Limiter // nil for no rate cap

	// Progress is called from the dispatch loop, once per transaction and in
	// dispatch order, just before it is handed to a worker.
	Progress func(i int, tx types.SignedTx)

	Metrics Metrics
	Logger  *slog.Logger
	Seed    int64 // shuffle seed; 0 picks one from the clock
}

// Scheduler dispatches signed transactions with bounded concurrency and
// records exactly one SubmissionResult per input.
type Scheduler struct {
	client      rpc.Client
	concurrency int
	order       types.SubmitOrder
	limiter     *ratelimit.Limiter
	progress    func(int, types.SignedTx)
	metrics     Metrics
	logger      *slog.Logger
	seed        int64
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	order := cfg.Order
	if order == "" {
		order = types.OrderSequential
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Scheduler{
		client:      cfg.Client,
		concurrency: concurrency,
		order:       order,
		limiter:     cfg.Limiter,
		progress:    cfg.Progress,
		metrics:     cfg.Metrics,
		logger:      logger,
		seed:        seed,
	}
}

// Submit sends txs and returns their results in dispatch order.
//
// Once ctx is done no further transaction is dispatched. Sends already in
// flight run to completion on a context detached from ctx and are recorded;
// the remainder are recorded as rejected with types.ErrNotSubmitted.
// No input is ever sent twice.
func (s *Scheduler) Submit(ctx context.Context, txs []types.SignedTx) []types.SubmissionResult {
	order := s.dispatchOrder(len(txs))
	results := make([]types.SubmissionResult, len(order))

	sendCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	dispatched := 0
dispatch:
	for pos, idx := range order {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if ctx.Err() != nil {
			<-sem
			break
		}

		dispatched = pos + 1
		if s.progress != nil {
			s.progress(idx, txs[idx])
		}

		wg.Add(1)
		go func(pos, idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[pos] = s.submitOne(sendCtx, idx, txs[idx])
		}(pos, idx)
	}
	wg.Wait()

	if dispatched < len(order) {
		s.logger.Warn("submission interrupted",
			"dispatched", dispatched,
			"remaining", len(order)-dispatched,
			"error", ctx.Err())
	}
	for pos := dispatched; pos < len(order); pos++ {
		idx := order[pos]
		results[pos] = types.SubmissionResult{
			Tx:      txs[idx],
			Index:   idx,
			Outcome: types.OutcomeRejected,
			Reason:  "not submitted",
			Err:     fmt.Errorf("%w: %w", types.ErrNotSubmitted, context.Cause(ctx)),
		}
	}

	return results
}

func (s *Scheduler) submitOne(ctx context.Context, idx int, tx types.SignedTx) types.SubmissionResult {
	res := types.SubmissionResult{
		Tx:          tx,
		Index:       idx,
		SubmittedAt: time.Now(),
	}

	hash, err := s.client.SendRawTransaction(ctx, tx.Raw)
	elapsed := time.Since(res.SubmittedAt)

	if err != nil {
		res.Outcome = types.OutcomeRejected
		res.Reason = err.Error()
		res.Err = classify(err)
		s.logger.Debug("transaction rejected",
			"txHash", tx.Hash.Hex(),
			"nonce", tx.Descriptor.Nonce,
			"error", err)
	} else {
		res.Outcome = types.OutcomeAccepted
		res.TxHash = hash
		if hash == (common.Hash{}) {
			res.TxHash = tx.Hash
		} else if hash != tx.Hash {
			s.logger.Warn("node returned unexpected tx hash",
				"local", tx.Hash.Hex(),
				"remote", hash.Hex(),
				"nonce", tx.Descriptor.Nonce)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSubmission(res.Outcome, elapsed)
	}
	return res
}

// classify maps a send error onto the per-transaction sentinels.
func classify(err error) error {
	if rpc.IsRPCError(err) {
		return fmt.Errorf("%w: %w", types.ErrSubmissionRejected, err)
	}
	return fmt.Errorf("%w: %w", types.ErrTransport, err)
}

// dispatchOrder returns input indices in the order they are sent.
func (s *Scheduler) dispatchOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	switch s.order {
	case types.OrderReversed:
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	case types.OrderShuffled:
		rng := rand.New(rand.NewSource(s.seed))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order
}
