// Package pipeline wires the txbench stages into one run:
// build, sign, submit, track and summarize.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txbench/internal/account"
	"github.com/gateway-fm/txbench/internal/metrics"
	"github.com/gateway-fm/txbench/internal/ratelimit"
	"github.com/gateway-fm/txbench/internal/rpc"
	"github.com/gateway-fm/txbench/internal/sender"
	"github.com/gateway-fm/txbench/internal/signer"
	"github.com/gateway-fm/txbench/internal/tracker"
	"github.com/gateway-fm/txbench/internal/txbuilder"
	"github.com/gateway-fm/txbench/pkg/types"
)

// DefaultTimeout applies when Config.Timeout is unset.
const DefaultTimeout = 2 * time.Minute

// Metrics is everything the stages report to.
type Metrics interface {
	sender.Metrics
	tracker.Metrics
}

// Config for a single run.
type Config struct {
	Client  rpc.Client
	Account *account.Account

	Count   int
	ChainID *big.Int // nil = eth_chainId

	Destinations func() common.Address // nil = random per tx
	Value        *big.Int
	GasLimit     uint64
	GasPrice     *big.Int
	GasTipCap    *big.Int
	Legacy       bool

	SignWorkers int
	Concurrency int
	Order       types.SubmitOrder
	Rate        float64 // submissions per second, 0 = unlimited
	Seed        int64
	Progress    func(i int, tx types.SignedTx)

	Timeout            time.Duration
	PollInterval       time.Duration
	MaxPollInterval    time.Duration
	ReceiptConcurrency int
	ReceiptBatchSize   int
	Heads              <-chan uint64

	Metrics Metrics
	Logger  *slog.Logger
}

// Report is everything a finished run produced.
type Report struct {
	Sender    common.Address
	ChainID   *big.Int
	Snapshot  types.AccountSnapshot
	StartedAt time.Time
	EndedAt   time.Time

	Results      []types.SubmissionResult // dispatch order
	Receipts     []types.ReceiptRecord
	SignFailures []signer.Result
	Stats        types.RunStatistics

	Cancelled bool
}

// Run executes one batch end to end.
//
// Configuration problems (bad count, missing key, unreachable node) are
// returned before anything is signed or sent. Once submission starts every
// per-transaction failure is recorded in the report instead.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Count < 1 {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidCount, cfg.Count)
	}
	if cfg.Account == nil || cfg.Account.PrivateKey == nil {
		return nil, types.ErrMissingKey
	}

	chainID := cfg.ChainID
	if chainID == nil {
		id, err := cfg.Client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrEndpointUnreachable, err)
		}
		chainID = id
	}

	snap, err := cfg.Account.Snapshot(ctx, cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEndpointUnreachable, err)
	}
	logger.Info("account snapshot",
		"address", cfg.Account.Address.Hex(),
		"chainId", chainID,
		"balance", snap.Balance,
		"nonce", snap.Nonce,
	)

	destinations := cfg.Destinations
	if destinations == nil {
		destinations = txbuilder.RandomDestinations()
	}

	descs, err := txbuilder.Build(txbuilder.Params{
		Count:        cfg.Count,
		StartNonce:   snap.Nonce,
		Destinations: destinations,
		Value:        cfg.Value,
		GasLimit:     cfg.GasLimit,
		GasPrice:     cfg.GasPrice,
		GasTipCap:    cfg.GasTipCap,
		ChainID:      chainID,
		Legacy:       cfg.Legacy,
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	signed := signer.SignAll(ctx, descs, cfg.Account.PrivateKey, cfg.SignWorkers)
	failures := signer.Failed(signed)
	for _, f := range failures {
		logger.Warn("signing failed", "index", f.Index, "nonce", descs[f.Index].Nonce, "error", f.Err)
	}
	txs := signer.Signed(signed)

	var (
		senderMetrics  sender.Metrics
		trackerMetrics tracker.Metrics
	)
	if cfg.Metrics != nil {
		senderMetrics = cfg.Metrics
		trackerMetrics = cfg.Metrics
	}

	scheduler := sender.New(sender.Config{
		Client:      cfg.Client,
		Concurrency: cfg.Concurrency,
		Order:       cfg.Order,
		Limiter:     ratelimit.New(cfg.Rate),
		Progress:    cfg.Progress,
		Metrics:     senderMetrics,
		Logger:      logger,
		Seed:        cfg.Seed,
	})
	trk := tracker.New(tracker.Config{
		Client:          cfg.Client,
		Concurrency:     cfg.ReceiptConcurrency,
		BatchSize:       cfg.ReceiptBatchSize,
		MaxPollInterval: cfg.MaxPollInterval,
		Heads:           cfg.Heads,
		Metrics:         trackerMetrics,
		Logger:          logger,
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	results := scheduler.Submit(ctx, txs)
	logger.Info("batch submitted", "submitted", len(results), "signFailures", len(failures))

	receipts := trk.TrackAll(ctx, results, timeout, cfg.PollInterval)
	end := time.Now()

	stats := metrics.Summarize(snap, results, receipts, start, end)
	logger.Info("run complete",
		"confirmed", stats.TotalConfirmed,
		"failed", stats.TotalFailed,
		"duration", stats.WallClockDuration,
		"throughput", metrics.FormatThroughput(stats),
	)

	return &Report{
		Sender:       cfg.Account.Address,
		ChainID:      chainID,
		Snapshot:     snap,
		StartedAt:    start,
		EndedAt:      end,
		Results:      results,
		Receipts:     receipts,
		SignFailures: failures,
		Stats:        stats,
		Cancelled:    ctx.Err() != nil,
	}, nil
}
