package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/gateway-fm/txbench/internal/account"
	"github.com/gateway-fm/txbench/internal/config"
	"github.com/gateway-fm/txbench/internal/heads"
	"github.com/gateway-fm/txbench/internal/metrics"
	"github.com/gateway-fm/txbench/internal/pipeline"
	"github.com/gateway-fm/txbench/internal/rpc"
	"github.com/gateway-fm/txbench/internal/storage"
	"github.com/gateway-fm/txbench/internal/txbuilder"
	"github.com/gateway-fm/txbench/pkg/types"
)

const pushJob = "txbench"

func newRunCmd(logger *slog.Logger, cfg *config.Config, envErr error) *cobra.Command {
	order := string(cfg.Order)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a batch of transfers and track their receipts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			cfg.Order = types.SubmitOrder(order)
			return runBatch(cmd.Context(), logger, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.RPCURL, "rpc", cfg.RPCURL,
		"JSON-RPC HTTP endpoint")
	flags.StringVar(&cfg.WSURL, "ws", cfg.WSURL,
		"Websocket endpoint for newHeads; \"auto\" derives it from --rpc, empty polls on a timer only")
	flags.StringVar(&cfg.PrivateKey, "key", cfg.PrivateKey,
		"Sender private key in hex (prefer PRIVATE_KEY)")
	flags.Int64Var(&cfg.ChainID, "chain-id", cfg.ChainID,
		"Chain ID (0 = ask the node)")
	flags.IntVarP(&cfg.Count, "count", "n", cfg.Count,
		"Number of transactions to submit")
	flags.StringVar(&order, "order", order,
		"Submission order: sequential, shuffled, reversed")
	flags.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency,
		"Max in-flight submissions")
	flags.IntVar(&cfg.SignWorkers, "sign-workers", cfg.SignWorkers,
		"Signing workers (0 = GOMAXPROCS)")
	flags.Float64Var(&cfg.Rate, "rate", cfg.Rate,
		"Max submissions per second (0 = unlimited)")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed,
		"Shuffle seed (0 = use current time)")
	flags.Int64Var(&cfg.Value, "value", cfg.Value,
		"Value per transfer in wei")
	flags.Uint64Var(&cfg.GasLimit, "gas-limit", cfg.GasLimit,
		"Gas limit per transaction")
	flags.Int64Var(&cfg.GasPrice, "gas-price", cfg.GasPrice,
		"Gas price in wei (fee cap for EIP-1559)")
	flags.Int64Var(&cfg.GasTipCap, "gas-tip-cap", cfg.GasTipCap,
		"EIP-1559 tip cap in wei (0 = gas price)")
	flags.BoolVar(&cfg.Legacy, "legacy", cfg.Legacy,
		"Send legacy (type 0) transactions")
	flags.StringVar(&cfg.Receiver, "to", cfg.Receiver,
		"Fixed receiver address (empty = random per transaction)")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout,
		"Receipt timeout, measured from the start of tracking")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval,
		"Receipt poll interval")
	flags.DurationVar(&cfg.MaxPollInterval, "max-poll-interval", cfg.MaxPollInterval,
		"Backoff ceiling for rounds that confirm nothing")
	flags.IntVar(&cfg.ReceiptConcurrency, "receipt-concurrency", cfg.ReceiptConcurrency,
		"Max in-flight receipt requests")
	flags.IntVar(&cfg.ReceiptBatchSize, "receipt-batch", cfg.ReceiptBatchSize,
		"Receipts per JSON-RPC batch (0 = no batching)")
	flags.DurationVar(&cfg.RPCTimeout, "rpc-timeout", cfg.RPCTimeout,
		"HTTP timeout per RPC request")
	flags.IntVar(&cfg.RPCRetries, "rpc-retries", cfg.RPCRetries,
		"Retries for retryable RPC failures")
	flags.StringVar(&cfg.PushgatewayURL, "pushgateway", cfg.PushgatewayURL,
		"Prometheus Pushgateway URL (empty disables push)")

	return cmd
}

// runBatch runs one batch and writes progress, summary and report to out.
func runBatch(ctx context.Context, logger *slog.Logger, cfg *config.Config, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	acc, err := account.NewAccountFromHex(cfg.PrivateKey)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()

	clientCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	clientCfg.Timeout = cfg.RPCTimeout
	clientCfg.MaxRetries = cfg.RPCRetries
	clientCfg.MaxConns = max(cfg.Concurrency, cfg.ReceiptConcurrency)
	clientCfg.Observer = recorder.ObserveRPC
	clientCfg.Logger = logger
	client := rpc.NewHTTPClient(clientCfg)

	pcfg := pipeline.Config{
		Client:             client,
		Account:            acc,
		Count:              cfg.Count,
		Value:              big.NewInt(cfg.Value),
		GasLimit:           cfg.GasLimit,
		GasPrice:           big.NewInt(cfg.GasPrice),
		Legacy:             cfg.Legacy,
		SignWorkers:        cfg.SignWorkers,
		Concurrency:        cfg.Concurrency,
		Order:              cfg.Order,
		Rate:               cfg.Rate,
		Seed:               cfg.Seed,
		Timeout:            cfg.Timeout,
		PollInterval:       cfg.PollInterval,
		MaxPollInterval:    cfg.MaxPollInterval,
		ReceiptConcurrency: cfg.ReceiptConcurrency,
		ReceiptBatchSize:   cfg.ReceiptBatchSize,
		Metrics:            recorder,
		Logger:             logger,
		Progress: func(i int, tx types.SignedTx) {
			fmt.Fprintf(out, "%d %d\n", i, tx.Descriptor.Nonce)
		},
	}
	if cfg.ChainID > 0 {
		pcfg.ChainID = big.NewInt(cfg.ChainID)
	}
	if cfg.GasTipCap > 0 {
		pcfg.GasTipCap = big.NewInt(cfg.GasTipCap)
	}
	if cfg.Receiver != "" {
		pcfg.Destinations = txbuilder.FixedDestination(common.HexToAddress(cfg.Receiver))
	}

	if wsURL := resolveWSURL(cfg); wsURL != "" {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		ch, err := heads.Watch(watchCtx, wsURL, logger)
		if err != nil {
			logger.Warn("newHeads unavailable, polling on interval only", "error", err)
		} else {
			pcfg.Heads = ch
		}
	}

	report, err := pipeline.Run(ctx, pcfg)
	if err != nil {
		return err
	}

	if err := metrics.WriteSummary(out, report.Stats); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	metrics.WriteReport(out, report.Stats)

	if report.Cancelled {
		logger.Warn("run interrupted, results are partial")
	}

	recorder.SetRunStatistics(report.Stats)
	if cfg.PushgatewayURL != "" {
		if err := recorder.Push(cfg.PushgatewayURL, pushJob); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}

	if cfg.DatabasePath != "" {
		// Archive even when the run was interrupted.
		if err := archiveRun(context.WithoutCancel(ctx), logger, cfg, report); err != nil {
			return err
		}
	}
	return nil
}

// resolveWSURL returns the newHeads endpoint, or "" when disabled.
func resolveWSURL(cfg *config.Config) string {
	if cfg.WSURL == config.WSAuto {
		return heads.WSURL(cfg.RPCURL)
	}
	return cfg.WSURL
}

func archiveRun(ctx context.Context, logger *slog.Logger, cfg *config.Config, report *pipeline.Report) error {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open run archive: %w", err)
	}
	defer store.Close()

	status := storage.RunCompleted
	if report.Cancelled {
		status = storage.RunCancelled
	}

	run := &storage.Run{
		StartedAt:    report.StartedAt,
		CompletedAt:  report.EndedAt,
		RPCURL:       cfg.RPCURL,
		ChainID:      report.ChainID.Uint64(),
		Sender:       report.Sender.Hex(),
		Count:        cfg.Count,
		Order:        string(cfg.Order),
		SignFailures: len(report.SignFailures),
		Status:       status,
		Stats:        report.Stats,
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.SaveRun(ctx, run, storage.NewTxLogs(report.Results, report.Receipts)); err != nil {
		return fmt.Errorf("archive run: %w", err)
	}
	logger.Info("run archived", "id", run.ID, "path", cfg.DatabasePath)
	return nil
}
