// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txbench/pkg/types"
)

// Config holds the settings of one txbench run.
type Config struct {
	RPCURL     string
	WSURL      string // newHeads endpoint, WSAuto to derive it from RPCURL; empty disables
	PrivateKey string // hex, with or without 0x
	ChainID    int64  // 0 = ask the node

	Count       int
	Order       types.SubmitOrder
	Concurrency int     // in-flight submissions
	SignWorkers int     // 0 = GOMAXPROCS
	Rate        float64 // submissions per second, 0 = unlimited
	Seed        int64   // shuffle seed, 0 = random

	Value     int64 // wei per transfer
	GasLimit  uint64
	GasPrice  int64 // wei; fee cap for EIP-1559
	GasTipCap int64 // wei; 0 = GasPrice
	Legacy    bool
	Receiver  string // fixed destination; empty = random per tx

	Timeout            time.Duration
	PollInterval       time.Duration
	MaxPollInterval    time.Duration
	ReceiptConcurrency int
	ReceiptBatchSize   int

	RPCTimeout time.Duration
	RPCRetries int

	LogLevel       string
	DatabasePath   string // empty disables the run archive
	PushgatewayURL string // empty disables metrics push
}

// Defaults
const (
	DefaultRPCURL             = "http://localhost:8545"
	DefaultCount              = 1
	DefaultOrder              = types.OrderShuffled
	DefaultConcurrency        = 64
	DefaultValue              = 1_000_000_000 // 1 Gwei
	DefaultGasLimit           = 2_000_000
	DefaultGasPrice           = 1_000_000_000 // 1 Gwei
	DefaultTimeout            = 2 * time.Minute
	DefaultPollInterval       = 100 * time.Millisecond
	DefaultMaxPollInterval    = 2 * time.Second
	DefaultReceiptConcurrency = 32
	DefaultRPCTimeout         = 5 * time.Second
	DefaultRPCRetries         = 3
	DefaultLogLevel           = "info"
	DefaultDatabasePath       = "./data/txbench.db"
)

// WSAuto derives the websocket endpoint from RPCURL.
const WSAuto = "auto"

// Default returns a config with every field at its default. The archive is
// off until DatabasePath is set.
func Default() *Config {
	return &Config{
		RPCURL:             DefaultRPCURL,
		Count:              DefaultCount,
		Order:              DefaultOrder,
		Concurrency:        DefaultConcurrency,
		Value:              DefaultValue,
		GasLimit:           DefaultGasLimit,
		GasPrice:           DefaultGasPrice,
		Legacy:             true,
		Timeout:            DefaultTimeout,
		PollInterval:       DefaultPollInterval,
		MaxPollInterval:    DefaultMaxPollInterval,
		ReceiptConcurrency: DefaultReceiptConcurrency,
		RPCTimeout:         DefaultRPCTimeout,
		RPCRetries:         DefaultRPCRetries,
		LogLevel:           DefaultLogLevel,
	}
}

// ApplyEnv overrides fields from environment variables. Command-line flags
// are applied afterwards and take precedence.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := parseInt64Env(v)
		if err != nil {
			return fmt.Errorf("invalid CHAIN_ID %q: %w", v, err)
		}
		c.ChainID = id
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		c.PushgatewayURL = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.WSURL != "" && c.WSURL != WSAuto &&
		!strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("invalid websocket URL %q (want ws://, wss:// or %q)", c.WSURL, WSAuto)
	}
	if strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x") == "" {
		return types.ErrMissingKey
	}
	if c.Count < 1 {
		return fmt.Errorf("%w: %d", types.ErrInvalidCount, c.Count)
	}
	if _, ok := types.ParseSubmitOrder(string(c.Order)); !ok {
		return fmt.Errorf("invalid order %q (supported: sequential, shuffled, reversed)", c.Order)
	}
	if c.ChainID < 0 {
		return fmt.Errorf("chain ID cannot be negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.SignWorkers < 0 {
		return fmt.Errorf("sign workers cannot be negative")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate cannot be negative")
	}
	if c.Value < 0 {
		return fmt.Errorf("value cannot be negative")
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("gas limit must be positive")
	}
	if c.GasPrice <= 0 {
		return fmt.Errorf("gas price must be positive")
	}
	if c.GasTipCap < 0 {
		return fmt.Errorf("gas tip cap cannot be negative")
	}
	if c.GasTipCap > c.GasPrice {
		return fmt.Errorf("gas tip cap %d exceeds gas price %d", c.GasTipCap, c.GasPrice)
	}
	if c.Receiver != "" && !common.IsHexAddress(c.Receiver) {
		return fmt.Errorf("invalid receiver address %q", c.Receiver)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.ReceiptConcurrency < 1 {
		return fmt.Errorf("receipt concurrency must be positive")
	}
	if c.ReceiptBatchSize < 0 {
		return fmt.Errorf("receipt batch size cannot be negative")
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.RPCRetries < 0 {
		return fmt.Errorf("RPC retries cannot be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// parseInt64Env parses a string environment variable as an int64.
func parseInt64Env(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
