// Package rpc provides JSON-RPC client functionality with retry logic.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Client is the node capability set consumed by the submission pipeline.
// Implementations must be safe for concurrent use.
type Client interface {
	// Call makes a JSON-RPC call.
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// BatchCall makes multiple JSON-RPC calls in a single HTTP request.
	BatchCall(ctx context.Context, calls []BatchRequest) ([]BatchResponse, error)

	// ChainID returns the chain id reported by the node.
	ChainID(ctx context.Context) (*big.Int, error)

	// GetTransactionCount returns the nonce of address at block ("latest" or "pending").
	GetTransactionCount(ctx context.Context, address common.Address, block string) (uint64, error)

	// GetBalance returns the balance of address at the latest block.
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)

	// SendRawTransaction submits a signed transaction and returns the hash the node reports.
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	// GetTransactionReceipt returns the receipt, or nil while the transaction is pending.
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*TransactionReceipt, error)

	// GetTransactionReceiptsBatch fetches receipts in one request. Entries are nil
	// for pending transactions; per-entry failures are returned in errs.
	GetTransactionReceiptsBatch(ctx context.Context, txHashes []common.Hash) (receipts []*TransactionReceipt, errs []error, err error)
}

// TransactionReceipt is the subset of an Ethereum receipt the tracker needs.
type TransactionReceipt struct {
	TxHash            common.Hash `json:"transactionHash"`
	Status            uint64      `json:"status"` // 1 = success, 0 = reverted
	GasUsed           uint64      `json:"gasUsed"`
	BlockNumber       uint64      `json:"blockNumber"`
	EffectiveGasPrice uint64      `json:"effectiveGasPrice"`
}

// Succeeded reports whether execution succeeded.
func (r *TransactionReceipt) Succeeded() bool {
	return r.Status == 1
}

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// JSONRPCError represents a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// BatchRequest represents a single request in a batch.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResponse represents a single response in a batch.
type BatchResponse struct {
	Result json.RawMessage
	Error  error
}

// Observer is notified after every HTTP round trip.
type Observer func(method string, err error, elapsed time.Duration)

// ClientConfig holds configuration for the RPC client.
type ClientConfig struct {
	URL            string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxConns       int
	Observer       Observer
	Logger         *slog.Logger
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:            url,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		MaxConns:       256,
	}
}

// HTTPClient implements Client using HTTP.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	observer   Observer
	logger     *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP-based RPC client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 256
	}

	transport := &http.Transport{
		MaxIdleConns:        maxConns * 2,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns, // keep in step with sender/tracker concurrency
		IdleConnTimeout:     90 * time.Second,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		url: cfg.URL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		observer:   cfg.Observer,
		logger:     logger,
	}
}

// Call makes a JSON-RPC call with retry logic.
func (c *HTTPClient) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return c.call(ctx, method, params, isRetryable)
}

// call marshals a single request and retries while retry(err) holds.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, retry func(error) bool) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result json.RawMessage
	err = c.withRetry(ctx, method, retry, func() error {
		respBody, err := c.post(ctx, method, body)
		if err != nil {
			return err
		}

		var rpcResp JSONRPCResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if rpcResp.Error != nil {
			return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
		}
		result = rpcResp.Result
		return nil
	})
	return result, err
}

// withRetry runs attempt until it succeeds, returns a non-retryable error,
// or the retry budget is spent.
func (c *HTTPClient) withRetry(ctx context.Context, method string, retry func(error) bool, attempt func() error) error {
	var lastErr error
	backoff := c.backoff

	for n := 0; n <= c.maxRetries; n++ {
		if n > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff = min(backoff*2, c.maxBackoff)
		}

		err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retry(err) {
			return err
		}

		backoff = getRetryDelay(err, backoff)
		c.logger.Debug("RPC call failed, retrying",
			slog.String("method", method),
			slog.Int("attempt", n+1),
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)
	}

	return fmt.Errorf("all retries failed: %w", lastErr)
}

// post sends one HTTP request and returns the body of a 200 response.
func (c *HTTPClient) post(ctx context.Context, method string, body []byte) (respBody []byte, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer(method, err, time.Since(start))
		}
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check HTTP status code BEFORE reading/parsing body
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil {
				retryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Body:       string(errBody),
		}
	}

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, nil
}

// BatchCall makes multiple JSON-RPC calls in a single HTTP request.
// Results are returned in the same order as the input calls.
// Individual call errors are returned in BatchResponse.Error.
func (c *HTTPClient) BatchCall(ctx context.Context, calls []BatchRequest) ([]BatchResponse, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	reqs := make([]JSONRPCRequest, len(calls))
	for i, call := range calls {
		params := call.Params
		if params == nil {
			params = []any{}
		}
		reqs[i] = JSONRPCRequest{
			JSONRPC: "2.0",
			Method:  call.Method,
			Params:  params,
			ID:      i + 1, // 1-indexed IDs for easier debugging
		}
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	method := "batch:" + calls[0].Method
	var results []BatchResponse
	err = c.withRetry(ctx, method, isRetryableHTTPError, func() error {
		respBody, err := c.post(ctx, method, body)
		if err != nil {
			return err
		}
		results, err = decodeBatch(respBody, len(calls))
		return err
	})
	return results, err
}

// decodeBatch matches batch responses to requests by ID.
func decodeBatch(respBody []byte, expectedCount int) ([]BatchResponse, error) {
	var rpcResps []JSONRPCResponse
	if err := json.Unmarshal(respBody, &rpcResps); err != nil {
		// Some nodes answer a batch with a single error object.
		var single JSONRPCResponse
		if err2 := json.Unmarshal(respBody, &single); err2 == nil && single.Error != nil {
			return nil, &RPCError{Code: single.Error.Code, Message: single.Error.Message}
		}
		return nil, fmt.Errorf("failed to unmarshal batch response: %w", err)
	}

	respMap := make(map[int]*JSONRPCResponse, len(rpcResps))
	for i := range rpcResps {
		respMap[rpcResps[i].ID] = &rpcResps[i]
	}

	results := make([]BatchResponse, expectedCount)
	for i := range expectedCount {
		rpcResp, ok := respMap[i+1]
		if !ok {
			results[i] = BatchResponse{Error: fmt.Errorf("missing response for request %d", i+1)}
			continue
		}
		if rpcResp.Error != nil {
			results[i] = BatchResponse{Error: &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}}
			continue
		}
		results[i] = BatchResponse{Result: rpcResp.Result}
	}
	return results, nil
}
