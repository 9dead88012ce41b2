package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// testNode is a minimal JSON-RPC server. handle returns either a result or an error object.
type testNode struct {
	srv      *httptest.Server
	requests atomic.Int32
}

func newTestNode(t *testing.T, handle func(req JSONRPCRequest) (any, *JSONRPCError)) *testNode {
	t.Helper()
	n := &testNode{}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.requests.Add(1)

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		respond := func(req JSONRPCRequest) JSONRPCResponse {
			result, rpcErr := handle(req)
			resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
			if rpcErr == nil {
				resp.Result, _ = json.Marshal(result)
			}
			return resp
		}

		w.Header().Set("Content-Type", "application/json")
		if len(raw) > 0 && raw[0] == '[' {
			var reqs []JSONRPCRequest
			_ = json.Unmarshal(raw, &reqs)
			resps := make([]JSONRPCResponse, 0, len(reqs))
			// answer in reverse to exercise ID matching
			for i := len(reqs) - 1; i >= 0; i-- {
				resps = append(resps, respond(reqs[i]))
			}
			_ = json.NewEncoder(w).Encode(resps)
			return
		}

		var req JSONRPCRequest
		_ = json.Unmarshal(raw, &req)
		_ = json.NewEncoder(w).Encode(respond(req))
	}))
	t.Cleanup(n.srv.Close)
	return n
}

func testClient(url string) *HTTPClient {
	cfg := DefaultClientConfig(url)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return NewHTTPClient(cfg)
}

func TestRPCError(t *testing.T) {
	err := &RPCError{Code: -32000, Message: "nonce too low"}

	errStr := err.Error()
	if errStr != "RPC error -32000: nonce too low" {
		t.Errorf("RPCError.Error() = %q, want %q", errStr, "RPC error -32000: nonce too low")
	}

	if !IsRPCError(err) {
		t.Error("IsRPCError should return true for *RPCError")
	}
	if !IsRPCError(errors.Join(errors.New("wrapped"), err)) {
		t.Error("IsRPCError should see through wrapping")
	}
}

func TestHTTPStatusError(t *testing.T) {
	tests := []struct {
		name       string
		err        HTTPStatusError
		wantString string
		wantRetry  bool
	}{
		{
			name:       "429 Too Many Requests",
			err:        HTTPStatusError{StatusCode: 429, Body: "rate limited"},
			wantString: "HTTP 429: Too Many Requests (body: rate limited)",
			wantRetry:  true,
		},
		{
			name:       "502 Bad Gateway",
			err:        HTTPStatusError{StatusCode: 502},
			wantString: "HTTP 502: Bad Gateway",
			wantRetry:  true,
		},
		{
			name:       "503 Service Unavailable",
			err:        HTTPStatusError{StatusCode: 503},
			wantString: "HTTP 503: Service Unavailable",
			wantRetry:  true,
		},
		{
			name:       "400 Bad Request not retryable",
			err:        HTTPStatusError{StatusCode: 400, Body: "invalid request"},
			wantString: "HTTP 400: Bad Request (body: invalid request)",
			wantRetry:  false,
		},
		{
			name:       "500 Internal Server Error not retryable",
			err:        HTTPStatusError{StatusCode: 500},
			wantString: "HTTP 500: Internal Server Error",
			wantRetry:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantString {
				t.Errorf("HTTPStatusError.Error() = %q, want %q", got, tt.wantString)
			}
			if got := tt.err.IsRetryable(); got != tt.wantRetry {
				t.Errorf("HTTPStatusError.IsRetryable() = %v, want %v", got, tt.wantRetry)
			}
		})
	}
}

func TestRetryPolicies(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantRead bool
		wantSend bool
	}{
		{"rpc error", &RPCError{Code: -32000, Message: "already known"}, false, false},
		{"429", &HTTPStatusError{StatusCode: 429}, true, true},
		{"503", &HTTPStatusError{StatusCode: 503}, true, true},
		{"502", &HTTPStatusError{StatusCode: 502}, true, false},
		{"400", &HTTPStatusError{StatusCode: 400}, false, false},
		{"network", errors.New("connection reset"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.wantRead {
				t.Errorf("isRetryable() = %v, want %v", got, tt.wantRead)
			}
			if got := isSendRetryable(tt.err); got != tt.wantSend {
				t.Errorf("isSendRetryable() = %v, want %v", got, tt.wantSend)
			}
		})
	}
}

func TestGetRetryDelay(t *testing.T) {
	defaultBackoff := 100 * time.Millisecond

	tests := []struct {
		name      string
		err       error
		wantDelay time.Duration
	}{
		{
			name:      "HTTP error with Retry-After",
			err:       &HTTPStatusError{StatusCode: 429, RetryAfter: 2 * time.Second},
			wantDelay: 2 * time.Second,
		},
		{
			name:      "HTTP error without Retry-After",
			err:       &HTTPStatusError{StatusCode: 503},
			wantDelay: defaultBackoff,
		},
		{
			name:      "RPC error uses default",
			err:       &RPCError{Code: -32000, Message: "test"},
			wantDelay: defaultBackoff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getRetryDelay(tt.err, defaultBackoff); got != tt.wantDelay {
				t.Errorf("getRetryDelay() = %v, want %v", got, tt.wantDelay)
			}
		})
	}
}

func TestDefaultClientConfig(t *testing.T) {
	url := "http://localhost:8545"
	cfg := DefaultClientConfig(url)

	if cfg.URL != url {
		t.Errorf("URL = %q, want %q", cfg.URL, url)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 5*time.Second)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
}

func TestHTTPClient_EthMethods(t *testing.T) {
	addr := common.HexToAddress("0x67b1d87101671b127f5f8714789C7192f7ad340e")
	txHash := common.HexToHash("0xabc1")

	node := newTestNode(t, func(req JSONRPCRequest) (any, *JSONRPCError) {
		switch req.Method {
		case "eth_chainId":
			return "0xf423f", nil // 999999
		case "eth_getTransactionCount":
			if req.Params[1] != "pending" {
				return "0x5", nil
			}
			return "0x7", nil
		case "eth_getBalance":
			return "0xde0b6b3a7640000", nil // 1 ETH
		case "eth_sendRawTransaction":
			return txHash.Hex(), nil
		}
		return nil, &JSONRPCError{Code: -32601, Message: "method not found"}
	})
	c := testClient(node.srv.URL)
	ctx := context.Background()

	chainID, err := c.ChainID(ctx)
	if err != nil || chainID.Int64() != 999999 {
		t.Fatalf("ChainID() = %v, %v", chainID, err)
	}

	nonce, err := c.GetTransactionCount(ctx, addr, "latest")
	if err != nil || nonce != 5 {
		t.Fatalf("GetTransactionCount(latest) = %d, %v", nonce, err)
	}
	nonce, err = c.GetTransactionCount(ctx, addr, "pending")
	if err != nil || nonce != 7 {
		t.Fatalf("GetTransactionCount(pending) = %d, %v", nonce, err)
	}

	balance, err := c.GetBalance(ctx, addr)
	if err != nil || balance.Cmp(big.NewInt(1e18)) != 0 {
		t.Fatalf("GetBalance() = %v, %v", balance, err)
	}

	hash, err := c.SendRawTransaction(ctx, []byte{0x01, 0x02})
	if err != nil || hash != txHash {
		t.Fatalf("SendRawTransaction() = %v, %v", hash, err)
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	node := newTestNode(t, func(req JSONRPCRequest) (any, *JSONRPCError) {
		return nil, &JSONRPCError{Code: -32000, Message: "nonce too low"}
	})
	c := testClient(node.srv.URL)

	_, err := c.SendRawTransaction(context.Background(), []byte{0x01})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Message != "nonce too low" {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if got := node.requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestHTTPClient_RetriesServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	nonce, err := c.GetTransactionCount(context.Background(), common.Address{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nonce != 16 {
		t.Errorf("nonce = %d, want 16", nonce)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestHTTPClient_SendNotRetriedOnBadGateway(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.SendRawTransaction(context.Background(), []byte{0x01})
	var httpErr *HTTPStatusError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 HTTPStatusError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (send must not be retried after 502)", got)
	}
}

func TestHTTPClient_Receipts(t *testing.T) {
	mined := common.HexToHash("0x01")
	reverted := common.HexToHash("0x02")
	pending := common.HexToHash("0x03")

	node := newTestNode(t, func(req JSONRPCRequest) (any, *JSONRPCError) {
		h := common.HexToHash(req.Params[0].(string))
		switch h {
		case mined:
			return map[string]string{"transactionHash": h.Hex(), "status": "0x1", "gasUsed": "0x5208", "blockNumber": "0xa"}, nil
		case reverted:
			return map[string]string{"transactionHash": h.Hex(), "status": "0x0", "gasUsed": "0x5208", "blockNumber": "0xb"}, nil
		case pending:
			return nil, nil
		}
		return nil, &JSONRPCError{Code: -32000, Message: "boom"}
	})
	c := testClient(node.srv.URL)
	ctx := context.Background()

	r, err := c.GetTransactionReceipt(ctx, mined)
	if err != nil || r == nil || !r.Succeeded() || r.BlockNumber != 10 || r.GasUsed != 21000 {
		t.Fatalf("GetTransactionReceipt(mined) = %+v, %v", r, err)
	}

	r, err = c.GetTransactionReceipt(ctx, pending)
	if err != nil || r != nil {
		t.Fatalf("GetTransactionReceipt(pending) = %+v, %v; want nil, nil", r, err)
	}

	broken := common.HexToHash("0x04")
	receipts, errs, err := c.GetTransactionReceiptsBatch(ctx, []common.Hash{mined, reverted, pending, broken})
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if receipts[0] == nil || !receipts[0].Succeeded() {
		t.Errorf("receipts[0] = %+v, want success", receipts[0])
	}
	if receipts[1] == nil || receipts[1].Succeeded() || receipts[1].BlockNumber != 11 {
		t.Errorf("receipts[1] = %+v, want reverted in block 11", receipts[1])
	}
	if receipts[2] != nil || errs[2] != nil {
		t.Errorf("receipts[2] = %+v, %v; want pending", receipts[2], errs[2])
	}
	if errs[3] == nil || !IsRPCError(errs[3]) {
		t.Errorf("errs[3] = %v, want RPCError", errs[3])
	}
	if got := node.requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3 (batch is one request)", got)
	}
}

func TestHTTPClient_Observer(t *testing.T) {
	node := newTestNode(t, func(req JSONRPCRequest) (any, *JSONRPCError) {
		return "0x1", nil
	})

	var mu sync.Mutex
	var methods []string
	cfg := DefaultClientConfig(node.srv.URL)
	cfg.Observer = func(method string, err error, elapsed time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		methods = append(methods, method)
	}
	c := NewHTTPClient(cfg)

	if _, err := c.ChainID(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 1 || methods[0] != "eth_chainId" {
		t.Errorf("observed %v, want [eth_chainId]", methods)
	}
}
