package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChainID returns the chain id reported by eth_chainId.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return nil, err
	}
	return decodeBig(result, "chain id")
}

// GetTransactionCount returns the account nonce at the given block tag.
func (c *HTTPClient) GetTransactionCount(ctx context.Context, address common.Address, block string) (uint64, error) {
	if block == "" {
		block = "latest"
	}
	result, err := c.Call(ctx, "eth_getTransactionCount", []any{address.Hex(), block})
	if err != nil {
		return 0, err
	}
	return decodeUint64(result, "nonce")
}

// GetBalance returns the balance for an address at the latest block.
func (c *HTTPClient) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_getBalance", []any{address.Hex(), "latest"})
	if err != nil {
		return nil, err
	}
	return decodeBig(result, "balance")
}

// SendRawTransaction sends a signed transaction.
func (c *HTTPClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	result, err := c.call(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(raw)}, isSendRetryable)
	if err != nil {
		return common.Hash{}, err
	}

	var hashHex string
	if err := json.Unmarshal(result, &hashHex); err != nil {
		return common.Hash{}, fmt.Errorf("failed to unmarshal tx hash: %w", err)
	}
	return common.HexToHash(hashHex), nil
}

// GetTransactionReceipt returns the receipt for a transaction.
func (c *HTTPClient) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*TransactionReceipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []any{txHash.Hex()})
	if err != nil {
		return nil, err
	}
	return parseReceipt(result)
}

// GetTransactionReceiptsBatch fetches multiple transaction receipts in a single request.
// Returns receipts in the same order as txHashes.
func (c *HTTPClient) GetTransactionReceiptsBatch(ctx context.Context, txHashes []common.Hash) ([]*TransactionReceipt, []error, error) {
	if len(txHashes) == 0 {
		return nil, nil, nil
	}

	calls := make([]BatchRequest, len(txHashes))
	for i, hash := range txHashes {
		calls[i] = BatchRequest{
			Method: "eth_getTransactionReceipt",
			Params: []any{hash.Hex()},
		}
	}

	responses, err := c.BatchCall(ctx, calls)
	if err != nil {
		return nil, nil, fmt.Errorf("batch call failed: %w", err)
	}

	receipts := make([]*TransactionReceipt, len(txHashes))
	errs := make([]error, len(txHashes))
	for i, resp := range responses {
		if resp.Error != nil {
			errs[i] = resp.Error
			continue
		}
		receipts[i], errs[i] = parseReceipt(resp.Result)
	}
	return receipts, errs, nil
}

// parseReceipt decodes a receipt; a JSON null means not yet mined.
func parseReceipt(data json.RawMessage) (*TransactionReceipt, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var raw struct {
		TransactionHash   string `json:"transactionHash"`
		Status            string `json:"status"`
		GasUsed           string `json:"gasUsed"`
		BlockNumber       string `json:"blockNumber"`
		EffectiveGasPrice string `json:"effectiveGasPrice"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}

	status, err := hexutil.DecodeUint64(raw.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to decode receipt status %q: %w", raw.Status, err)
	}
	gasUsed, _ := hexutil.DecodeUint64(raw.GasUsed)
	blockNumber, _ := hexutil.DecodeUint64(raw.BlockNumber)
	effectiveGasPrice, _ := hexutil.DecodeUint64(raw.EffectiveGasPrice)

	return &TransactionReceipt{
		TxHash:            common.HexToHash(raw.TransactionHash),
		Status:            status,
		GasUsed:           gasUsed,
		BlockNumber:       blockNumber,
		EffectiveGasPrice: effectiveGasPrice,
	}, nil
}

func decodeUint64(result json.RawMessage, what string) (uint64, error) {
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return 0, fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, fmt.Errorf("failed to decode %s %q: %w", what, s, err)
	}
	return v, nil
}

func decodeBig(result json.RawMessage, what string) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %q: %w", what, s, err)
	}
	return v, nil
}
