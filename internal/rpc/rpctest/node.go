// Package rpctest provides an in-memory rpc.Client for tests.
package rpctest

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txbench/internal/rpc"
)

var errUnsupported = errors.New("rpctest: raw calls not supported")

// Node is a fake node. With no hooks set it accepts every transaction and
// reports a successful receipt on the first poll.
type Node struct {
	ChainIDValue *big.Int
	Balance      *big.Int
	Nonce        uint64

	ChainIDErr error
	BalanceErr error

	// SendFunc overrides eth_sendRawTransaction. It runs under no lock.
	SendFunc func(tx *ethtypes.Transaction) (common.Hash, error)
	// ReceiptFunc overrides eth_getTransactionReceipt. polls counts earlier
	// polls for the same hash.
	ReceiptFunc func(hash common.Hash, polls int) (*rpc.TransactionReceipt, error)

	mu      sync.Mutex
	sent    []*ethtypes.Transaction
	polls   map[common.Hash]int
	batches int
}

var _ rpc.Client = (*Node)(nil)

// NewNode returns a node on chain 1337 with a 1 ETH balance.
func NewNode() *Node {
	return &Node{
		ChainIDValue: big.NewInt(1337),
		Balance:      new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
	}
}

func (n *Node) Call(context.Context, string, []any) (json.RawMessage, error) {
	return nil, errUnsupported
}

func (n *Node) BatchCall(context.Context, []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
	return nil, errUnsupported
}

func (n *Node) ChainID(context.Context) (*big.Int, error) {
	if n.ChainIDErr != nil {
		return nil, n.ChainIDErr
	}
	return new(big.Int).Set(n.ChainIDValue), nil
}

func (n *Node) GetTransactionCount(context.Context, common.Address, string) (uint64, error) {
	return n.Nonce, nil
}

func (n *Node) GetBalance(context.Context, common.Address) (*big.Int, error) {
	if n.BalanceErr != nil {
		return nil, n.BalanceErr
	}
	return new(big.Int).Set(n.Balance), nil
}

func (n *Node) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, &rpc.RPCError{Code: -32602, Message: "invalid transaction: " + err.Error()}
	}

	n.mu.Lock()
	n.sent = append(n.sent, tx)
	n.mu.Unlock()

	if n.SendFunc != nil {
		return n.SendFunc(tx)
	}
	return tx.Hash(), nil
}

func (n *Node) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	if n.polls == nil {
		n.polls = make(map[common.Hash]int)
	}
	polls := n.polls[hash]
	n.polls[hash]++
	n.mu.Unlock()

	if n.ReceiptFunc != nil {
		return n.ReceiptFunc(hash, polls)
	}
	return &rpc.TransactionReceipt{TxHash: hash, Status: 1, GasUsed: 21000, BlockNumber: 1}, nil
}

func (n *Node) GetTransactionReceiptsBatch(ctx context.Context, hashes []common.Hash) ([]*rpc.TransactionReceipt, []error, error) {
	n.mu.Lock()
	n.batches++
	n.mu.Unlock()

	receipts := make([]*rpc.TransactionReceipt, len(hashes))
	errs := make([]error, len(hashes))
	for i, h := range hashes {
		receipts[i], errs[i] = n.GetTransactionReceipt(ctx, h)
	}
	return receipts, errs, nil
}

// Sent returns the transactions received so far, in arrival order.
func (n *Node) Sent() []*ethtypes.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*ethtypes.Transaction(nil), n.sent...)
}

// Polls returns how many times the receipt for hash was requested.
func (n *Node) Polls(hash common.Hash) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.polls[hash]
}

// Batches returns the number of batched receipt requests.
func (n *Node) Batches() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.batches
}
