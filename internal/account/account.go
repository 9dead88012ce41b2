// Package account holds the signing account used for a run.
package account

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/txbench/internal/rpc"
	"github.com/gateway-fm/txbench/pkg/types"
)

// Account holds a sender's key and address.
type Account struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// NewAccount creates an account from a private key.
func NewAccount(privateKey *ecdsa.PrivateKey) *Account {
	return &Account{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewAccountFromHex creates an account from a hex-encoded private key.
// A leading 0x is accepted.
func NewAccountFromHex(hexKey string) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, types.ErrMissingKey
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewAccount(privateKey), nil
}

// Snapshot reads the balance and the latest confirmed nonce of the account.
func (a *Account) Snapshot(ctx context.Context, client rpc.Client) (types.AccountSnapshot, error) {
	balance, err := client.GetBalance(ctx, a.Address)
	if err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("get balance of %s: %w", a.Address.Hex(), err)
	}
	nonce, err := client.GetTransactionCount(ctx, a.Address, "latest")
	if err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("get nonce of %s: %w", a.Address.Hex(), err)
	}
	return types.AccountSnapshot{Balance: balance, Nonce: nonce}, nil
}

// Well-known dev private keys (Anvil/Hardhat default accounts), used by tests
// and local devnets.
var TestPrivateKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
}
