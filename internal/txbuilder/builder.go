// Package txbuilder turns a count and a nonce baseline into unsigned
// transaction descriptors.
package txbuilder

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txbench/pkg/types"
)

// Params holds everything needed to build a batch.
type Params struct {
	Count      int
	StartNonce uint64

	// Destinations is called once per descriptor.
	Destinations func() common.Address

	Value     *big.Int
	GasLimit  uint64
	GasPrice  *big.Int // legacy gas price, or fee cap for EIP-1559
	GasTipCap *big.Int // EIP-1559 only; defaults to GasPrice
	ChainID   *big.Int
	Legacy    bool
}

// Build produces exactly p.Count descriptors with nonces p.StartNonce,
// p.StartNonce+1, ... each paired with a fresh destination.
func Build(p Params) ([]types.TxDescriptor, error) {
	if p.Count < 1 {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidCount, p.Count)
	}
	if p.ChainID == nil || p.ChainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	if p.Destinations == nil {
		return nil, errors.New("destination supplier is required")
	}
	if p.GasLimit == 0 {
		return nil, errors.New("gas limit must be positive")
	}
	if p.GasPrice == nil || p.GasPrice.Sign() < 0 {
		return nil, errors.New("gas price must be non-negative")
	}

	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	tip := p.GasTipCap
	if tip == nil && !p.Legacy {
		tip = p.GasPrice
	}

	descs := make([]types.TxDescriptor, p.Count)
	for i := range descs {
		descs[i] = types.TxDescriptor{
			Nonce:     p.StartNonce + uint64(i),
			To:        p.Destinations(),
			Value:     value,
			GasLimit:  p.GasLimit,
			GasPrice:  p.GasPrice,
			ChainID:   p.ChainID,
			GasTipCap: tip,
			Legacy:    p.Legacy,
		}
	}
	return descs, nil
}

// RandomDestinations returns a supplier of random addresses.
func RandomDestinations() func() common.Address {
	return func() common.Address {
		var addr common.Address
		if _, err := rand.Read(addr[:]); err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		return addr
	}
}

// FixedDestination returns a supplier that always yields addr.
func FixedDestination(addr common.Address) func() common.Address {
	return func() common.Address { return addr }
}
