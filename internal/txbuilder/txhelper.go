package txbuilder

import (
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txbench/pkg/types"
)

// NewTx creates either a LegacyTx or a DynamicFeeTx from a descriptor.
// For EIP-1559 transactions GasPrice is used as the fee cap.
func NewTx(d types.TxDescriptor) *ethtypes.Transaction {
	to := d.To
	if d.Legacy {
		return ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    d.Nonce,
			GasPrice: d.GasPrice,
			Gas:      d.GasLimit,
			To:       &to,
			Value:    d.Value,
		})
	}
	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   d.ChainID,
		Nonce:     d.Nonce,
		GasTipCap: d.GasTipCap,
		GasFeeCap: d.GasPrice,
		Gas:       d.GasLimit,
		To:        &to,
		Value:     d.Value,
	})
}
