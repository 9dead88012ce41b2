package account

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/txbench/internal/rpc/rpctest"
	"github.com/gateway-fm/txbench/pkg/types"
)

func TestNewAccountFromHex(t *testing.T) {
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"plain", TestPrivateKeys[0], nil},
		{"prefixed", "0x" + TestPrivateKeys[0], nil},
		{"padded", "  " + TestPrivateKeys[0] + "\n", nil},
		{"empty", "", types.ErrMissingKey},
		{"prefix only", "0x", types.ErrMissingKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := NewAccountFromHex(tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, want, acc.Address)
		})
	}
}

func TestNewAccountFromHex_Invalid(t *testing.T) {
	_, err := NewAccountFromHex("not-a-key")
	require.Error(t, err)
	require.NotErrorIs(t, err, types.ErrMissingKey)
}

func TestSnapshot(t *testing.T) {
	acc, err := NewAccountFromHex(TestPrivateKeys[1])
	require.NoError(t, err)

	node := rpctest.NewNode()
	node.Nonce = 42
	node.Balance = big.NewInt(123456)

	snap, err := acc.Snapshot(context.Background(), node)
	require.NoError(t, err)
	require.Equal(t, uint64(42), snap.Nonce)
	require.Equal(t, 0, snap.Balance.Cmp(big.NewInt(123456)))
}

func TestSnapshot_Error(t *testing.T) {
	acc, err := NewAccountFromHex(TestPrivateKeys[1])
	require.NoError(t, err)

	boom := errors.New("connection refused")
	node := rpctest.NewNode()
	node.BalanceErr = boom

	_, err = acc.Snapshot(context.Background(), node)
	require.ErrorIs(t, err, boom)
}
