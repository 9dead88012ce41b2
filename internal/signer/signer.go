// Package signer signs transaction descriptors in parallel.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"runtime"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txbench/internal/txbuilder"
	"github.com/gateway-fm/txbench/pkg/types"
)

// Result is the signing outcome for the descriptor at Index.
type Result struct {
	Index int
	Tx    *types.SignedTx // nil on failure
	Err   error           // wraps types.ErrSigning on failure
}

// SignAll signs every descriptor with key using up to workers goroutines
// (GOMAXPROCS when workers < 1). The result slice is index-aligned with
// descs. A failing descriptor does not stop the others.
func SignAll(ctx context.Context, descs []types.TxDescriptor, key *ecdsa.PrivateKey, workers int) []Result {
	results := make([]Result, len(descs))
	if len(descs) == 0 {
		return results
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(descs) {
		workers = len(descs)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = signOne(ctx, i, descs[i], key)
			}
		}()
	}

	for i := range descs {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return results
}

func signOne(ctx context.Context, i int, d types.TxDescriptor, key *ecdsa.PrivateKey) Result {
	fail := func(err error) Result {
		return Result{Index: i, Err: fmt.Errorf("%w: nonce %d: %w", types.ErrSigning, d.Nonce, err)}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if key == nil {
		return fail(errors.New("no private key"))
	}
	if d.ChainID == nil {
		return fail(errors.New("no chain id"))
	}

	signer := ethtypes.LatestSignerForChainID(d.ChainID)
	signed, err := ethtypes.SignTx(txbuilder.NewTx(d), signer, key)
	if err != nil {
		return fail(err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return fail(fmt.Errorf("encode: %w", err))
	}

	return Result{
		Index: i,
		Tx: &types.SignedTx{
			Descriptor: d,
			Raw:        raw,
			Hash:       signed.Hash(),
		},
	}
}

// Signed returns the successfully signed transactions in input order.
func Signed(results []Result) []types.SignedTx {
	out := make([]types.SignedTx, 0, len(results))
	for _, r := range results {
		if r.Tx != nil {
			out = append(out, *r.Tx)
		}
	}
	return out
}

// Failed returns the failed results in input order.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
