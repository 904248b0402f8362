package di

import (
	"context"
	"math/big"

	"github.com/ton-sweeper/sweeper_service/internal/domain/services/drain"
)

type balanceReader interface {
	GetNativeBalance(ctx context.Context, address string) (*big.Int, error)
}

// splitWallet reads balances from an indexer and everything else from the
// signer gateway.
type splitWallet struct {
	drain.WalletClient
	balances balanceReader
}

func (w *splitWallet) GetNativeBalance(ctx context.Context, address string) (*big.Int, error) {
	return w.balances.GetNativeBalance(ctx, address)
}
