package tonapi

import (
	"context"
	"math/big"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
)

// TonAPIClient is the token-index capability used by the sweeper.
type TonAPIClient interface {
	// ListHoldings returns the owner's jetton balances that are above zero
	ListHoldings(ctx context.Context, owner string) ([]entities.Holding, error)

	// GetNativeBalance returns the account balance in nanotons
	GetNativeBalance(ctx context.Context, address string) (*big.Int, error)
}

var _ TonAPIClient = (*Client)(nil)
