package geckoterminal

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceClient quotes USD prices for tokens on one network.
type PriceClient interface {
	// PriceUSD returns an invalid NullDecimal when the token has no quote
	PriceUSD(ctx context.Context, tokenAddress, symbol string) (decimal.NullDecimal, error)
}

var _ PriceClient = (*Client)(nil)
