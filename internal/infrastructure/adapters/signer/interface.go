package signer

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
)

// WalletGateway defines the wallet operations the sweeper needs
type WalletGateway interface {
	// GetNativeBalance returns the balance in nanotons
	GetNativeBalance(ctx context.Context, address string) (*big.Int, error)

	// GetNextSequence returns the seqno for the next external message
	GetNextSequence(ctx context.Context, wallet string) (uint32, error)

	// EstimateFee returns the network fee of the batch in coins
	EstimateFee(ctx context.Context, wallet string, seqno uint32, messages []entities.TransferMessage) (decimal.Decimal, error)

	// Submit signs and broadcasts the batch once
	Submit(ctx context.Context, wallet string, seqno uint32, messages []entities.TransferMessage) (*entities.SubmitReceipt, error)
}

var _ WalletGateway = (*Client)(nil)
