package entities

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NanoToCoins converts an atomic native amount into whole coins.
func NanoToCoins(nano *big.Int) decimal.Decimal {
	if nano == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(nano, -NativeDecimals)
}

// CoinsToNano converts whole coins into nanotons, truncating sub-nano digits.
func CoinsToNano(coins decimal.Decimal) *big.Int {
	return coins.Shift(NativeDecimals).Truncate(0).BigInt()
}

// TruncateNative drops precision below one nanoton.
func TruncateNative(coins decimal.Decimal) decimal.Decimal {
	return coins.Truncate(NativeDecimals)
}

// ShortAddress abbreviates an address for log lines.
func ShortAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}
