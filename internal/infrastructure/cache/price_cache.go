package cache

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ton-sweeper/sweeper_service/internal/domain/services/priority"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
)

const priceKeyPrefix = "sweeper:price:"

type cachedQuote struct {
	PriceUSD string    `json:"price_usd"`
	QuotedAt time.Time `json:"quoted_at"`
}

// PriceQuoteCache shares USD quotes between sweeper instances through Redis.
// Redis failures degrade to a direct oracle call.
type PriceQuoteCache struct {
	redis  RedisClient
	next   priority.PriceOracle
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

var _ priority.PriceOracle = (*PriceQuoteCache)(nil)

func NewPriceQuoteCache(redis RedisClient, next priority.PriceOracle, ttl time.Duration, log *logger.Logger) *PriceQuoteCache {
	return &PriceQuoteCache{
		redis:  redis,
		next:   next,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
	}
}

func (p *PriceQuoteCache) PriceUSD(ctx context.Context, tokenAddress, symbol string) (decimal.NullDecimal, error) {
	key := priceKeyPrefix + tokenAddress

	var quote cachedQuote
	err := p.redis.Get(ctx, key, &quote)
	switch {
	case err == nil:
		price, perr := decimal.NewFromString(quote.PriceUSD)
		switch {
		case perr != nil:
			p.logger.Warn("Discarding malformed cached quote", "key", key)
		case !p.fresh(quote):
			// Another instance may have written it with a longer TTL
			p.logger.Debug("Discarding stale cached quote", "key", key, "quoted_at", quote.QuotedAt)
		default:
			metrics.PriceLookupsTotal.WithLabelValues("shared_cache").Inc()
			return decimal.NewNullDecimal(price), nil
		}
	case errors.Is(err, ErrCacheMiss):
	default:
		p.logger.Warn("Price cache read failed", "key", key, "error", err)
	}

	price, err := p.next.PriceUSD(ctx, tokenAddress, symbol)
	if err != nil || !price.Valid {
		return price, err
	}

	if p.ttl > 0 {
		entry := cachedQuote{PriceUSD: price.Decimal.String(), QuotedAt: p.now().UTC()}
		if serr := p.redis.Set(ctx, key, entry, p.ttl); serr != nil {
			p.logger.Warn("Price cache write failed", "key", key, "error", serr)
		}
	}
	return price, nil
}

// fresh reports whether a shared quote is younger than this instance's TTL.
func (p *PriceQuoteCache) fresh(quote cachedQuote) bool {
	if quote.QuotedAt.IsZero() {
		return false
	}
	return p.now().Sub(quote.QuotedAt) < p.ttl
}
