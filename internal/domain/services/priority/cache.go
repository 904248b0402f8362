// Package priority keeps a per-owner ranking of token holdings by USD value.
package priority

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
)

// HoldingsSource lists the non-native token balances of an owner.
type HoldingsSource interface {
	ListHoldings(ctx context.Context, owner string) ([]entities.Holding, error)
}

// PriceOracle quotes a USD unit price. An invalid NullDecimal means no quote.
type PriceOracle interface {
	PriceUSD(ctx context.Context, tokenAddress, symbol string) (decimal.NullDecimal, error)
}

// Store is the read/refresh surface other components depend on.
type Store interface {
	Refresh(ctx context.Context, owner string)
	Get(owner string) []entities.PricedHolding
	Snapshot(owner string) (*entities.PriorityEntry, bool)
}

type Config struct {
	PriceRefreshInterval time.Duration
	StableSymbols        []string
	PriceMemoSize        int
	PriceConcurrency     int
}

func DefaultConfig() Config {
	return Config{
		PriceRefreshInterval: 5 * time.Minute,
		StableSymbols:        []string{"USDT", "USD₮", "JUSDT", "USDC", "JUSDC"},
		PriceMemoSize:        1024,
		PriceConcurrency:     4,
	}
}

var stableUnitPrice = decimal.NewFromInt(1)

// Cache is the copy-on-write ranking store. Each owner maps to an immutable
// *entities.PriorityEntry that Refresh swaps out in one store.
type Cache struct {
	holdings HoldingsSource
	oracle   PriceOracle
	config   Config
	logger   *logger.Logger

	entries sync.Map
	prices  *lru.Cache[string, decimal.Decimal]
	stable  map[string]struct{}
	group   singleflight.Group

	mu               sync.RWMutex
	lastPriceRefresh time.Time

	now func() time.Time
}

var _ Store = (*Cache)(nil)

func NewCache(holdings HoldingsSource, oracle PriceOracle, config Config, log *logger.Logger) (*Cache, error) {
	if config.PriceMemoSize <= 0 {
		config.PriceMemoSize = DefaultConfig().PriceMemoSize
	}
	if config.PriceConcurrency <= 0 {
		config.PriceConcurrency = 1
	}
	memo, err := lru.New[string, decimal.Decimal](config.PriceMemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create price memo: %w", err)
	}

	stable := make(map[string]struct{}, len(config.StableSymbols))
	for _, s := range config.StableSymbols {
		stable[normalizeSymbol(s)] = struct{}{}
	}

	return &Cache{
		holdings: holdings,
		oracle:   oracle,
		config:   config,
		logger:   log,
		prices:   memo,
		stable:   stable,
		now:      time.Now,
	}, nil
}

// Get returns the current ranking for owner, empty if none was computed yet.
func (c *Cache) Get(owner string) []entities.PricedHolding {
	entry, ok := c.Snapshot(owner)
	if !ok {
		return nil
	}
	return entry.Holdings
}

// Snapshot returns the published entry for owner. Callers must not modify it.
func (c *Cache) Snapshot(owner string) (*entities.PriorityEntry, bool) {
	v, ok := c.entries.Load(owner)
	if !ok {
		return nil, false
	}
	return v.(*entities.PriorityEntry), true
}

// Refresh rebuilds the ranking for owner. It never fails: unavailable
// holdings count as none and unavailable prices as unknown. Concurrent
// refreshes of one owner share a single run.
func (c *Cache) Refresh(ctx context.Context, owner string) {
	_, _, _ = c.group.Do(owner, func() (interface{}, error) {
		c.refresh(ctx, owner)
		return nil, nil
	})
}

func (c *Cache) refresh(ctx context.Context, owner string) {
	ctx, span := otel.Tracer("priority").Start(ctx, "priority.refresh")
	defer span.End()
	span.SetAttributes(attribute.String("owner", owner))

	short := entities.ShortAddress(owner)

	holdings, err := c.holdings.ListHoldings(ctx, owner)
	if err != nil {
		c.logger.Warn("Holdings unavailable, treating as empty",
			"source", short,
			"stage", "refresh",
			"error", err)
		metrics.PriorityRefreshTotal.WithLabelValues("holdings_unavailable").Inc()
		holdings = nil
	}

	positive := holdings[:0:0]
	for _, h := range holdings {
		if h.HasBalance() {
			positive = append(positive, h)
		}
	}

	if len(positive) == 0 {
		c.publish(owner, nil)
		metrics.PriorityRefreshTotal.WithLabelValues("empty").Inc()
		c.logger.Debug("No token holdings", "source", short)
		return
	}

	priced := c.price(ctx, positive)
	Rank(priced)
	entry := c.publish(owner, priced)
	metrics.PriorityRefreshTotal.WithLabelValues("ok").Inc()

	c.logger.Info("Priority ranking refreshed",
		"source", short,
		"holdings", len(priced),
		"ranking", Summary(entry.Holdings))
}

// price resolves a unit price for every holding, fanning out oracle calls.
func (c *Cache) price(ctx context.Context, holdings []entities.Holding) []entities.PricedHolding {
	fresh := c.pricesFresh()
	priced := make([]entities.PricedHolding, len(holdings))
	failed := make([]bool, len(holdings))
	called := make([]bool, len(holdings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.PriceConcurrency)

	for i, h := range holdings {
		priced[i] = entities.PricedHolding{Holding: h}

		if fresh {
			if p, ok := c.prices.Get(h.TokenAddress); ok {
				priced[i].UnitPriceUSD = decimal.NewNullDecimal(p)
				metrics.PriceLookupsTotal.WithLabelValues("memo").Inc()
				continue
			}
		}

		called[i] = true
		g.Go(func() error {
			quote, err := c.oracle.PriceUSD(gctx, h.TokenAddress, h.Symbol)
			if err != nil {
				failed[i] = true
				c.logger.Warn("Price unavailable",
					"source", entities.ShortAddress(h.OwnerAddress),
					"stage", "price",
					"token", h.TokenAddress,
					"symbol", h.Symbol,
					"error", err)
				return nil
			}
			if quote.Valid {
				c.prices.Add(h.TokenAddress, quote.Decimal)
			}
			priced[i].UnitPriceUSD = quote
			return nil
		})
	}
	_ = g.Wait()

	anyCalled, allOK := false, true
	for i := range priced {
		if called[i] {
			anyCalled = true
			if failed[i] {
				allOK = false
			} else if priced[i].UnitPriceUSD.Valid {
				metrics.PriceLookupsTotal.WithLabelValues("oracle").Inc()
			}
		}
		c.applyFallback(&priced[i])
	}
	if anyCalled && allOK {
		c.markPricesRefreshed()
	}
	return priced
}

// applyFallback fills in the stable-coin price and computes the USD value.
func (c *Cache) applyFallback(h *entities.PricedHolding) {
	if !h.UnitPriceUSD.Valid {
		if _, ok := c.stable[normalizeSymbol(h.Symbol)]; ok {
			h.UnitPriceUSD = decimal.NewNullDecimal(stableUnitPrice)
			metrics.PriceLookupsTotal.WithLabelValues("stable_fallback").Inc()
		} else {
			metrics.PriceLookupsTotal.WithLabelValues("unknown").Inc()
		}
	}
	if h.UnitPriceUSD.Valid {
		h.USDValue = h.Amount().Mul(h.UnitPriceUSD.Decimal)
	} else {
		h.USDValue = decimal.Zero
	}
}

func (c *Cache) pricesFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.lastPriceRefresh.IsZero() && c.now().Sub(c.lastPriceRefresh) < c.config.PriceRefreshInterval
}

func (c *Cache) markPricesRefreshed() {
	c.mu.Lock()
	c.lastPriceRefresh = c.now()
	c.mu.Unlock()
}

// PricesAsOf returns when every quoted price was last fetched successfully.
func (c *Cache) PricesAsOf() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPriceRefresh
}

func (c *Cache) publish(owner string, holdings []entities.PricedHolding) *entities.PriorityEntry {
	if holdings == nil {
		holdings = []entities.PricedHolding{}
	}
	entry := &entities.PriorityEntry{
		OwnerAddress: owner,
		Holdings:     holdings,
		RefreshedAt:  c.now(),
		PricesAsOf:   c.PricesAsOf(),
	}
	c.entries.Store(owner, entry)
	return entry
}

// Rank sorts holdings by USD value descending, then symbol, then token address.
func Rank(holdings []entities.PricedHolding) {
	sort.SliceStable(holdings, func(i, j int) bool {
		a, b := holdings[i], holdings[j]
		if cmp := a.USDValue.Cmp(b.USDValue); cmp != 0 {
			return cmp > 0
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.TokenAddress < b.TokenAddress
	})
}

// Summary renders a ranking as "SYM:usd" pairs for log lines.
func Summary(holdings []entities.PricedHolding) string {
	parts := make([]string, 0, len(holdings))
	for _, h := range holdings {
		parts = append(parts, fmt.Sprintf("%s:%s", h.Symbol, h.USDValue.StringFixed(2)))
	}
	return strings.Join(parts, ", ")
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
