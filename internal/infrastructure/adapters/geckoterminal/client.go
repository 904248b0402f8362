package geckoterminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/ton-sweeper/sweeper_service/pkg/errors"
	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
	"github.com/ton-sweeper/sweeper_service/pkg/retry"
)

const defaultTimeout = 10 * time.Second

// Config represents GeckoTerminal client configuration
type Config struct {
	BaseURL           string
	Network           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             retry.Policy
}

// Client is an unauthenticated GeckoTerminal price client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	retrier        *retry.Retrier
	logger         *zap.Logger
}

func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = BaseURL
	}
	if config.Network == "" {
		config.Network = DefaultNetwork
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if config.Retry.InitialBackoff == 0 {
		config.Retry = retry.DefaultPolicy()
	}

	cbSettings := gobreaker.Settings{
		Name:        "GeckoTerminal",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.ShouldRetry(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("GeckoTerminal circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		retrier:        retry.NewRetrier(config.Retry, logger),
		logger:         logger,
	}
}

// PriceUSD fetches the USD price of a single token. Unknown tokens yield no quote and no error.
func (c *Client) PriceUSD(ctx context.Context, tokenAddress, symbol string) (decimal.NullDecimal, error) {
	endpoint := fmt.Sprintf("/api/v2/simple/networks/%s/token_price/%s",
		url.PathEscape(c.config.Network), url.PathEscape(tokenAddress))

	var resp TokenPriceResponse
	if err := c.doRequest(ctx, endpoint, &resp); err != nil {
		var apiErr *ErrorResponse
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return decimal.NullDecimal{}, nil
		}
		return decimal.NullDecimal{}, fmt.Errorf("get token price failed: %w", err)
	}

	raw, ok := lookupPrice(resp.Data.Attributes.TokenPrices, tokenAddress)
	if !ok || raw == nil || *raw == "" {
		c.logger.Debug("No price quote for token",
			zap.String("token", tokenAddress),
			zap.String("symbol", symbol))
		return decimal.NullDecimal{}, nil
	}

	price, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse price %q: %w", *raw, err)
	}
	if price.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("negative price %s for %s", price, tokenAddress)
	}
	return decimal.NewNullDecimal(price), nil
}

// lookupPrice matches the address case-insensitively; the API lowercases keys.
func lookupPrice(prices map[string]*string, tokenAddress string) (*string, bool) {
	if p, ok := prices[tokenAddress]; ok {
		return p, true
	}
	for k, p := range prices {
		if strings.EqualFold(k, tokenAddress) {
			return p, true
		}
	}
	return nil, false
}

func (c *Client) doRequest(ctx context.Context, endpoint string, response interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequestInternal(ctx, endpoint, response)
		})
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ExternalRequestDuration.WithLabelValues("geckoterminal", "token_price", result).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json;version="+APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Transient(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= 400 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, errResp)
		return errResp
	}

	if response != nil && len(body) > 0 {
		if err := json.Unmarshal(body, response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
