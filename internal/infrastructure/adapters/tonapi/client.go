package tonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	apperrors "github.com/ton-sweeper/sweeper_service/pkg/errors"
	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
	"github.com/ton-sweeper/sweeper_service/pkg/retry"
)

const defaultTimeout = 10 * time.Second

// Config represents tonapi client configuration
type Config struct {
	BaseURL           string
	APIKey            string
	Network           string // "mainnet" or "testnet"
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             retry.Policy
}

// Client is a tonapi.io REST client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	retrier        *retry.Retrier
	logger         *zap.Logger
}

// NewClient creates a tonapi client with breaker, limiter and retry defaults
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		if config.Network == "testnet" {
			config.BaseURL = TestnetURL
		} else {
			config.BaseURL = MainnetURL
		}
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if config.Retry.InitialBackoff == 0 {
		config.Retry = retry.DefaultPolicy()
	}

	cbSettings := gobreaker.Settings{
		Name:        "TonAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.ShouldRetry(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("TonAPI circuit breaker state changed",
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

// ListHoldings fetches jetton balances for owner, dropping zero and malformed entries
func (c *Client) ListHoldings(ctx context.Context, owner string) ([]entities.Holding, error) {
	endpoint := fmt.Sprintf("/v2/accounts/%s/jettons", url.PathEscape(owner))
	var resp JettonsResponse
	if err := c.doRequest(ctx, "list_jettons", endpoint, &resp); err != nil {
		return nil, fmt.Errorf("list jettons failed: %w", err)
	}

	holdings := make([]entities.Holding, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		amount, ok := new(big.Int).SetString(b.Balance, 10)
		if !ok {
			c.logger.Warn("Skipping jetton with malformed balance",
				zap.String("jetton", b.Jetton.Address),
				zap.String("balance", b.Balance))
			continue
		}
		if amount.Sign() <= 0 {
			continue
		}
		holdings = append(holdings, entities.Holding{
			OwnerAddress:  owner,
			TokenAddress:  b.Jetton.Address,
			WalletAddress: b.WalletAddress.Address,
			AtomicBalance: amount,
			Decimals:      b.Jetton.Decimals,
			Symbol:        b.Jetton.Symbol,
		})
	}
	return holdings, nil
}

// GetNativeBalance reads the account balance in nanotons
func (c *Client) GetNativeBalance(ctx context.Context, address string) (*big.Int, error) {
	endpoint := fmt.Sprintf("/v2/accounts/%s", url.PathEscape(address))
	var resp Account
	if err := c.doRequest(ctx, "get_account", endpoint, &resp); err != nil {
		return nil, fmt.Errorf("get account failed: %w", err)
	}
	return big.NewInt(resp.Balance), nil
}

func (c *Client) doRequest(ctx context.Context, operation, endpoint string, response interface{}) error {
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
	metrics.ExternalRequestDuration.WithLabelValues("tonapi", operation, result).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

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
		if json.Unmarshal(body, errResp) != nil || errResp.Message == "" {
			errResp.Message = http.StatusText(resp.StatusCode)
		}
		return errResp
	}

	if response != nil && len(body) > 0 {
		if err := json.Unmarshal(body, response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
