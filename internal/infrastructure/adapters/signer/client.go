package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	apperrors "github.com/ton-sweeper/sweeper_service/pkg/errors"
	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
	"github.com/ton-sweeper/sweeper_service/pkg/retry"
)

const defaultTimeout = 15 * time.Second

// Config represents wallet gateway configuration
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	SendMode          int
	MessageTTL        time.Duration
	RequestsPerSecond float64
	Retry             retry.Policy
}

// Client talks to the signing gateway that holds the source wallet keys.
// Reads and estimates are retried; transfers are sent exactly once.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	retrier        *retry.Retrier
	sendOnce       *retry.Retrier
	logger         *zap.Logger
	now            func() time.Time
}

func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.SendMode == 0 {
		config.SendMode = DefaultSendMode
	}
	if config.MessageTTL == 0 {
		config.MessageTTL = 60 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if config.Retry.InitialBackoff == 0 {
		config.Retry = retry.DefaultPolicy()
	}

	cbSettings := gobreaker.Settings{
		Name:        "WalletGateway",
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
			logger.Info("Wallet gateway circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), int(config.RequestsPerSecond)+1),
		retrier:        retry.NewRetrier(config.Retry, logger),
		sendOnce:       retry.NewRetrier(retry.NoRetry(), logger),
		logger:         logger,
		now:            time.Now,
	}
}

// GetNativeBalance returns the account balance in nanotons
func (c *Client) GetNativeBalance(ctx context.Context, address string) (*big.Int, error) {
	var resp BalanceResponse
	endpoint := fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(address))
	if err := c.doRequest(ctx, "balance", http.MethodGet, endpoint, nil, &resp, c.retrier); err != nil {
		return nil, fmt.Errorf("get balance failed: %w", err)
	}
	balance, ok := new(big.Int).SetString(resp.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAmount, resp.Balance)
	}
	return balance, nil
}

// GetNextSequence returns the wallet seqno the next transfer must carry
func (c *Client) GetNextSequence(ctx context.Context, wallet string) (uint32, error) {
	var resp SeqnoResponse
	endpoint := fmt.Sprintf("/v1/wallets/%s/seqno", url.PathEscape(wallet))
	if err := c.doRequest(ctx, "seqno", http.MethodGet, endpoint, nil, &resp, c.retrier); err != nil {
		return 0, fmt.Errorf("get seqno failed: %w", err)
	}
	return resp.Seqno, nil
}

// EstimateFee emulates the batch and returns its total fee in coins
func (c *Client) EstimateFee(ctx context.Context, wallet string, seqno uint32, messages []entities.TransferMessage) (decimal.Decimal, error) {
	var resp EstimateResponse
	endpoint := fmt.Sprintf("/v1/wallets/%s/estimate", url.PathEscape(wallet))
	if err := c.doRequest(ctx, "estimate", http.MethodPost, endpoint, c.buildRequest(seqno, messages), &resp, c.retrier); err != nil {
		return decimal.Zero, fmt.Errorf("estimate fee failed: %w", err)
	}
	fee, ok := new(big.Int).SetString(resp.TotalFee, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, resp.TotalFee)
	}
	return entities.NanoToCoins(fee), nil
}

// Submit signs and broadcasts the batch. It is never retried: a second
// attempt with the same seqno is either rejected or a double spend.
func (c *Client) Submit(ctx context.Context, wallet string, seqno uint32, messages []entities.TransferMessage) (*entities.SubmitReceipt, error) {
	var resp TransferResponse
	endpoint := fmt.Sprintf("/v1/wallets/%s/transfer", url.PathEscape(wallet))
	if err := c.doRequest(ctx, "transfer", http.MethodPost, endpoint, c.buildRequest(seqno, messages), &resp, c.sendOnce); err != nil {
		return nil, fmt.Errorf("submit transfer failed: %w", err)
	}
	if resp.Seqno == 0 {
		resp.Seqno = seqno
	}
	return &entities.SubmitReceipt{Hash: resp.Hash, Sequence: resp.Seqno}, nil
}

func (c *Client) buildRequest(seqno uint32, messages []entities.TransferMessage) TransferRequest {
	out := make([]OutMessage, 0, len(messages))
	for _, m := range messages {
		msg := OutMessage{
			Destination: m.Destination,
			Amount:      entities.CoinsToNano(m.AttachedNative).String(),
			Bounce:      m.Bounce,
		}
		if p := m.Payload; p != nil {
			amount := "0"
			if p.Amount != nil {
				amount = p.Amount.String()
			}
			msg.JettonTransfer = &JettonTransfer{
				QueryID:             p.QueryID,
				Amount:              amount,
				Destination:         p.Destination,
				ResponseDestination: p.ResponseDestination,
				ForwardAmount:       entities.CoinsToNano(p.ForwardAmount).String(),
			}
		}
		out = append(out, msg)
	}
	return TransferRequest{
		Seqno:      seqno,
		SendMode:   c.config.SendMode,
		ValidUntil: c.now().Add(c.config.MessageTTL).Unix(),
		Messages:   out,
	}
}

func (c *Client) doRequest(ctx context.Context, operation, method, endpoint string, body, response interface{}, retrier *retry.Retrier) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequestInternal(ctx, method, endpoint, body, response)
		})
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ExternalRequestDuration.WithLabelValues("wallet_gateway", operation, result).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, method, endpoint string, body, response interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Transient(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= 400 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if json.Unmarshal(raw, errResp) != nil || errResp.Message == "" {
			errResp.Message = http.StatusText(resp.StatusCode)
		}
		return errResp
	}

	if response != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
