package geckoterminal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ton-sweeper/sweeper_service/pkg/retry"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:           baseURL,
		RequestsPerSecond: 1000,
		Retry: retry.Policy{
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Multiplier:     1,
		},
	}, zap.NewNop())
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{}, zap.NewNop())
	assert.Equal(t, BaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultNetwork, client.config.Network)
}

func TestPriceUSD(t *testing.T) {
	t.Run("returns quoted price with case-insensitive key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v2/simple/networks/ton/token_price/EQCxE6", r.URL.Path)
			assert.Contains(t, r.Header.Get("Accept"), "version=")
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte(`{"data":{"id":"x","type":"simple_token_price","attributes":{"token_prices":{"eqcxe6":"2.53"}}}}`))
		}))
		defer server.Close()

		price, err := testClient(server.URL).PriceUSD(context.Background(), "EQCxE6", "JET")

		require.NoError(t, err)
		require.True(t, price.Valid)
		assert.True(t, decimal.RequireFromString("2.53").Equal(price.Decimal))
	})

	t.Run("null price is no quote", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"attributes":{"token_prices":{"eqabc":null}}}}`))
		}))
		defer server.Close()

		price, err := testClient(server.URL).PriceUSD(context.Background(), "EQabc", "X")

		require.NoError(t, err)
		assert.False(t, price.Valid)
	})

	t.Run("unknown token is no quote", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[{"status":"404","title":"Not Found"}]}`))
		}))
		defer server.Close()

		price, err := testClient(server.URL).PriceUSD(context.Background(), "EQnope", "NOPE")

		require.NoError(t, err)
		assert.False(t, price.Valid)
	})

	t.Run("rate limited after retries is an error", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := testClient(server.URL).PriceUSD(context.Background(), "EQabc", "X")

		require.Error(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("malformed price is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"attributes":{"token_prices":{"eqabc":"abc"}}}}`))
		}))
		defer server.Close()

		_, err := testClient(server.URL).PriceUSD(context.Background(), "EQabc", "X")
		assert.Error(t, err)
	})
}
