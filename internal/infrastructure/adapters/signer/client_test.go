package signer

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/pkg/retry"
)

func testClient(baseURL string) *Client {
	c := NewClient(Config{
		BaseURL:           baseURL,
		APIKey:            "gw-key",
		RequestsPerSecond: 1000,
		Retry: retry.Policy{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Multiplier:     1,
		},
	}, zap.NewNop())
	c.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return c
}

func sampleMessages() []entities.TransferMessage {
	return []entities.TransferMessage{
		{
			Destination:    "0:jettonwallet",
			AttachedNative: decimal.RequireFromString("0.05"),
			Bounce:         true,
			Payload: &entities.JettonTransferPayload{
				QueryID:             42,
				Amount:              big.NewInt(1_500_000),
				Destination:         "UQdest",
				ResponseDestination: "UQdest",
				ForwardAmount:       decimal.RequireFromString("0.01"),
			},
		},
		{
			Destination:    "UQdest",
			AttachedNative: decimal.RequireFromString("0.33"),
		},
	}
}

func TestGetNativeBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/accounts/EQsrc/balance", r.URL.Path)
		assert.Equal(t, "Bearer gw-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"address":"EQsrc","balance":"500000000"}`))
	}))
	defer server.Close()

	balance, err := testClient(server.URL).GetNativeBalance(context.Background(), "EQsrc")

	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500_000_000), balance)
}

func TestGetNativeBalance_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":"0.5"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).GetNativeBalance(context.Background(), "EQsrc")
	assert.ErrorIs(t, err, ErrMalformedAmount)
}

func TestGetNextSequence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/EQsrc/seqno", r.URL.Path)
		w.Write([]byte(`{"seqno":17}`))
	}))
	defer server.Close()

	seqno, err := testClient(server.URL).GetNextSequence(context.Background(), "EQsrc")

	require.NoError(t, err)
	assert.Equal(t, uint32(17), seqno)
}

func TestEstimateFee_EncodesMessagesInNano(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/wallets/EQsrc/estimate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint32(5), req.Seqno)
		assert.Equal(t, DefaultSendMode, req.SendMode)
		assert.Equal(t, int64(1_700_000_060), req.ValidUntil)
		require.Len(t, req.Messages, 2)

		jetton := req.Messages[0]
		assert.Equal(t, "50000000", jetton.Amount)
		assert.True(t, jetton.Bounce)
		require.NotNil(t, jetton.JettonTransfer)
		assert.Equal(t, "1500000", jetton.JettonTransfer.Amount)
		assert.Equal(t, "10000000", jetton.JettonTransfer.ForwardAmount)
		assert.Equal(t, uint64(42), jetton.JettonTransfer.QueryID)

		assert.Equal(t, "330000000", req.Messages[1].Amount)
		assert.Nil(t, req.Messages[1].JettonTransfer)

		w.Write([]byte(`{"total_fee":"7350000"}`))
	}))
	defer server.Close()

	fee, err := testClient(server.URL).EstimateFee(context.Background(), "EQsrc", 5, sampleMessages())

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.00735").Equal(fee))
}

func TestSubmit_NeverRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":"liteserver_unavailable","message":"try later"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Submit(context.Background(), "EQsrc", 5, sampleMessages())

	require.Error(t, err)
	var apiErr *ErrorResponse
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "liteserver_unavailable", apiErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmit_ReturnsReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/EQsrc/transfer", r.URL.Path)
		w.Write([]byte(`{"hash":"f00d"}`))
	}))
	defer server.Close()

	receipt, err := testClient(server.URL).Submit(context.Background(), "EQsrc", 9, sampleMessages())

	require.NoError(t, err)
	assert.Equal(t, "f00d", receipt.Hash)
	assert.Equal(t, uint32(9), receipt.Sequence)
}

func TestClient_ReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"seqno":1}`))
	}))
	defer server.Close()

	seqno, err := testClient(server.URL).GetNextSequence(context.Background(), "EQsrc")

	require.NoError(t, err)
	assert.Equal(t, uint32(1), seqno)
	assert.Equal(t, int32(3), calls.Load())
}
