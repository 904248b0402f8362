package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("SOURCE_ADDR_NORMAL", "EQSource1")
	t.Setenv("DEST_ADDR_NORMAL", "EQDestination")
	t.Setenv("TONAPI_KEY", "tonapi-key")
	t.Setenv("RPC_ENDPOINT", "http://signer.local:8080")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"EQSource1"}, cfg.Sweeper.Sources)
	assert.Equal(t, "EQDestination", cfg.Sweeper.Destination)
	assert.Equal(t, "tonapi-key", cfg.TonAPI.APIKey)
	assert.Equal(t, "http://signer.local:8080", cfg.Signer.URL)

	assert.Equal(t, 15*time.Second, cfg.Sweeper.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.PriceRefreshInterval)
	assert.True(t, cfg.Sweeper.MinTriggerThreshold.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, cfg.Sweeper.JettonGasAmount.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, cfg.Sweeper.ForwardAmount.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.Sweeper.SafetyMargin.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.Sweeper.DustThreshold.Equal(decimal.RequireFromString("0.02")))
	assert.Contains(t, cfg.Sweeper.StableSymbols, "USDT")
	assert.Equal(t, 3, cfg.Signer.SendMode)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Notify.Enabled())
	assert.Equal(t, []string{"submitted", "submit_failed"}, cfg.Notify.Outcomes)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOURCE_ADDRESSES", "EQA, EQB ,,EQA")
	t.Setenv("DESTINATION_ADDRESS", "EQVault")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("MIN_TRIGGER_THRESHOLD", "0.1")
	t.Setenv("SWEEPER_SAFETY_MARGIN", "0.015")
	t.Setenv("PORT", "8081")
	t.Setenv("DATABASE_URL", "postgres://localhost/sweeper")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("SNS_TOPIC_ARN", "arn:aws:sns:eu-west-1:123456789012:drains")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("NOTIFY_OUTCOMES", "submit_failed")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"EQA", "EQB"}, cfg.Sweeper.Sources)
	assert.Equal(t, "EQVault", cfg.Sweeper.Destination)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.PollInterval)
	assert.True(t, cfg.Sweeper.MinTriggerThreshold.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, cfg.Sweeper.SafetyMargin.Equal(decimal.RequireFromString("0.015")))
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.True(t, cfg.Database.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Notify.Enabled())
	assert.Equal(t, "eu-west-1", cfg.Notify.Region)
	assert.Equal(t, []string{"submit_failed"}, cfg.Notify.Outcomes)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing sources", env: map[string]string{"SOURCE_ADDR_NORMAL": ""}},
		{name: "missing destination", env: map[string]string{"DEST_ADDR_NORMAL": ""}},
		{name: "missing tonapi key", env: map[string]string{"TONAPI_KEY": ""}},
		{name: "missing signer", env: map[string]string{"RPC_ENDPOINT": ""}},
		{name: "negative margin", env: map[string]string{"SAFETY_MARGIN": "-0.01"}},
		{name: "unknown alert outcome", env: map[string]string{"NOTIFY_OUTCOMES": "submitted,exploded"}},
		{name: "zero threshold", env: map[string]string{"MIN_TRIGGER_THRESHOLD": "0"}},
		{name: "forward exceeds gas", env: map[string]string{"FORWARD_AMOUNT": "0.06"}},
		{name: "dust below margin", env: map[string]string{"DUST_THRESHOLD": "0.005"}},
		{name: "too precise", env: map[string]string{"JETTON_GAS_AMOUNT": "0.0500000001"}},
		{name: "destination is source", env: map[string]string{"DEST_ADDR_NORMAL": "EQSource1"}},
		{name: "bad balance source", env: map[string]string{"SWEEPER_BALANCE_SOURCE": "rpc"}},
		{name: "malformed amount", env: map[string]string{"DUST_THRESHOLD": "lots"}},
		{name: "shared price cache outlives refresh", env: map[string]string{"PRICE_REFRESH_INTERVAL": "1m"}},
		{name: "cache ttl above refresh", env: map[string]string{"PRICES_CACHE_TTL": "10m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_CacheTTLWithinRefreshInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRICE_REFRESH_INTERVAL", "1m")
	t.Setenv("PRICES_CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Prices.CacheTTL)
	assert.Equal(t, time.Minute, cfg.Sweeper.PriceRefreshInterval)
}

func TestCleanList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, cleanList([]string{" a", "", "b", "a "}))
	assert.Empty(t, cleanList(nil))
}
