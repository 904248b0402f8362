package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the sweeper
type Config struct {
	Environment string         `mapstructure:"environment" validate:"oneof=development staging production test"`
	LogLevel    string         `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Server      ServerConfig   `mapstructure:"server"`
	Sweeper     SweeperConfig  `mapstructure:"sweeper"`
	TonAPI      TonAPIConfig   `mapstructure:"tonapi"`
	Prices      PricesConfig   `mapstructure:"prices"`
	Signer      SignerConfig   `mapstructure:"signer"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
	Notify      NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port            int    `mapstructure:"port" validate:"min=1,max=65535"`
	Host            string `mapstructure:"host"`
	ReadTimeout     int    `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    int    `mapstructure:"write_timeout" validate:"gt=0"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min" validate:"gte=0"`
}

// SweeperConfig holds the drain engine settings. Amounts are in whole coins.
type SweeperConfig struct {
	Sources                 []string        `mapstructure:"sources" validate:"min=1,dive,required"`
	Destination             string          `mapstructure:"destination" validate:"required"`
	PollInterval            time.Duration   `mapstructure:"poll_interval" validate:"gt=0"`
	PriceRefreshInterval    time.Duration   `mapstructure:"price_refresh_interval" validate:"gt=0"`
	PriorityRefreshInterval time.Duration   `mapstructure:"priority_refresh_interval" validate:"gt=0"`
	MinTriggerThreshold     decimal.Decimal `mapstructure:"min_trigger_threshold"`
	JettonGasAmount         decimal.Decimal `mapstructure:"jetton_gas_amount"`
	ForwardAmount           decimal.Decimal `mapstructure:"forward_amount"`
	SafetyMargin            decimal.Decimal `mapstructure:"safety_margin"`
	DustThreshold           decimal.Decimal `mapstructure:"dust_threshold"`
	ArrivalEpsilon          decimal.Decimal `mapstructure:"arrival_epsilon"`
	StableSymbols           []string        `mapstructure:"stable_symbols"`
	DrainTimeout            time.Duration   `mapstructure:"drain_timeout" validate:"gt=0"`
	WebhookSecret           string          `mapstructure:"webhook_secret"`
	BalanceSource           string          `mapstructure:"balance_source" validate:"oneof=signer tonapi"`
}

type TonAPIConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey            string        `mapstructure:"api_key" validate:"required"`
	Network           string        `mapstructure:"network" validate:"oneof=mainnet testnet"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
}

type PricesConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	Network           string        `mapstructure:"network" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	MemoSize          int           `mapstructure:"memo_size" validate:"gt=0"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gt=0"`
}

type SignerConfig struct {
	URL        string        `mapstructure:"url" validate:"required,url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	SendMode   int           `mapstructure:"send_mode" validate:"gte=0,lte=255"`
	MessageTTL time.Duration `mapstructure:"message_ttl" validate:"gt=0"`
}

// DatabaseConfig enables the drain audit log when URL is set.
type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	RunMigrations   bool   `mapstructure:"run_migrations"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// RedisConfig enables the shared price quote cache when Host is set.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `mapstructure:"insecure"`
}

// NotifyConfig enables SNS drain alerts when TopicARN is set.
type NotifyConfig struct {
	Region   string   `mapstructure:"region"`
	TopicARN string   `mapstructure:"topic_arn"`
	Outcomes []string `mapstructure:"outcomes" validate:"dive,oneof=unknown_source coalesced balance_unavailable not_triggered sequence_unavailable nothing_to_drain submitted submit_failed"`
}

func (c NotifyConfig) Enabled() bool {
	return c.TopicARN != ""
}

// Load reads .env, config.yaml and the environment, then validates the result
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	overrideFromEnv(v)

	var config Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToDecimalHookFunc(),
	)
	if err := v.Unmarshal(&config, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.Sweeper.Sources = cleanList(config.Sweeper.Sources)
	config.Sweeper.StableSymbols = cleanList(config.Sweeper.StableSymbols)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.rate_limit_per_min", 120)

	v.SetDefault("sweeper.sources", []string{})
	v.SetDefault("sweeper.destination", "")
	v.SetDefault("sweeper.poll_interval", "15s")
	v.SetDefault("sweeper.price_refresh_interval", "5m")
	v.SetDefault("sweeper.priority_refresh_interval", "2m")
	v.SetDefault("sweeper.min_trigger_threshold", "0.05")
	v.SetDefault("sweeper.jetton_gas_amount", "0.05")
	v.SetDefault("sweeper.forward_amount", "0.01")
	v.SetDefault("sweeper.safety_margin", "0.01")
	v.SetDefault("sweeper.dust_threshold", "0.02")
	v.SetDefault("sweeper.arrival_epsilon", "0.000001")
	v.SetDefault("sweeper.stable_symbols", []string{"USDT", "USD₮", "jUSDT", "USDC", "jUSDC"})
	v.SetDefault("sweeper.drain_timeout", "2m")
	v.SetDefault("sweeper.webhook_secret", "")
	v.SetDefault("sweeper.balance_source", "signer")

	v.SetDefault("tonapi.base_url", "")
	v.SetDefault("tonapi.api_key", "")
	v.SetDefault("tonapi.network", "mainnet")
	v.SetDefault("tonapi.timeout", "10s")
	v.SetDefault("tonapi.requests_per_second", 1)

	v.SetDefault("prices.base_url", "")
	v.SetDefault("prices.network", "ton")
	v.SetDefault("prices.timeout", "10s")
	v.SetDefault("prices.requests_per_second", 0.5)
	v.SetDefault("prices.cache_ttl", "5m")
	v.SetDefault("prices.memo_size", 1024)
	v.SetDefault("prices.concurrency", 2)

	v.SetDefault("signer.url", "")
	v.SetDefault("signer.api_key", "")
	v.SetDefault("signer.timeout", "15s")
	v.SetDefault("signer.send_mode", 3)
	v.SetDefault("signer.message_ttl", "60s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 5)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_url", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 0.1)
	v.SetDefault("tracing.insecure", false)

	v.SetDefault("notify.region", "us-east-1")
	v.SetDefault("notify.topic_arn", "")
	v.SetDefault("notify.outcomes", []string{"submitted", "submit_failed"})
}

// overrideFromEnv maps the flat variable names operators already use.
func overrideFromEnv(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("server.port", p)
		}
	}

	// Sources: a comma separated list, or the single-source legacy variable
	if sources := os.Getenv("SOURCE_ADDRESSES"); sources != "" {
		v.Set("sweeper.sources", splitList(sources))
	} else if single := os.Getenv("SOURCE_ADDR_NORMAL"); single != "" {
		v.Set("sweeper.sources", []string{strings.TrimSpace(single)})
	}

	if dest := os.Getenv("DESTINATION_ADDRESS"); dest != "" {
		v.Set("sweeper.destination", strings.TrimSpace(dest))
	} else if dest := os.Getenv("DEST_ADDR_NORMAL"); dest != "" {
		v.Set("sweeper.destination", strings.TrimSpace(dest))
	}

	setString(v, "sweeper.webhook_secret", "WEBHOOK_SECRET")
	setString(v, "sweeper.poll_interval", "POLL_INTERVAL")
	setString(v, "sweeper.price_refresh_interval", "PRICE_REFRESH_INTERVAL")
	setString(v, "sweeper.min_trigger_threshold", "MIN_TRIGGER_THRESHOLD")
	setString(v, "sweeper.jetton_gas_amount", "JETTON_GAS_AMOUNT")
	setString(v, "sweeper.forward_amount", "FORWARD_AMOUNT")
	setString(v, "sweeper.safety_margin", "SAFETY_MARGIN")
	setString(v, "sweeper.dust_threshold", "DUST_THRESHOLD")
	if symbols := os.Getenv("STABLE_SYMBOLS"); symbols != "" {
		v.Set("sweeper.stable_symbols", splitList(symbols))
	}

	setString(v, "tonapi.api_key", "TONAPI_KEY")

	if url := os.Getenv("SIGNER_URL"); url != "" {
		v.Set("signer.url", url)
	} else if url := os.Getenv("RPC_ENDPOINT"); url != "" {
		v.Set("signer.url", url)
	}
	setString(v, "signer.api_key", "SIGNER_API_KEY")

	setString(v, "database.url", "DATABASE_URL")
	setString(v, "redis.host", "REDIS_HOST")
	setString(v, "redis.password", "REDIS_PASSWORD")
	setString(v, "tracing.collector_url", "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(v, "notify.region", "AWS_REGION")
	setString(v, "notify.topic_arn", "SNS_TOPIC_ARN")
	if outcomes := os.Getenv("NOTIFY_OUTCOMES"); outcomes != "" {
		v.Set("notify.outcomes", splitList(outcomes))
	}
}

func setString(v *viper.Viper, key, env string) {
	if val := os.Getenv(env); val != "" {
		v.Set(key, val)
	}
}

func splitList(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// stringToDecimalHookFunc decodes strings and numbers into decimal.Decimal
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return data, nil
	}
}

var structValidator = validator.New()

func validate(config *Config) error {
	if err := structValidator.Struct(config); err != nil {
		return err
	}

	s := config.Sweeper
	amounts := map[string]decimal.Decimal{
		"min_trigger_threshold": s.MinTriggerThreshold,
		"jetton_gas_amount":     s.JettonGasAmount,
		"forward_amount":        s.ForwardAmount,
		"safety_margin":         s.SafetyMargin,
		"dust_threshold":        s.DustThreshold,
		"arrival_epsilon":       s.ArrivalEpsilon,
	}
	for name, amount := range amounts {
		if amount.IsNegative() {
			return fmt.Errorf("sweeper.%s must not be negative", name)
		}
		if !amount.Equal(amount.Truncate(9)) {
			return fmt.Errorf("sweeper.%s has more than 9 decimal places", name)
		}
	}

	if !s.MinTriggerThreshold.IsPositive() {
		return fmt.Errorf("sweeper.min_trigger_threshold must be positive")
	}
	if !s.JettonGasAmount.GreaterThan(s.ForwardAmount) {
		return fmt.Errorf("sweeper.jetton_gas_amount must exceed sweeper.forward_amount")
	}
	if s.DustThreshold.LessThan(s.SafetyMargin) {
		return fmt.Errorf("sweeper.dust_threshold must be at least sweeper.safety_margin")
	}

	if config.Prices.CacheTTL > s.PriceRefreshInterval {
		return fmt.Errorf("prices.cache_ttl must not exceed sweeper.price_refresh_interval")
	}

	for _, src := range s.Sources {
		if src == s.Destination {
			return fmt.Errorf("destination %s is also listed as a source", src)
		}
	}

	return nil
}
