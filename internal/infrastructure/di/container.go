package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ton-sweeper/sweeper_service/internal/api/handlers"
	"github.com/ton-sweeper/sweeper_service/internal/domain/repositories"
	"github.com/ton-sweeper/sweeper_service/internal/domain/services/drain"
	"github.com/ton-sweeper/sweeper_service/internal/domain/services/planner"
	"github.com/ton-sweeper/sweeper_service/internal/domain/services/priority"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/adapters/geckoterminal"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/adapters/notifier"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/adapters/signer"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/adapters/tonapi"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/cache"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/config"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/database"
	infrarepos "github.com/ton-sweeper/sweeper_service/internal/infrastructure/repositories"
	"github.com/ton-sweeper/sweeper_service/internal/workers/balance_watcher"
	"github.com/ton-sweeper/sweeper_service/internal/workers/priority_refresh"
	"github.com/ton-sweeper/sweeper_service/pkg/idempotency"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
	"github.com/ton-sweeper/sweeper_service/pkg/retry"
	"github.com/ton-sweeper/sweeper_service/pkg/routine"
)

const idempotencyMemorySize = 10_000

// Container holds every long-lived component of the sweeper
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	ZapLog *zap.Logger

	// Optional infrastructure, nil when not configured
	DB          *sqlx.DB
	RedisClient cache.RedisClient
	DrainRuns   repositories.DrainRunRepository

	// Delivery dedupe, Redis backed when available
	Idempotency idempotency.Store

	// External services
	TonAPI *tonapi.Client
	Prices *geckoterminal.Client
	Signer *signer.Client

	// Drain alerts, nil unless notify.topic_arn is set
	Notifier *notifier.SNSNotifier

	// Domain services
	Tasks         *routine.Manager
	PriorityCache *priority.Cache
	Planner       *planner.Planner
	Coordinator   *drain.Coordinator

	// Workers
	BalanceWatcher    *balance_watcher.Watcher
	PriorityRefresher *priority_refresh.Worker
}

// NewContainer builds the object graph. ctx bounds background tasks spawned
// by the coordinator.
func NewContainer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	c := &Container{
		Config: cfg,
		Logger: log,
		ZapLog: zapLog,
	}

	if cfg.Database.Enabled() {
		if err := c.initDatabase(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Enabled() {
		redisClient, err := cache.NewRedisClient(&cfg.Redis, zapLog)
		if err != nil {
			log.Warn("Redis unavailable, continuing without shared price cache", "error", err)
		} else {
			c.RedisClient = redisClient
		}
	}

	c.TonAPI = tonapi.NewClient(tonapi.Config{
		BaseURL:           cfg.TonAPI.BaseURL,
		APIKey:            cfg.TonAPI.APIKey,
		Network:           cfg.TonAPI.Network,
		Timeout:           cfg.TonAPI.Timeout,
		RequestsPerSecond: cfg.TonAPI.RequestsPerSecond,
		Retry:             retry.DefaultPolicy(),
	}, zapLog)

	c.Prices = geckoterminal.NewClient(geckoterminal.Config{
		BaseURL:           cfg.Prices.BaseURL,
		Network:           cfg.Prices.Network,
		Timeout:           cfg.Prices.Timeout,
		RequestsPerSecond: cfg.Prices.RequestsPerSecond,
		Retry:             retry.DefaultPolicy(),
	}, zapLog)

	c.Signer = signer.NewClient(signer.Config{
		BaseURL:    cfg.Signer.URL,
		APIKey:     cfg.Signer.APIKey,
		Timeout:    cfg.Signer.Timeout,
		SendMode:   cfg.Signer.SendMode,
		MessageTTL: cfg.Signer.MessageTTL,
		Retry:      retry.DefaultPolicy(),
	}, zapLog)

	var oracle priority.PriceOracle = c.Prices
	if c.RedisClient != nil {
		oracle = cache.NewPriceQuoteCache(c.RedisClient, c.Prices, cfg.Prices.CacheTTL, log)
		c.Idempotency = cache.NewIdempotencyStore(c.RedisClient, idempotency.DefaultTTL)
	} else {
		c.Idempotency = idempotency.NewMemoryStore(idempotencyMemorySize, idempotency.DefaultTTL)
	}

	priorityCache, err := priority.NewCache(c.TonAPI, oracle, priority.Config{
		PriceRefreshInterval: cfg.Sweeper.PriceRefreshInterval,
		StableSymbols:        cfg.Sweeper.StableSymbols,
		PriceMemoSize:        cfg.Prices.MemoSize,
		PriceConcurrency:     cfg.Prices.Concurrency,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create priority cache: %w", err)
	}
	c.PriorityCache = priorityCache

	c.Planner = planner.NewPlanner(planner.Config{
		MinTriggerThreshold: cfg.Sweeper.MinTriggerThreshold,
		JettonGasAmount:     cfg.Sweeper.JettonGasAmount,
		ForwardAmount:       cfg.Sweeper.ForwardAmount,
		SafetyMargin:        cfg.Sweeper.SafetyMargin,
		DustThreshold:       cfg.Sweeper.DustThreshold,
	}, log)

	c.Tasks = routine.NewManager(ctx)

	if cfg.Notify.Enabled() {
		n, err := notifier.NewSNSNotifier(ctx, cfg.Notify, zapLog)
		if err != nil {
			log.Warn("SNS unavailable, continuing without drain alerts", "error", err)
		} else {
			c.Notifier = n
		}
	}

	var recorders []drain.RunRecorder
	if c.DrainRuns != nil {
		recorders = append(recorders, c.DrainRuns)
	}
	if c.Notifier != nil {
		recorders = append(recorders, c.Notifier)
	}
	recorder := drain.Recorder(recorders...)

	c.Coordinator = drain.NewCoordinator(
		c.walletClient(),
		c.PriorityCache,
		c.Planner,
		c.Tasks,
		recorder,
		drain.Config{
			Destination:         cfg.Sweeper.Destination,
			Sources:             cfg.Sweeper.Sources,
			MinTriggerThreshold: cfg.Sweeper.MinTriggerThreshold,
			ArrivalEpsilon:      cfg.Sweeper.ArrivalEpsilon,
			DrainTimeout:        cfg.Sweeper.DrainTimeout,
		},
		log,
	)

	c.BalanceWatcher = balance_watcher.NewWatcher(c.Coordinator, cfg.Sweeper.PollInterval, log)
	c.PriorityRefresher = priority_refresh.NewWorker(
		c.PriorityCache,
		cfg.Sweeper.Sources,
		cfg.Sweeper.PriorityRefreshInterval,
		cfg.Prices.Concurrency,
		log,
	)

	log.Info("Container initialized",
		"sources", len(cfg.Sweeper.Sources),
		"balance_source", cfg.Sweeper.BalanceSource,
		"audit_log", c.DrainRuns != nil,
		"shared_price_cache", c.RedisClient != nil,
		"drain_alerts", c.Notifier != nil)

	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	db, err := database.NewConnection(ctx, c.Config.Database, c.ZapLog)
	if err != nil {
		return err
	}
	if c.Config.Database.RunMigrations {
		version, err := database.RunMigrations(db, c.Config.Database.MigrationsPath)
		if err != nil {
			db.Close()
			return err
		}
		c.Logger.Info("Drain audit schema ready", "version", version)
	}
	c.DB = db
	c.DrainRuns = infrarepos.NewDrainRunRepository(db, c.Logger)
	return nil
}

// walletClient picks where native balances are read from. Sequence numbers,
// estimates and submissions always go through the signer.
func (c *Container) walletClient() drain.WalletClient {
	if c.Config.Sweeper.BalanceSource == "tonapi" {
		return &splitWallet{WalletClient: c.Signer, balances: c.TonAPI}
	}
	return c.Signer
}

// ReadinessChecks returns a probe per configured dependency
func (c *Container) ReadinessChecks() map[string]handlers.CheckFunc {
	checks := make(map[string]handlers.CheckFunc)
	if c.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			return database.HealthCheck(ctx, c.DB)
		}
	}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Ping
	}
	if c.Notifier != nil {
		checks["sns"] = c.Notifier.HealthCheck
	}
	return checks
}

// Close releases optional infrastructure
func (c *Container) Close() error {
	var errs []error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
