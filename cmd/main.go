package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ton-sweeper/sweeper_service/internal/api/routes"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/config"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/database"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/di"
	"github.com/ton-sweeper/sweeper_service/pkg/graceful"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
	"github.com/ton-sweeper/sweeper_service/pkg/security"
	"github.com/ton-sweeper/sweeper_service/pkg/tracing"
)

// @title TON Sweeper API
// @version 1.0
// @description Drains monitored TON wallets into a cold vault, highest-value tokens first
// @BasePath /

// @securityDefinitions.apikey WebhookSecret
// @in header
// @name X-Webhook-Secret

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	tracingShutdown, err := tracing.InitTracer(rootCtx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		Network:      cfg.TonAPI.Network,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := di.NewContainer(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	router := routes.SetupRoutes(container)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if err := container.PriorityRefresher.Start(rootCtx); err != nil {
		log.Fatal("Failed to start priority refresh worker", "error", err)
	}
	if err := container.BalanceWatcher.Start(rootCtx); err != nil {
		log.Fatal("Failed to start balance watcher", "error", err)
	}

	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
			"sources", len(cfg.Sweeper.Sources),
			"destination", cfg.Sweeper.Destination,
			"tonapi_key", security.MaskAPIKey(cfg.TonAPI.APIKey),
			"signer", cfg.Signer.URL,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	if container.DB != nil {
		go database.ReportStats(rootCtx, container.DB, 30*time.Second)
	}

	// Intake stops first, then the workers, then in-flight drains finish
	// before their dependencies are released.
	shutdown := graceful.NewShutdownManager(server, log)
	shutdown.Register("balance_watcher", container.BalanceWatcher.Stop)
	shutdown.Register("priority_refresh", container.PriorityRefresher.Stop)
	shutdown.Register("drain_tasks", container.Tasks.Close)
	shutdown.Register("root_context", func(context.Context) error {
		cancelRoot()
		return nil
	})
	shutdown.RegisterCloser("infrastructure", container.Close)
	shutdown.Register("tracing", tracingShutdown)

	shutdown.WaitForShutdown(rootCtx)
}
