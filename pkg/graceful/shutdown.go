package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Step is one named shutdown action
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// ShutdownManager stops the HTTP server first, then runs registered steps
// in registration order under one shared deadline.
type ShutdownManager struct {
	server  *http.Server
	steps   []Step
	timeout time.Duration
	signals chan os.Signal
	logger  *logger.Logger
}

func NewShutdownManager(server *http.Server, logger *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server:  server,
		steps:   make([]Step, 0),
		timeout: defaultTimeout,
		signals: make(chan os.Signal, 1),
		logger:  logger,
	}
}

func (sm *ShutdownManager) SetTimeout(d time.Duration) {
	if d > 0 {
		sm.timeout = d
	}
}

// Register appends a shutdown step
func (sm *ShutdownManager) Register(name string, fn func(ctx context.Context) error) {
	sm.steps = append(sm.steps, Step{Name: name, Fn: fn})
}

// RegisterCloser adapts a plain Close() error
func (sm *ShutdownManager) RegisterCloser(name string, close func() error) {
	sm.Register(name, func(context.Context) error { return close() })
}

// WaitForShutdown blocks until SIGINT/SIGTERM or ctx is done, then shuts down
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) {
	signal.Notify(sm.signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sm.signals)

	select {
	case sig := <-sm.signals:
		sm.logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		sm.logger.Info("Shutdown requested")
	}

	sm.Shutdown()
}

// Shutdown runs every step even if an earlier one fails
func (sm *ShutdownManager) Shutdown() {
	sm.logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.Error("Server forced shutdown", "error", err)
		}
	}

	for _, step := range sm.steps {
		if err := step.Fn(ctx); err != nil {
			sm.logger.Warn("Component shutdown error", "component", step.Name, "error", err)
			continue
		}
		sm.logger.Debug("Component stopped", "component", step.Name)
	}

	sm.logger.Info("Shutdown complete")
}
