package priority_refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

const defaultConcurrency = 2

// Refresher is the priority cache surface the worker drives
type Refresher interface {
	Refresh(ctx context.Context, owner string)
}

// Worker rebuilds every source's token ranking on a cron schedule so a
// drain rarely has to refresh inline.
type Worker struct {
	refresher   Refresher
	owners      []string
	interval    time.Duration
	concurrency int
	cron        *cron.Cron
	logger      *logger.Logger
}

func NewWorker(refresher Refresher, owners []string, interval time.Duration, concurrency int, logger *logger.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Worker{
		refresher:   refresher,
		owners:      owners,
		interval:    interval,
		concurrency: concurrency,
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:      logger,
	}
}

// Start warms every ranking once, then schedules the periodic refresh
func (w *Worker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("priority refresh interval must be positive, got %s", w.interval)
	}

	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		runCtx, cancel := context.WithTimeout(ctx, w.interval)
		defer cancel()
		w.RefreshAll(runCtx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule priority refresh: %w", err)
	}

	go w.RefreshAll(ctx)

	w.cron.Start()
	w.logger.Info("Priority refresh worker started", "interval", w.interval, "owners", len(w.owners))
	return nil
}

// Stop halts scheduling and waits for a running refresh, bounded by ctx
func (w *Worker) Stop(ctx context.Context) error {
	stopped := w.cron.Stop()
	select {
	case <-stopped.Done():
		w.logger.Info("Priority refresh worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Priority refresh worker stop timeout")
		return ctx.Err()
	}
}

// RefreshAll refreshes every owner with bounded fan-out
func (w *Worker) RefreshAll(ctx context.Context) {
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, owner := range w.owners {
		g.Go(func() error {
			w.refresher.Refresh(gctx, owner)
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Debug("Priority refresh pass completed",
		"owners", len(w.owners),
		"duration", time.Since(started))
}
