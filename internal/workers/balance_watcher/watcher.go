package balance_watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

// Drainer is the coordinator surface the watcher needs
type Drainer interface {
	Sources() []string
	Trigger(ctx context.Context, trig entities.Trigger) entities.DrainResult
}

// Watcher polls every configured source on a fixed interval and feeds the
// result into the drain coordinator. Sources are visited one at a time.
type Watcher struct {
	drainer  Drainer
	logger   *logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.RWMutex
	now      func() time.Time
}

func NewWatcher(drainer Drainer, interval time.Duration, logger *logger.Logger) *Watcher {
	return &Watcher{
		drainer:  drainer,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins polling. The first pass runs immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("balance watcher is already running")
	}
	if w.interval <= 0 {
		return fmt.Errorf("balance watcher interval must be positive, got %s", w.interval)
	}
	w.running = true
	w.stopCh = make(chan struct{})

	w.logger.Info("Starting balance watcher",
		"interval", w.interval,
		"sources", len(w.drainer.Sources()))

	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)
	return nil
}

// Stop signals the loop and waits for the current pass, bounded by ctx
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("balance watcher is not running")
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Balance watcher stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Balance watcher stop timeout - forcing shutdown")
		return ctx.Err()
	}
}

func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx, stopCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			w.logger.Info("Balance watcher cancelled by context")
			return
		case <-ticker.C:
			w.Poll(ctx, stopCh)
		}
	}
}

// Poll runs one pass over all sources. A pass interrupted by stop leaves
// the remaining sources for the next start.
func (w *Watcher) Poll(ctx context.Context, stopCh <-chan struct{}) {
	started := w.now()
	counts := make(map[entities.DrainOutcome]int)

	for _, source := range w.drainer.Sources() {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		res := w.drainer.Trigger(ctx, entities.Trigger{
			Owner:      source,
			Source:     entities.TriggerSourcePoll,
			ReceivedAt: w.now(),
		})
		counts[res.Outcome]++
	}

	if drained := countDrained(counts); drained > 0 {
		w.logger.Info("Balance poll completed",
			"drains", drained,
			"duration", w.now().Sub(started))
	} else {
		w.logger.Debug("Balance poll completed", "outcomes", counts)
	}
}

func countDrained(counts map[entities.DrainOutcome]int) int {
	n := 0
	for outcome, c := range counts {
		if outcome.Drained() {
			n += c
		}
	}
	return n
}
