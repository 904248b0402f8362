package graceful

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

func TestShutdownManager_RunsStepsInOrder(t *testing.T) {
	sm := NewShutdownManager(&http.Server{}, logger.NewNop())

	var order []string
	sm.Register("workers", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		order = append(order, "workers")
		return nil
	})
	sm.Register("tasks", func(context.Context) error {
		order = append(order, "tasks")
		return errors.New("still draining")
	})
	sm.RegisterCloser("database", func() error {
		order = append(order, "database")
		return nil
	})

	sm.Shutdown()

	assert.Equal(t, []string{"workers", "tasks", "database"}, order)
}

func TestShutdownManager_WaitForShutdownOnSignal(t *testing.T) {
	sm := NewShutdownManager(nil, logger.NewNop())
	sm.SetTimeout(time.Second)

	stopped := make(chan struct{})
	sm.Register("marker", func(context.Context) error {
		close(stopped)
		return nil
	})

	go sm.WaitForShutdown(context.Background())
	sm.signals <- syscall.SIGTERM

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown steps did not run")
	}
}

func TestShutdownManager_WaitForShutdownOnContext(t *testing.T) {
	sm := NewShutdownManager(nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sm.WaitForShutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
}
