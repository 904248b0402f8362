// Package routine runs named background tasks with lifecycle hooks.
// A task ID can only have one live instance at a time.
package routine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Handler processes work bound to a task specific context.
// Returning an error triggers the task's OnError hook.
type Handler func(ctx context.Context) error

var (
	ErrEmptyID          = errors.New("routine manager: empty id")
	ErrRoutineExists    = errors.New("routine manager: routine already running")
	ErrNilTask          = errors.New("routine manager: nil task")
	ErrTaskHandlerUnset = errors.New("routine manager: task handler not set")
	ErrClosed           = errors.New("routine manager: closed")
)

type Manager struct {
	baseCtx context.Context
	mu      sync.RWMutex
	tasks   map[string]*Task
	wg      sync.WaitGroup
	closed  bool
}

// Task wraps a handler, its runtime state, and lifecycle callbacks.
type Task struct {
	ID      string
	Handler Handler

	OnStart func(string)
	OnDone  func(string)
	OnError func(string, error)

	cancel context.CancelFunc
}

func NewManager(ctx context.Context) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Manager{
		baseCtx: ctx,
		tasks:   make(map[string]*Task),
	}
}

// RunTask starts the task unless one with the same ID is still running.
func (m *Manager) RunTask(task *Task) error {
	if task == nil {
		return ErrNilTask
	}
	if task.ID == "" {
		return ErrEmptyID
	}
	if task.Handler == nil {
		return ErrTaskHandlerUnset
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, exists := m.tasks[task.ID]; exists {
		m.mu.Unlock()
		return ErrRoutineExists
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	task.cancel = cancel
	m.tasks[task.ID] = task
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, task)
	return nil
}

// Active returns the number of live tasks.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// Close stops accepting tasks and waits for live ones until ctx expires.
// Running tasks are not cancelled; they finish on their own contexts.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("routine manager: %d tasks still running: %w", m.Active(), ctx.Err())
	}
}

func (m *Manager) run(ctx context.Context, task *Task) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil && task.OnError != nil {
			task.OnError(task.ID, fmt.Errorf("panic: %v", r))
		}
		task.cancel()
		m.cleanup(task.ID, task)
		if task.OnDone != nil {
			task.OnDone(task.ID)
		}
	}()
	if task.OnStart != nil {
		task.OnStart(task.ID)
	}
	if err := task.Handler(ctx); err != nil && task.OnError != nil {
		task.OnError(task.ID, err)
	}
}

func (m *Manager) cleanup(id string, task *Task) {
	m.mu.Lock()
	if current, ok := m.tasks[id]; ok && current == task {
		delete(m.tasks, id)
	}
	m.mu.Unlock()
}
