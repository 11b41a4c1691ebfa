package manager

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrShuttingDown indicates workflows are no longer accepted.
var ErrShuttingDown = errors.New("store manager is shutting down")

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// taskRegistry tracks detached workflows so they can be cancelled by key and
// drained on shutdown.
type taskRegistry struct {
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  map[string]*task
	wg     sync.WaitGroup
}

func newTaskRegistry() *taskRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskRegistry{
		baseCtx:    ctx,
		cancelBase: cancel,
		tasks:      make(map[string]*task),
	}
}

// spawn runs fn in its own goroutine under key. The context passed to fn is
// independent of any request context and is cancelled by cancel(key) or by a
// drain that runs out of grace.
func (r *taskRegistry) spawn(key string, fn func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrShuttingDown
	}
	if _, exists := r.tasks[key]; exists {
		return errors.New("task already running: " + key)
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[key] = t
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			if r.tasks[key] == t {
				delete(r.tasks, key)
			}
			r.mu.Unlock()
			close(t.done)
		}()
		fn(ctx)
	}()
	return nil
}

// cancel signals the task under key and returns a channel closed when it
// exits. The channel is already closed when no such task runs.
func (r *taskRegistry) cancel(key string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[key]
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	t.cancel()
	return t.done
}

func (r *taskRegistry) running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}

func (r *taskRegistry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *taskRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// drain stops accepting tasks and waits up to grace for running ones. Tasks
// still running after grace are cancelled, then awaited until ctx ends.
func (r *taskRegistry) drain(ctx context.Context, grace time.Duration) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	allDone := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(allDone)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-allDone:
		r.cancelBase()
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}

	r.cancelBase()
	select {
	case <-allDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
