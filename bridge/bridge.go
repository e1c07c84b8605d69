// Package bridge drives blocking describe work from synchronous call sites.
//
// A Runtime is created once per process (see Default) and reused for every call.
// Each Block call runs exactly one task goroutine and parks the calling goroutine
// until that task finishes. Tasks started by different callers progress independently,
// so state they share (the describe cache and connection pools) synchronizes itself.
//
// Nested Block calls from inside a task are not supported and fail with ErrReentrant.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

var (
	// ErrInterrupted is returned when the runtime is shut down or the process receives SIGINT/SIGTERM.
	ErrInterrupted = errors.New("bridge: interrupted")
	// ErrReentrant is returned when Block is called with a context owned by a running task.
	ErrReentrant = errors.New("bridge: nested blocking call from a bridge task")
	// ErrTaskPanicked is returned when a task panics.
	ErrTaskPanicked = errors.New("bridge: task panicked")
)

type taskKey struct{}

// Runtime owns the root context every task derives from
type Runtime struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	started  atomic.Int64
	finished atomic.Int64
	panicked atomic.Int64
}

// Stats reports task counters of a Runtime
type Stats struct {
	Started  int64
	Finished int64
	Running  int64
	Panicked int64
}

// New creates a Runtime whose tasks are cancelled when parent is done or Shutdown is called.
func New(parent context.Context) *Runtime {
	ctx, cancel := context.WithCancelCause(parent)

	return &Runtime{ctx: ctx, cancel: cancel}
}

var defaultRuntime = sync.OnceValue(func() *Runtime {
	// Never stopped: the runtime lives until process exit.
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return New(ctx)
})

// Default returns the process-wide Runtime, creating it on first use.
func Default() *Runtime {
	return defaultRuntime()
}

// Context returns the root context of the runtime
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Shutdown interrupts all running tasks. Later Block calls fail with ErrInterrupted.
func (r *Runtime) Shutdown() {
	r.cancel(ErrInterrupted)
}

// Stats returns a snapshot of the task counters
func (r *Runtime) Stats() Stats {
	started := r.started.Load()
	finished := r.finished.Load()

	return Stats{
		Started:  started,
		Finished: finished,
		Running:  started - finished,
		Panicked: r.panicked.Load(),
	}
}

// IsTask reports whether ctx belongs to a running bridge task
func IsTask(ctx context.Context) bool {
	return ctx.Value(taskKey{}) != nil
}

// Block runs fn as a task of r and waits for its result.
func Block[T any](r *Runtime, fn func(ctx context.Context) (T, error)) (T, error) {
	return BlockContext(r, context.Background(), fn)
}

// BlockContext is Block with a caller context; the task is cancelled when either ctx or the runtime is done.
func BlockContext[T any](r *Runtime, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if IsTask(ctx) {
		return zero, ErrReentrant
	}

	if err := r.ctx.Err(); err != nil {
		return zero, interruption(r.ctx)
	}

	taskCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := context.AfterFunc(r.ctx, func() {
		cancel(interruption(r.ctx))
	})
	defer stop()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)

	r.started.Add(1)

	go func() {
		var res result

		func() {
			defer func() {
				if p := recover(); p != nil {
					r.panicked.Add(1)

					res = result{err: fmt.Errorf("%w: %v", ErrTaskPanicked, p)}
				}
			}()

			res.value, res.err = fn(context.WithValue(taskCtx, taskKey{}, r))
		}()

		r.finished.Add(1)
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil && taskCtx.Err() != nil {
			return zero, errors.Join(context.Cause(taskCtx), res.err)
		}

		return res.value, res.err
	case <-taskCtx.Done():
		// The task observes the same cancellation and cleans up on its own.
		return zero, context.Cause(taskCtx)
	}
}

func interruption(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrInterrupted) {
		return cause
	}

	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}
