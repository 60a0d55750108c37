// Package dispatch runs submitted functions one at a time on a single
// goroutine. The HTTP layer routes every sandbox call through a Queue so the
// lock-free engine never sees two calls interleave.
package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrStopped is returned for calls submitted after the queue stopped.
var ErrStopped = errors.New("dispatch queue stopped")

const defaultBacklog = 128

type job struct {
	fn   func()
	done chan struct{}
}

// Queue serializes function calls.
type Queue struct {
	jobs    chan job
	stopped chan struct{}
	logger  *zap.Logger
}

// New creates a queue accepting up to backlog pending calls before Do blocks.
func New(backlog int, logger *zap.Logger) *Queue {
	if backlog < 1 {
		backlog = defaultBacklog
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		jobs:    make(chan job, backlog),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run executes queued calls until ctx is done. Calls already queued when ctx
// ends are not executed; their callers get ErrStopped.
func (q *Queue) Run(ctx context.Context) error {
	defer close(q.stopped)
	q.logger.Debug("dispatch queue started")

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("dispatch queue stopped")
			return nil
		case j := <-q.jobs:
			q.execute(j)
		}
	}
}

// Do runs fn on the queue goroutine and waits for it. Once fn has started it
// always runs to completion, even if ctx is cancelled meanwhile.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	var err error
	j := job{
		fn: func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("dispatched call panicked", zap.Any("panic", r))
					err = errors.Errorf("dispatched call panicked: %v", r)
				}
			}()
			err = fn()
		},
		done: make(chan struct{}),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopped:
		return ErrStopped
	case q.jobs <- j:
	}

	select {
	case <-j.done:
		return err
	case <-q.stopped:
		// Run may have picked the job just before stopping
		select {
		case <-j.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// Call is Do for functions returning a value.
func Call[T any](ctx context.Context, q *Queue, fn func() (T, error)) (T, error) {
	var out T
	err := q.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (q *Queue) execute(j job) {
	defer close(j.done)
	j.fn()
}
