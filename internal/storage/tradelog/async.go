package tradelog

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/pkg/retrier"
)

// ErrQueueFull is returned by Async.Append when the buffer is exhausted.
var ErrQueueFull = errors.New("trade log queue is full")

const defaultQueueSize = 1024

// Async moves slow sinks (network, database) off the trading path. Records
// are queued and written by one worker with retries; a full queue drops the
// record and reports ErrQueueFull.
type Async struct {
	name    string
	next    Sink
	queue   chan domain.TradeRecord
	retrier *retrier.Retrier
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsync wraps next. Start must be called to begin draining the queue.
func NewAsync(name string, next Sink, queueSize int, r *retrier.Retrier, logger *zap.Logger) *Async {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		r = retrier.New(retrier.WithOnRetry(func(attempt int, err error) {
			logger.Warn("retrying trade log write", zap.String("sink", name), zap.Int("attempt", attempt), zap.Error(err))
		}))
	}
	return &Async{
		name:    name,
		next:    next,
		queue:   make(chan domain.TradeRecord, queueSize),
		retrier: r,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Append enqueues record without blocking.
func (a *Async) Append(record domain.TradeRecord) error {
	select {
	case a.queue <- record:
		return nil
	default:
		return errors.Wrap(ErrQueueFull, a.name)
	}
}

// Start drains the queue until ctx is done or Close is called, then writes
// whatever is still queued.
func (a *Async) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain(context.Background())
			return nil
		case <-a.done:
			a.drain(context.Background())
			return nil
		case record := <-a.queue:
			a.write(ctx, record)
		}
	}
}

// Close stops the worker.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
	})
}

func (a *Async) drain(ctx context.Context) {
	for {
		select {
		case record := <-a.queue:
			a.write(ctx, record)
		default:
			return
		}
	}
}

func (a *Async) write(ctx context.Context, record domain.TradeRecord) {
	err := a.retrier.Do(ctx, func(context.Context) error {
		return a.next.Append(record)
	})
	if err != nil {
		a.logger.Error("failed to write trade record",
			zap.String("sink", a.name),
			zap.String("id", record.ID),
			zap.Error(err))
	}
}
