package session

import (
	"context"
	"sync"
	"time"

	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

type emitFunc func(ctx context.Context, ev events.Event) error

// outbox sends queued events one at a time in queue order. Retryable
// failures are retried with backoff; anything else drops the event.
type outbox struct {
	emit     emitFunc
	maxTries uint
	delay    time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	queue []events.Event
	busy  bool
	idle  chan struct{}
	wake  chan struct{}
}

func newOutbox(emit emitFunc, maxTries uint, delay time.Duration, logger *zap.Logger) *outbox {
	idle := make(chan struct{})
	close(idle)
	return &outbox{
		emit:     emit,
		maxTries: maxTries,
		delay:    delay,
		logger:   logger,
		idle:     idle,
		wake:     make(chan struct{}, 1),
	}
}

// push never blocks; it runs on the drawer loop.
func (o *outbox) push(ev events.Event) {
	o.mu.Lock()
	if len(o.queue) == 0 && !o.busy {
		o.idle = make(chan struct{})
	}
	o.queue = append(o.queue, ev)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// flush waits until everything pushed so far was sent or dropped.
func (o *outbox) flush(ctx context.Context) error {
	o.mu.Lock()
	idle := o.idle
	o.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.queue)
	if o.busy {
		n++
	}
	return n
}

func (o *outbox) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.wake:
		}
		for {
			ev, ok := o.next()
			if !ok {
				break
			}
			o.send(ctx, ev)
			o.done()
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (o *outbox) next() (events.Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return events.Event{}, false
	}
	ev := o.queue[0]
	o.queue = o.queue[1:]
	o.busy = true
	return ev, true
}

func (o *outbox) done() {
	o.mu.Lock()
	o.busy = false
	if len(o.queue) == 0 {
		close(o.idle)
	}
	o.mu.Unlock()
}

func (o *outbox) send(ctx context.Context, ev events.Event) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.delay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := o.emit(ctx, ev)
		if err != nil && !appErrors.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(o.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.logger.Debug("Retrying emit", zap.String("type", string(ev.Type)), zap.Duration("next", next), zap.Error(err))
		}),
	)
	if err != nil {
		o.logger.Error("Dropping local event",
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
