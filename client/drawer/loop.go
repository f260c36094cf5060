package drawer

import (
	"context"
	"errors"
)

// ErrLoopStopped is returned for work posted after the loop ended.
var ErrLoopStopped = errors.New("drawer loop stopped")

// Loop serializes access to a Drawer. Post and Do may be called from any
// goroutine; Run executes the work on the calling goroutine.
type Loop struct {
	drawer *Drawer
	tasks  chan func(*Drawer)
	done   chan struct{}
}

// NewLoop creates a loop owning d.
func NewLoop(d *Drawer, buffer int) *Loop {
	return &Loop{
		drawer: d,
		tasks:  make(chan func(*Drawer), buffer),
		done:   make(chan struct{}),
	}
}

// Run executes posted work until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			fn(l.drawer)
		}
	}
}

// Post queues fn without waiting for it. It returns false once the loop has
// stopped.
func (l *Loop) Post(fn func(*Drawer)) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func(*Drawer) error) error {
	result := make(chan error, 1)
	if !l.Post(func(d *Drawer) { result <- fn(d) }) {
		return ErrLoopStopped
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		// the task may still have run just before the loop stopped
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
