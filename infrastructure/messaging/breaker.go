// Package messaging holds publisher decorators shared by the broadcast
// channel adapters in its subpackages.
package messaging

import (
	"context"
	"errors"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker around a publisher.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// BreakerPublisher stops calling the wrapped publisher after repeated
// failures and reports UNAVAILABLE until the breaker half-opens.
type BreakerPublisher struct {
	next   ports.Publisher
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakerPublisher wraps next with a circuit breaker.
func NewBreakerPublisher(next ports.Publisher, cfg BreakerConfig, logger *zap.Logger) *BreakerPublisher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A cancelled caller says nothing about the channel's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerPublisher{next: next, cb: cb, logger: logger}
}

func (p *BreakerPublisher) EnsureTopic(ctx context.Context, topic string) error {
	return p.execute(func() error { return p.next.EnsureTopic(ctx, topic) })
}

// Publish forwards to the wrapped publisher unless the circuit is open.
func (p *BreakerPublisher) Publish(ctx context.Context, topic string, msgs ...events.Message) error {
	return p.execute(func() error { return p.next.Publish(ctx, topic, msgs...) })
}

// State exposes the breaker state for readiness checks.
func (p *BreakerPublisher) State() gobreaker.State { return p.cb.State() }

func (p *BreakerPublisher) execute(fn func() error) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return appErrors.NewUnavailable("broadcast channel temporarily unavailable", err)
	}
	return err
}

var _ ports.Publisher = (*BreakerPublisher)(nil)
