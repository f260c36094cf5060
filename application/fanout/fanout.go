// Package fanout delivers persisted events to every subscriber of their
// graph, through one or more transports.
package fanout

import (
	"context"
	"errors"

	"graphsync/application/ports"
	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"
	"graphsync/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Fanout notifies every transport. All transports are attempted even when
// one fails; the failures are joined and reported as retryable so the
// channel redelivers the event.
type Fanout struct {
	transports []ports.Notifier
	logger     *zap.Logger
}

// New creates a fan-out over transports.
func New(logger *zap.Logger, transports ...ports.Notifier) *Fanout {
	return &Fanout{transports: transports, logger: logger}
}

// Notify implements ports.Notifier.
func (f *Fanout) Notify(ctx context.Context, ev events.Event) (err error) {
	ctx, span := observability.StartSpan(ctx, "fanout.Notify",
		attribute.String("graph.id", ev.GraphID),
		attribute.String("event.id", ev.ID),
	)
	defer func() { observability.EndSpan(span, err) }()

	var errs []error
	for _, t := range f.transports {
		if err := t.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	joined := errors.Join(errs...)
	f.logger.Warn("Fan-out incomplete",
		zap.String("eventID", ev.ID),
		zap.String("graphID", ev.GraphID),
		zap.Error(joined),
	)
	return appErrors.NewUnavailable("fan-out incomplete", joined)
}

var _ ports.Notifier = (*Fanout)(nil)
