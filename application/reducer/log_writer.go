package reducer

import (
	"context"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"
	"graphsync/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LogWriter persists every broadcast event under its id. The first write
// wins; redeliveries leave the stored record untouched. After the write the
// stored record is handed to the notifier, on every delivery, so a failed
// fan-out is repaired by redelivery.
type LogWriter struct {
	log      ports.EventLog
	notifier ports.Notifier
	now      ports.Clock
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewLogWriter creates the writer. notifier may be nil when fan-out is
// handled elsewhere.
func NewLogWriter(log ports.EventLog, notifier ports.Notifier, now ports.Clock, metrics *observability.Collector, logger *zap.Logger) *LogWriter {
	if now == nil {
		now = time.Now
	}
	return &LogWriter{log: log, notifier: notifier, now: now, metrics: metrics, logger: logger}
}

// Handle consumes one broadcast message.
func (w *LogWriter) Handle(ctx context.Context, msg events.Message) error {
	return settle(ctx, msg, "log-writer", w.HandleEvent, w.logger)
}

// HandleEvent appends ev and notifies subscribers.
func (w *LogWriter) HandleEvent(ctx context.Context, ev events.Event) (err error) {
	ctx, span := observability.StartSpan(ctx, "reducer.LogWriter",
		attribute.String("event.id", ev.ID),
		attribute.String("graph.id", ev.GraphID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if ev.ID == "" || ev.GraphID == "" {
		return appErrors.NewValidation("event id and graph id are required")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = w.now().UTC()
	}

	stored, created, err := w.log.Append(ctx, ev)
	if err != nil {
		return appErrors.Wrap(err, "failed to append event "+ev.ID)
	}
	w.metrics.RecordLogged(created)
	if created {
		w.logger.Debug("Event logged", zap.String("eventID", ev.ID), zap.String("type", string(ev.Type)))
	} else {
		w.logger.Debug("Event already logged", zap.String("eventID", ev.ID))
	}

	if w.notifier == nil {
		return nil
	}
	return w.notifier.Notify(ctx, stored)
}
