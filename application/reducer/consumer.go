// Package reducer consumes the broadcast channel on the server side: the
// LogWriter appends events to the log and fans them out, the
// SnapshotReducer folds confirmations into the canonical snapshot. Both are
// independent subscribers of the events topic.
package reducer

import (
	"context"

	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"

	"go.uber.org/zap"
)

// eventHandler is the shape shared by both consumers.
type eventHandler func(ctx context.Context, ev events.Event) error

// settle adapts an event handler to the channel's redelivery contract:
// retryable errors are returned to trigger redelivery, everything else is
// logged and acknowledged.
func settle(ctx context.Context, msg events.Message, consumer string, handle eventHandler, logger *zap.Logger) error {
	ev, err := msg.Decode()
	if err != nil {
		logger.Error("Dropping undecodable message",
			zap.String("consumer", consumer),
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
		return nil
	}

	err = handle(ctx, ev)
	if err == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("consumer", consumer),
		zap.String("eventID", ev.ID),
		zap.String("graphID", ev.GraphID),
		zap.String("type", string(ev.Type)),
		zap.Error(err),
	}
	if appErrors.IsRetryable(err) {
		logger.Warn("Event handling failed, requesting redelivery", fields...)
		return err
	}
	logger.Error("Event handling failed permanently", fields...)
	return nil
}
