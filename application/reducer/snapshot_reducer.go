package reducer

import (
	"context"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"
	"graphsync/domain/projection"
	appErrors "graphsync/pkg/errors"
	"graphsync/pkg/observability"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SnapshotReducer applies confirmations to the canonical snapshot with an
// optimistic read-modify-write, retried on version conflicts.
type SnapshotReducer struct {
	store       ports.SnapshotStore
	maxAttempts int
	baseDelay   time.Duration
	metrics     *observability.Collector
	logger      *zap.Logger
}

// NewSnapshotReducer creates the reducer.
func NewSnapshotReducer(store ports.SnapshotStore, maxAttempts int, baseDelay time.Duration, metrics *observability.Collector, logger *zap.Logger) *SnapshotReducer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SnapshotReducer{
		store:       store,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		metrics:     metrics,
		logger:      logger,
	}
}

// Handle consumes one broadcast message.
func (r *SnapshotReducer) Handle(ctx context.Context, msg events.Message) error {
	return settle(ctx, msg, "snapshot-reducer", func(ctx context.Context, ev events.Event) error {
		_, err := r.Apply(ctx, ev)
		return err
	}, r.logger)
}

// Apply folds ev into the snapshot of its graph. Events that carry no
// confirmation are reported as unhandled without touching the store. An
// unknown graph yields an error matching errors.ErrUnknownGraph.
func (r *SnapshotReducer) Apply(ctx context.Context, ev events.Event) (res projection.Result, err error) {
	ctx, span := observability.StartSpan(ctx, "reducer.Apply",
		attribute.String("event.id", ev.ID),
		attribute.String("graph.id", ev.GraphID),
		attribute.String("event.type", string(ev.Type)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if !ev.Type.IsConfirmation() {
		r.metrics.RecordReduction(string(projection.OutcomeUnhandled))
		return projection.Result{Outcome: projection.OutcomeUnhandled}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseDelay
	b.MaxInterval = 64 * r.baseDelay
	attempt := 0
	res, err = backoff.Retry(ctx, func() (projection.Result, error) {
		attempt++
		prior, err := r.store.Get(ctx, ev.GraphID)
		if err != nil {
			return projection.Result{}, backoff.Permanent(err)
		}

		res, err := projection.Reduce(prior, ev)
		if err != nil {
			return projection.Result{}, backoff.Permanent(appErrors.NewValidation(err.Error()))
		}
		if !res.Changed() {
			return res, nil
		}

		saved, err := r.store.Save(ctx, res.Snapshot)
		if err == nil {
			res.Snapshot = saved
			return res, nil
		}
		if !appErrors.IsConflict(err) {
			return projection.Result{}, backoff.Permanent(err)
		}
		r.logger.Debug("Snapshot write conflict, retrying",
			zap.String("graphID", ev.GraphID),
			zap.String("eventID", ev.ID),
			zap.Int("attempt", attempt),
		)
		return projection.Result{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(r.maxAttempts)))
	if appErrors.IsConflict(err) {
		return projection.Result{}, appErrors.NewConflict("snapshot of graph " + ev.GraphID + " kept changing concurrently")
	}
	if err != nil {
		return projection.Result{}, err
	}
	r.record(ev, res)
	return res, nil
}

func (r *SnapshotReducer) record(ev events.Event, res projection.Result) {
	r.metrics.RecordReduction(string(res.Outcome))
	switch res.Outcome {
	case projection.OutcomeRejected:
		r.logger.Warn("Event rejected by reducer",
			zap.String("eventID", ev.ID),
			zap.String("graphID", ev.GraphID),
			zap.String("reason", res.Reason),
		)
	case projection.OutcomeApplied:
		r.logger.Debug("Snapshot updated",
			zap.String("eventID", ev.ID),
			zap.String("graphID", ev.GraphID),
			zap.String("lastEventID", res.Snapshot.LastEventID),
		)
	}
}
