// Package ingest accepts events from clients and puts them on the
// broadcast channel. It does not wait for persistence.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"graphsync/application/ports"
	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"
	"graphsync/pkg/observability"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubmitCommand is a client event as received by the submission entrypoint.
type SubmitCommand struct {
	GraphID  string          `json:"graphId" validate:"required,max=128"`
	ClientID string          `json:"clientId" validate:"required,max=128"`
	Type     events.Type     `json:"type" validate:"required"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Service assigns ids to submitted events and broadcasts them.
type Service struct {
	publisher ports.Publisher
	ids       ports.IDGenerator
	validate  *validator.Validate
	metrics   *observability.Collector
	logger    *zap.Logger

	mu           sync.Mutex
	topicEnsured bool
	publishMu    sync.Mutex
}

// NewService creates the ingest service.
func NewService(publisher ports.Publisher, ids ports.IDGenerator, metrics *observability.Collector, logger *zap.Logger) *Service {
	return &Service{
		publisher: publisher,
		ids:       ids,
		validate:  validator.New(),
		metrics:   metrics,
		logger:    logger,
	}
}

// Submit validates cmd, assigns the event id and publishes the event on
// the events topic. It returns the published event.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (ev events.Event, err error) {
	ctx, span := observability.StartSpan(ctx, "ingest.Submit",
		attribute.String("graph.id", cmd.GraphID),
		attribute.String("event.type", string(cmd.Type)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := s.check(cmd); err != nil {
		return events.Event{}, err
	}

	if err := s.ensureTopic(ctx); err != nil {
		s.metrics.RecordPublishFailure()
		return events.Event{}, err
	}
	ev, err = s.publish(ctx, cmd)
	if err != nil {
		return events.Event{}, err
	}

	s.metrics.RecordSubmitted(string(ev.Type))
	s.logger.Debug("Event published",
		zap.String("eventID", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("graphID", ev.GraphID),
		zap.String("clientID", ev.ClientID),
	)
	return ev, nil
}

// publish assigns the id and publishes while holding publishMu, so events
// reach the channel in id order. The reducer relies on that order.
func (s *Service) publish(ctx context.Context, cmd SubmitCommand) (events.Event, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	ev := events.Event{
		ID:       s.ids.NewID(),
		Type:     cmd.Type,
		GraphID:  cmd.GraphID,
		ClientID: cmd.ClientID,
		Payload:  cmd.Payload,
	}
	msg, err := events.Encode(events.Topic, ev)
	if err != nil {
		return events.Event{}, appErrors.NewInternal("failed to encode event", err)
	}
	if err := s.publisher.Publish(ctx, events.Topic, msg); err != nil {
		s.metrics.RecordPublishFailure()
		s.logger.Error("Failed to publish event",
			zap.String("eventID", ev.ID),
			zap.String("graphID", ev.GraphID),
			zap.Error(err),
		)
		return events.Event{}, unavailable("failed to publish event", err)
	}
	return ev, nil
}

func (s *Service) check(cmd SubmitCommand) error {
	if err := s.validate.Struct(cmd); err != nil {
		return appErrors.NewValidation(err.Error())
	}
	if !cmd.Type.Known() {
		return appErrors.NewValidation(fmt.Sprintf("unknown event type %q", cmd.Type))
	}
	if cmd.Type.IsPersistable() {
		if err := checkPayload(events.Event{Type: cmd.Type, Payload: cmd.Payload}); err != nil {
			return appErrors.NewValidation(err.Error())
		}
	}
	return nil
}

// checkPayload makes sure confirmations carry a payload the reducer can read.
func checkPayload(ev events.Event) error {
	var err error
	switch ev.Type {
	case events.TypeAddNodeSuccess:
		_, err = ev.NodePayload()
	case events.TypeAddEdgeSuccess:
		_, err = ev.EdgePayload()
	case events.TypeAddNodeToEdgeSuccess:
		_, err = ev.SplicePayload()
	case events.TypeDeleteNodeSuccess, events.TypeDeleteEdgeSuccess:
		_, err = ev.IDPayload()
	}
	return err
}

// ensureTopic creates the topic once per process. Failures are not cached.
func (s *Service) ensureTopic(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topicEnsured {
		return nil
	}
	if err := s.publisher.EnsureTopic(ctx, events.Topic); err != nil {
		s.logger.Error("Failed to ensure topic", zap.String("topic", events.Topic), zap.Error(err))
		return unavailable("failed to ensure topic", err)
	}
	s.topicEnsured = true
	return nil
}

func unavailable(message string, err error) error {
	if appErrors.IsUnavailable(err) {
		return appErrors.Wrap(err, message)
	}
	return appErrors.NewUnavailable(message, err)
}
