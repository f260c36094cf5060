// Package queries serves reads of the canonical state: snapshots and the
// event log, plus graph creation.
package queries

import (
	"context"
	"strings"

	"graphsync/application/ports"
	"graphsync/domain/events"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 500
	MaxListLimit     = 1000
)

// Service answers graph queries.
type Service struct {
	snapshots ports.SnapshotStore
	log       ports.EventLog
	logger    *zap.Logger
}

// NewService creates the query service.
func NewService(snapshots ports.SnapshotStore, log ports.EventLog, logger *zap.Logger) *Service {
	return &Service{snapshots: snapshots, log: log, logger: logger}
}

// CreateGraph stores an empty graph. An empty id gets a generated uuid.
func (s *Service) CreateGraph(ctx context.Context, graphID string) (graph.Snapshot, error) {
	graphID = strings.TrimSpace(graphID)
	if graphID == "" {
		graphID = uuid.NewString()
	}
	if len(graphID) > 128 {
		return graph.Snapshot{}, appErrors.NewValidation("graph id must be at most 128 characters")
	}

	snap := graph.NewSnapshot(graphID)
	if err := s.snapshots.Create(ctx, snap); err != nil {
		return graph.Snapshot{}, err
	}
	s.logger.Info("Graph created", zap.String("graphID", graphID))
	return s.snapshots.Get(ctx, graphID)
}

// GetGraph returns the canonical snapshot.
func (s *Service) GetGraph(ctx context.Context, graphID string) (graph.Snapshot, error) {
	if graphID == "" {
		return graph.Snapshot{}, appErrors.NewValidation("graph id is required")
	}
	return s.snapshots.Get(ctx, graphID)
}

// ListEvents returns the logged events of a graph after since, in id order.
// limit <= 0 selects DefaultListLimit; larger values are capped at
// MaxListLimit.
func (s *Service) ListEvents(ctx context.Context, graphID, since string, limit int) ([]events.Event, error) {
	if graphID == "" {
		return nil, appErrors.NewValidation("graph id is required")
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	if _, err := s.snapshots.Get(ctx, graphID); err != nil {
		return nil, err
	}
	evs, err := s.log.ListSince(ctx, graphID, since, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to list events")
	}
	return evs, nil
}
