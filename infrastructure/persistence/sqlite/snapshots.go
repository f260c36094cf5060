package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"
)

// SnapshotStore keeps one row per graph with nodes and edges as JSON
// columns. Save is an UPDATE guarded by the version column.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a snapshot store on db.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Create(ctx context.Context, snap graph.Snapshot) error {
	nodes, edges, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return retryOnContention(ctx, func() error {
		res, err := s.db.db.ExecContext(ctx,
			`INSERT INTO graphs (id, nodes, edges, last_event_id, version, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?) ON CONFLICT(id) DO NOTHING`,
			snap.ID, nodes, edges, snap.LastEventID, now())
		if err != nil {
			return fmt.Errorf("insert graph %s: %w", snap.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return appErrors.NewConflict("graph " + snap.ID + " already exists")
		}
		return nil
	})
}

func (s *SnapshotStore) Get(ctx context.Context, graphID string) (graph.Snapshot, error) {
	var (
		snap         graph.Snapshot
		nodes, edges string
	)
	err := s.db.db.QueryRowContext(ctx,
		`SELECT id, nodes, edges, last_event_id, version FROM graphs WHERE id = ?`, graphID,
	).Scan(&snap.ID, &nodes, &edges, &snap.LastEventID, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Snapshot{}, appErrors.UnknownGraph(graphID)
	}
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("select graph %s: %w", graphID, err)
	}
	if err := json.Unmarshal([]byte(nodes), &snap.Nodes); err != nil {
		return graph.Snapshot{}, fmt.Errorf("decode nodes of %s: %w", graphID, err)
	}
	if err := json.Unmarshal([]byte(edges), &snap.Edges); err != nil {
		return graph.Snapshot{}, fmt.Errorf("decode edges of %s: %w", graphID, err)
	}
	return snap.Clone(), nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap graph.Snapshot) (graph.Snapshot, error) {
	nodes, edges, err := encodeSnapshot(snap)
	if err != nil {
		return graph.Snapshot{}, err
	}

	err = retryOnContention(ctx, func() error {
		res, err := s.db.db.ExecContext(ctx,
			`UPDATE graphs SET nodes = ?, edges = ?, last_event_id = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			nodes, edges, snap.LastEventID, now(), snap.ID, snap.Version)
		if err != nil {
			return fmt.Errorf("update graph %s: %w", snap.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := s.Get(ctx, snap.ID); err != nil {
				return err
			}
			return appErrors.NewConflict("graph " + snap.ID + " was modified concurrently")
		}
		return nil
	})
	if err != nil {
		return graph.Snapshot{}, err
	}

	next := snap.Clone()
	next.Version++
	return next, nil
}

func encodeSnapshot(snap graph.Snapshot) (string, string, error) {
	snap = snap.Clone()
	nodes, err := json.Marshal(snap.Nodes)
	if err != nil {
		return "", "", fmt.Errorf("encode nodes: %w", err)
	}
	edges, err := json.Marshal(snap.Edges)
	if err != nil {
		return "", "", fmt.Errorf("encode edges: %w", err)
	}
	return string(nodes), string(edges), nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

var _ ports.SnapshotStore = (*SnapshotStore)(nil)
