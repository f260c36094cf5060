// Package memory provides in-process stores for tests and the standalone server.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"graphsync/application/ports"
	"graphsync/domain/events"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"
)

// SnapshotStore keeps snapshots in a map guarded by a mutex. Save is a
// compare-and-swap on Version.
type SnapshotStore struct {
	mu     sync.RWMutex
	graphs map[string]graph.Snapshot
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{graphs: make(map[string]graph.Snapshot)}
}

func (s *SnapshotStore) Create(_ context.Context, snap graph.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.graphs[snap.ID]; exists {
		return appErrors.NewConflict("graph " + snap.ID + " already exists")
	}
	snap = snap.Clone()
	snap.Version = 1
	s.graphs[snap.ID] = snap
	return nil
}

func (s *SnapshotStore) Get(_ context.Context, graphID string) (graph.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.graphs[graphID]
	if !ok {
		return graph.Snapshot{}, appErrors.UnknownGraph(graphID)
	}
	return snap.Clone(), nil
}

func (s *SnapshotStore) Save(_ context.Context, snap graph.Snapshot) (graph.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.graphs[snap.ID]
	if !ok {
		return graph.Snapshot{}, appErrors.UnknownGraph(snap.ID)
	}
	if current.Version != snap.Version {
		return graph.Snapshot{}, appErrors.NewConflict("graph " + snap.ID + " was modified concurrently")
	}
	next := snap.Clone()
	next.Version++
	s.graphs[snap.ID] = next
	return next.Clone(), nil
}

// EventLog keeps events per graph, sorted by id.
type EventLog struct {
	mu     sync.RWMutex
	byID   map[string]events.Event
	graphs map[string][]string
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{
		byID:   make(map[string]events.Event),
		graphs: make(map[string][]string),
	}
}

func (l *EventLog) Append(_ context.Context, ev events.Event) (events.Event, bool, error) {
	if ev.ID == "" {
		return events.Event{}, false, appErrors.NewValidation("event id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if stored, exists := l.byID[ev.ID]; exists {
		return stored, false, nil
	}
	l.byID[ev.ID] = ev
	ids := l.graphs[ev.GraphID]
	i := sort.SearchStrings(ids, ev.ID)
	l.graphs[ev.GraphID] = slices.Insert(ids, i, ev.ID)
	return ev, true, nil
}

func (l *EventLog) ListSince(_ context.Context, graphID, since string, limit int) ([]events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.graphs[graphID]
	start := sort.Search(len(ids), func(i int) bool { return ids[i] > since })
	out := make([]events.Event, 0, len(ids)-start)
	for _, id := range ids[start:] {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, l.byID[id])
	}
	return out, nil
}

// ConnectionStore tracks websocket connections in memory.
type ConnectionStore struct {
	mu    sync.RWMutex
	conns map[string]ports.Connection
}

// NewConnectionStore creates an empty store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{conns: make(map[string]ports.Connection)}
}

func (c *ConnectionStore) Save(_ context.Context, conn ports.Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn.ID] = conn
	return nil
}

func (c *ConnectionStore) Delete(_ context.Context, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, connectionID)
	return nil
}

func (c *ConnectionStore) ListByGraph(_ context.Context, graphID string) ([]ports.Connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ports.Connection
	for _, conn := range c.conns {
		if conn.GraphID == graphID {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ ports.SnapshotStore   = (*SnapshotStore)(nil)
	_ ports.EventLog        = (*EventLog)(nil)
	_ ports.ConnectionStore = (*ConnectionStore)(nil)
)
