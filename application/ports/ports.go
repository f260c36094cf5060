// Package ports declares the interfaces the application services depend on.
// Adapters live under infrastructure/.
package ports

import (
	"context"
	"time"

	"graphsync/domain/events"
	"graphsync/domain/graph"
)

// SnapshotStore persists canonical graph snapshots.
type SnapshotStore interface {
	// Create stores a new, empty graph. Creating an existing graph is a conflict.
	Create(ctx context.Context, snap graph.Snapshot) error

	// Get returns the snapshot, or an error matching errors.ErrUnknownGraph.
	Get(ctx context.Context, graphID string) (graph.Snapshot, error)

	// Save writes snap if the stored version still equals snap.Version and
	// returns the snapshot with its new version. A lost race is a conflict.
	Save(ctx context.Context, snap graph.Snapshot) (graph.Snapshot, error)
}

// EventLog is the append-only log of confirmed events.
type EventLog interface {
	// Append stores ev unless an event with the same id exists. It returns
	// the stored record and whether this call created it; the first write wins.
	Append(ctx context.Context, ev events.Event) (events.Event, bool, error)

	// ListSince returns the events of a graph with ids greater than since,
	// in id order. A limit <= 0 means no limit.
	ListSince(ctx context.Context, graphID, since string, limit int) ([]events.Event, error)
}

// Publisher puts messages on the broadcast channel.
type Publisher interface {
	// EnsureTopic creates the topic if needed. It is idempotent.
	EnsureTopic(ctx context.Context, topic string) error

	// Publish delivers msgs in order. Ordering holds only within one call.
	Publish(ctx context.Context, topic string, msgs ...events.Message) error
}

// MessageHandler consumes one broadcast message. A returned error asks the
// channel to redeliver.
type MessageHandler func(ctx context.Context, msg events.Message) error

// Notifier pushes a persisted event to every subscriber of its graph.
type Notifier interface {
	Notify(ctx context.Context, ev events.Event) error
}

// Connection is one live websocket subscriber.
type Connection struct {
	ID          string    `json:"connectionId" dynamodbav:"connectionId"`
	GraphID     string    `json:"graphId" dynamodbav:"graphId"`
	ClientID    string    `json:"clientId" dynamodbav:"clientId"`
	ConnectedAt time.Time `json:"connectedAt" dynamodbav:"connectedAt"`
}

// ConnectionStore tracks websocket subscribers for the cloud fan-out path.
type ConnectionStore interface {
	Save(ctx context.Context, conn Connection) error
	Delete(ctx context.Context, connectionID string) error
	ListByGraph(ctx context.Context, graphID string) ([]Connection, error)
}

// IDGenerator assigns event ids. Ids must sort lexically in creation order.
type IDGenerator interface {
	NewID() string
}

// Clock returns the current time.
type Clock func() time.Time
