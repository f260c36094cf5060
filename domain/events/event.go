package events

import (
	"encoding/json"
	"fmt"
	"time"

	"graphsync/domain/graph"
)

// Event is one entry of the append-only event log. ID and CreatedAt are
// assigned by the server; clients leave them empty when submitting.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      Type            `json:"type"`
	GraphID   string          `json:"graphId"`
	ClientID  string          `json:"clientId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt,omitzero"`
}

// New builds an event carrying payload encoded as JSON. A nil payload is
// left empty.
func New(t Type, payload any) (Event, error) {
	ev := Event{Type: t}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	ev.Payload = raw
	return ev, nil
}

// MustNew is New for payloads that always encode.
func MustNew(t Type, payload any) Event {
	ev, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

// NodePayload decodes the payload of AddNode and AddNodeSuccess.
func (e Event) NodePayload() (graph.Node, error) {
	var n graph.Node
	if err := e.decode(&n); err != nil {
		return graph.Node{}, err
	}
	if n.ID == "" {
		return graph.Node{}, fmt.Errorf("%s payload: node id is empty", e.Type)
	}
	return n, nil
}

// EdgePayload decodes the payload of AddEdge, AddEdgeSuccess and the preview
// events. The returned edge carries its derived id.
func (e Event) EdgePayload() (graph.Edge, error) {
	var edge graph.Edge
	if err := e.decode(&edge); err != nil {
		return graph.Edge{}, err
	}
	if edge.Source == "" || edge.Target == "" {
		return graph.Edge{}, fmt.Errorf("%s payload: edge endpoints are required", e.Type)
	}
	return edge.Normalize(), nil
}

// SplicePayload decodes the payload of AddNodeToEdge and AddNodeToEdgeSuccess.
func (e Event) SplicePayload() (graph.SplicePayload, error) {
	var p graph.SplicePayload
	if err := e.decode(&p); err != nil {
		return graph.SplicePayload{}, err
	}
	if p.Node.ID == "" || p.SourceID == "" || p.TargetID == "" {
		return graph.SplicePayload{}, fmt.Errorf("%s payload: node and endpoints are required", e.Type)
	}
	if p.EdgeID == "" {
		p.EdgeID = graph.EdgeID(p.SourceID, p.TargetID)
	}
	return p, nil
}

// IDPayload decodes the bare id carried by delete, view and update events.
func (e Event) IDPayload() (string, error) {
	var id string
	if err := e.decode(&id); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%s payload: id is empty", e.Type)
	}
	return id, nil
}

func (e Event) decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s payload is empty", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// After reports whether e sorts strictly after the event id since. Event ids
// are ULIDs, so lexical order is creation order.
func (e Event) After(since string) bool {
	return since == "" || e.ID > since
}
