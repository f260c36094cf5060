// Package projection folds confirmed events into the canonical graph snapshot.
package projection

import (
	"fmt"
	"slices"

	"graphsync/domain/events"
	"graphsync/domain/graph"
)

// Outcome describes what a reduction did.
type Outcome string

const (
	// OutcomeApplied means the snapshot changed.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the event was already reflected in the snapshot.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeUnhandled means the reducer declines the event type.
	OutcomeUnhandled Outcome = "unhandled"
	// OutcomeRejected means applying the event would break referential integrity.
	OutcomeRejected Outcome = "rejected"
)

// Result is the outcome of one reduction together with the new snapshot.
type Result struct {
	Snapshot graph.Snapshot
	Outcome  Outcome
	Reason   string
}

// Changed reports whether the snapshot must be written back.
func (r Result) Changed() bool { return r.Outcome == OutcomeApplied }

// Reduce applies ev to prior and returns the next snapshot. It never mutates
// prior. LastEventID is the checkpoint: a confirmation whose id does not sort
// after it was already applied, or superseded, and yields OutcomeDuplicate.
// Confirmations already reflected in the entity sets are duplicates as well,
// so at-least-once delivery converges on the same state. An error is
// returned only for payloads that cannot be decoded.
func Reduce(prior graph.Snapshot, ev events.Event) (Result, error) {
	if !ev.Type.IsConfirmation() {
		return Result{Snapshot: prior, Outcome: OutcomeUnhandled, Reason: fmt.Sprintf("unhandled event type %s", ev.Type)}, nil
	}
	if ev.ID != "" && ev.ID <= prior.LastEventID {
		return Result{Snapshot: prior, Outcome: OutcomeDuplicate, Reason: "event " + ev.ID + " is at or before checkpoint " + prior.LastEventID}, nil
	}
	next := prior.Clone()

	var (
		outcome Outcome
		reason  string
		err     error
	)
	switch ev.Type {
	case events.TypeAddNodeSuccess:
		outcome, err = addNode(&next, ev)
	case events.TypeAddEdgeSuccess:
		outcome, reason, err = addEdge(&next, ev)
	case events.TypeAddNodeToEdgeSuccess:
		outcome, reason, err = splice(&next, ev)
	case events.TypeDeleteNodeSuccess:
		outcome, err = deleteNode(&next, ev)
	case events.TypeDeleteEdgeSuccess:
		outcome, err = deleteEdge(&next, ev)
	}
	if err != nil {
		return Result{Snapshot: prior}, err
	}
	if outcome != OutcomeApplied {
		return Result{Snapshot: prior, Outcome: outcome, Reason: reason}, nil
	}

	if ev.ID > next.LastEventID {
		next.LastEventID = ev.ID
	}
	return Result{Snapshot: next, Outcome: OutcomeApplied}, nil
}

func addNode(s *graph.Snapshot, ev events.Event) (Outcome, error) {
	node, err := ev.NodePayload()
	if err != nil {
		return "", err
	}
	if s.HasNode(node.ID) {
		return OutcomeDuplicate, nil
	}
	s.Nodes = append(s.Nodes, node)
	return OutcomeApplied, nil
}

func addEdge(s *graph.Snapshot, ev events.Event) (Outcome, string, error) {
	edge, err := ev.EdgePayload()
	if err != nil {
		return "", "", err
	}
	if s.HasEdge(edge.ID) {
		return OutcomeDuplicate, "", nil
	}
	if edge.Source == edge.Target {
		return OutcomeRejected, "self loop " + edge.ID, nil
	}
	if !s.HasNode(edge.Source) || !s.HasNode(edge.Target) {
		return OutcomeRejected, "dangling edge " + edge.ID, nil
	}
	s.Edges = append(s.Edges, edge)
	return OutcomeApplied, "", nil
}

func splice(s *graph.Snapshot, ev events.Event) (Outcome, string, error) {
	p, err := ev.SplicePayload()
	if err != nil {
		return "", "", err
	}
	if s.HasNode(p.Node.ID) {
		return OutcomeDuplicate, "", nil
	}
	if !s.HasNode(p.SourceID) || !s.HasNode(p.TargetID) {
		return OutcomeRejected, "splice endpoints missing for " + p.EdgeID, nil
	}

	s.Edges = slices.DeleteFunc(s.Edges, func(e graph.Edge) bool { return e.ID == p.EdgeID })
	s.Nodes = append(s.Nodes, p.Node)
	for _, e := range p.ReplacementEdges() {
		if !s.HasEdge(e.ID) {
			s.Edges = append(s.Edges, e)
		}
	}
	return OutcomeApplied, "", nil
}

func deleteNode(s *graph.Snapshot, ev events.Event) (Outcome, error) {
	id, err := ev.IDPayload()
	if err != nil {
		return "", err
	}
	before := len(s.Nodes) + len(s.Edges)
	s.Nodes = slices.DeleteFunc(s.Nodes, func(n graph.Node) bool { return n.ID == id })
	s.Edges = slices.DeleteFunc(s.Edges, func(e graph.Edge) bool { return e.Touches(id) })
	if len(s.Nodes)+len(s.Edges) == before {
		return OutcomeDuplicate, nil
	}
	return OutcomeApplied, nil
}

func deleteEdge(s *graph.Snapshot, ev events.Event) (Outcome, error) {
	id, err := ev.IDPayload()
	if err != nil {
		return "", err
	}
	before := len(s.Edges)
	s.Edges = slices.DeleteFunc(s.Edges, func(e graph.Edge) bool { return e.ID == id })
	if len(s.Edges) == before {
		return OutcomeDuplicate, nil
	}
	return OutcomeApplied, nil
}
