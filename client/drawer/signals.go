package drawer

import (
	"graphsync/client/surface"
	"graphsync/domain/events"
	"graphsync/domain/graph"
)

// WithErrorHandler receives failures of operations started from gestures.
func WithErrorHandler(fn func(error)) Option {
	return func(d *Drawer) { d.onError = fn }
}

func (d *Drawer) onSignal(s surface.Signal) {
	switch sig := s.(type) {
	case surface.NodeAdded:
		if d.policies[sig.Node.ID].EmitCreate {
			d.emit(mustEvent(events.TypeAddNodeSuccess, sig.Node))
		}

	case surface.EdgeAdded:
		if !sig.Preview && d.policies[sig.Edge.ID].EmitCreate {
			d.emit(mustEvent(events.TypeAddEdgeSuccess, sig.Edge))
		}

	case surface.NodeRemoved:
		p := d.policies[sig.Node.ID]
		delete(d.policies, sig.Node.ID)
		for _, id := range sig.Cascade {
			delete(d.policies, id)
		}
		// incident edges go with the node; no separate confirmation
		if p.EmitDelete {
			d.emit(mustEvent(events.TypeDeleteNodeSuccess, sig.Node.ID))
		}

	case surface.EdgeRemoved:
		p := d.policies[sig.Edge.ID]
		delete(d.policies, sig.Edge.ID)
		if !sig.Preview && p.EmitDelete {
			d.emit(mustEvent(events.TypeDeleteEdgeSuccess, sig.Edge.ID))
		}

	case surface.NodeSpliced:
		delete(d.policies, sig.Removed.ID)
		if d.policies[sig.Node.ID].EmitCreate {
			d.emit(mustEvent(events.TypeAddNodeToEdgeSuccess, graph.SplicePayload{
				SourceID: sig.Removed.Source,
				TargetID: sig.Removed.Target,
				EdgeID:   sig.Removed.ID,
				Node:     sig.Node,
			}))
		}

	case surface.ContextMenuSelect:
		d.fail(d.onMenu(sig))

	case surface.DragConnectPreviewStart:
		d.emit(mustEvent(events.TypeAddEdgePreview, graph.NewEdge(sig.Source, sig.Target)))

	case surface.DragConnectPreviewEnd:
		d.emit(mustEvent(events.TypeRemoveEdgePreview, graph.NewEdge(sig.Source, sig.Target)))

	case surface.DragConnectComplete:
		d.fail(d.onConnect(sig))
	}
}

func (d *Drawer) onMenu(sig surface.ContextMenuSelect) error {
	switch sig.Group {
	case surface.GroupNode:
		switch sig.Command {
		case "info":
			d.emit(mustEvent(events.TypeViewNode, sig.Target))
		case "edit":
			d.emit(mustEvent(events.TypeUpdateNode, sig.Target))
		case "delete":
			return d.RemoveNodeFromGraph(sig.Target, true)
		}

	case surface.GroupEdge:
		switch sig.Command {
		case "add":
			edge, ok := d.surface.Edge(sig.Target)
			if !ok {
				return surface.ErrNotFound
			}
			node := graph.Node{ID: d.newID(), Kind: d.newKind, Label: d.newLabel}
			return d.AddNodeToEdge(edge.Source, edge.Target, edge.ID, node)
		case "delete":
			return d.RemoveEdgeFromGraph(sig.Target, true)
		}
	}
	return nil
}

func (d *Drawer) onConnect(sig surface.DragConnectComplete) error {
	if err := d.surface.MarkFinal(sig.Edge.ID); err != nil {
		return err
	}
	d.policies[sig.Edge.ID] = policyOf(Local)
	d.emit(mustEvent(events.TypeAddEdge, sig.Edge))
	d.emit(mustEvent(events.TypeAddEdgeSuccess, sig.Edge))
	return nil
}

func (d *Drawer) fail(err error) {
	if err != nil && d.onError != nil {
		d.onError(err)
	}
}
