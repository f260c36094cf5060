package drawer

import (
	"fmt"

	"graphsync/client/surface"
	"graphsync/domain/events"
	"graphsync/domain/graph"
)

// ApplyConfirmed applies a confirmation from the canonical log with all
// emission suppressed. It is idempotent: a confirmation already reflected on
// the surface changes nothing. It reports whether the surface changed.
// Events other than confirmations are ignored.
func (d *Drawer) ApplyConfirmed(ev events.Event) (bool, error) {
	if err := d.ready(); err != nil {
		return false, err
	}
	if !ev.Type.IsConfirmation() {
		return false, nil
	}

	d.applying = true
	changed, err := d.applyConfirmed(ev)
	d.applying = false
	if err != nil {
		return false, fmt.Errorf("apply %s %s: %w", ev.Type, ev.ID, err)
	}
	if changed && d.server != nil {
		d.server(ev)
	}
	return changed, nil
}

func (d *Drawer) applyConfirmed(ev events.Event) (bool, error) {
	switch ev.Type {
	case events.TypeAddNodeSuccess:
		node, err := ev.NodePayload()
		if err != nil {
			return false, err
		}
		return d.confirmNode(node)

	case events.TypeAddEdgeSuccess:
		edge, err := ev.EdgePayload()
		if err != nil {
			return false, err
		}
		return d.confirmEdge(edge.Normalize())

	case events.TypeAddNodeToEdgeSuccess:
		p, err := ev.SplicePayload()
		if err != nil {
			return false, err
		}
		return d.confirmSplice(p)

	case events.TypeDeleteNodeSuccess:
		id, err := ev.IDPayload()
		if err != nil {
			return false, err
		}
		if !d.surface.HasNode(id) {
			return false, nil
		}
		return true, d.surface.RemoveNode(id)

	case events.TypeDeleteEdgeSuccess:
		id, err := ev.IDPayload()
		if err != nil {
			return false, err
		}
		if !d.surface.HasEdge(id) {
			return false, nil
		}
		return true, d.surface.RemoveEdge(id)
	}
	return false, nil
}

func (d *Drawer) confirmNode(node graph.Node) (bool, error) {
	if d.surface.HasNode(node.ID) {
		return false, nil
	}
	d.policies[node.ID] = policyOf(Confirmed)
	if err := d.surface.AddNode(node, surface.Meta{}); err != nil {
		delete(d.policies, node.ID)
		return false, err
	}
	return true, nil
}

func (d *Drawer) confirmEdge(edge graph.Edge) (bool, error) {
	if d.surface.HasEdge(edge.ID) {
		// a local drag may still hold it as a preview
		if d.surface.IsPreview(edge.ID) {
			return true, d.surface.MarkFinal(edge.ID)
		}
		return false, nil
	}
	if edge.Source == edge.Target || !d.surface.HasNode(edge.Source) || !d.surface.HasNode(edge.Target) {
		return false, fmt.Errorf("%w: %s", ErrCannotConnect, edge.ID)
	}
	d.policies[edge.ID] = policyOf(Confirmed)
	if err := d.surface.AddEdge(edge, surface.Meta{}); err != nil {
		delete(d.policies, edge.ID)
		return false, err
	}
	return true, nil
}

func (d *Drawer) confirmSplice(p graph.SplicePayload) (bool, error) {
	replacements := p.ReplacementEdges()
	d.remember(policyOf(Confirmed), p.Node.ID, replacements)

	if d.surface.HasEdge(p.EdgeID) && !d.surface.HasNode(p.Node.ID) {
		return true, d.surface.SpliceNodeIntoEdge(p.Node, p.EdgeID)
	}

	// Partially applied or already applied: converge on the same result.
	changed := false
	if !d.surface.HasNode(p.Node.ID) {
		if err := d.surface.AddNode(p.Node, surface.Meta{}); err != nil {
			return changed, err
		}
		changed = true
	}
	if d.surface.HasEdge(p.EdgeID) {
		if err := d.surface.RemoveEdge(p.EdgeID); err != nil {
			return changed, err
		}
		changed = true
	}
	for _, e := range replacements {
		if d.surface.HasEdge(e.ID) || !d.surface.HasNode(e.Source) || !d.surface.HasNode(e.Target) {
			continue
		}
		if err := d.surface.AddEdge(e, surface.Meta{}); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

func policyOf(o Options) Policy {
	return Policy{EmitCreate: o.EmitCreate, EmitDelete: o.EmitDelete}
}
