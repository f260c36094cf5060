package surface

import "graphsync/domain/graph"

// Signal is a low-level notification raised by a surface. Structural
// signals follow every mutation, whatever its origin; interaction signals
// follow user gestures.
type Signal interface {
	signal()
}

// Listener receives signals synchronously, after the mutation took effect.
type Listener func(Signal)

// NodeAdded follows AddNode.
type NodeAdded struct {
	Node graph.Node
}

// EdgeAdded follows AddEdge and drag-to-connect.
type EdgeAdded struct {
	Edge    graph.Edge
	Preview bool
}

// NodeRemoved follows RemoveNode. Cascade lists the incident edges removed
// in the same step.
type NodeRemoved struct {
	Node    graph.Node
	Cascade []string
}

// EdgeRemoved follows RemoveEdge.
type EdgeRemoved struct {
	Edge    graph.Edge
	Preview bool
}

// NodeSpliced follows SpliceNodeIntoEdge.
type NodeSpliced struct {
	Removed graph.Edge
	Node    graph.Node
	Added   [2]graph.Edge
}

// ContextMenuSelect reports a context menu command picked on an element.
type ContextMenuSelect struct {
	Target  string
	Group   Group
	Command string
}

// DragConnectPreviewStart reports a drag hovering over a candidate target.
type DragConnectPreviewStart struct {
	Source string
	Target string
}

// DragConnectPreviewEnd reports the drag leaving the candidate target.
type DragConnectPreviewEnd struct {
	Source string
	Target string
}

// DragConnectComplete reports a finished drag; Edge is the preview edge the
// surface created for it.
type DragConnectComplete struct {
	Source string
	Target string
	Edge   graph.Edge
}

func (NodeAdded) signal()               {}
func (EdgeAdded) signal()               {}
func (NodeRemoved) signal()             {}
func (EdgeRemoved) signal()             {}
func (NodeSpliced) signal()             {}
func (ContextMenuSelect) signal()       {}
func (DragConnectPreviewStart) signal() {}
func (DragConnectPreviewEnd) signal()   {}
func (DragConnectComplete) signal()     {}
