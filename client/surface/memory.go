package surface

import (
	"fmt"
	"slices"
	"sync"

	"graphsync/domain/graph"
)

type edgeEntry struct {
	edge    graph.Edge
	preview bool
}

// Memory is an in-process Surface. Gestures are injected through
// SelectCommand, DragPreview, DragPreviewEnd and DragConnect.
type Memory struct {
	registry *Registry

	mu        sync.RWMutex
	nodes     []graph.Node
	edges     []edgeEntry
	positions map[string]Point
	direction Direction
	drawMode  bool
	canLink   func(source, target string) bool

	listeners map[int]Listener
	nextID    int
}

var _ Surface = (*Memory)(nil)

// NewMemory creates an empty surface. A nil registry gets DefaultRegistry.
func NewMemory(registry *Registry) *Memory {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Memory{
		registry:  registry,
		positions: make(map[string]Point),
		direction: DirectionTB,
		listeners: make(map[int]Listener),
	}
}

// Listen registers l for every signal and returns a func that unregisters it.
func (m *Memory) Listen(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// emit delivers s outside the lock so listeners may call back into m.
func (m *Memory) emit(s Signal) {
	m.mu.RLock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, m.listeners[id])
	}
	m.mu.RUnlock()

	for _, l := range ls {
		l(s)
	}
}

// AddNode inserts node and emits NodeAdded. An existing id yields ErrExists.
func (m *Memory) AddNode(node graph.Node, _ Meta) error {
	if node.ID == "" {
		return fmt.Errorf("add node: empty id")
	}
	m.mu.Lock()
	if m.nodeIndex(node.ID) >= 0 {
		m.mu.Unlock()
		return fmt.Errorf("add node %s: %w", node.ID, ErrExists)
	}
	m.nodes = append(m.nodes, node)
	m.mu.Unlock()

	m.emit(NodeAdded{Node: node})
	return nil
}

// AddEdge inserts edge under its normalised id and emits EdgeAdded.
func (m *Memory) AddEdge(edge graph.Edge, meta Meta) error {
	edge = edge.Normalize()
	m.mu.Lock()
	if err := m.checkEdge(edge); err != nil {
		m.mu.Unlock()
		return err
	}
	m.edges = append(m.edges, edgeEntry{edge: edge, preview: meta.Preview})
	m.mu.Unlock()

	m.emit(EdgeAdded{Edge: edge, Preview: meta.Preview})
	return nil
}

// RemoveNode deletes the node and its incident edges in one step, emitting
// a single NodeRemoved that lists the cascaded edges.
func (m *Memory) RemoveNode(id string) error {
	m.mu.Lock()
	i := m.nodeIndex(id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("remove node %s: %w", id, ErrNotFound)
	}
	node := m.nodes[i]
	m.nodes = slices.Delete(m.nodes, i, i+1)
	var cascade []string
	m.edges = slices.DeleteFunc(m.edges, func(e edgeEntry) bool {
		if e.edge.Touches(id) {
			cascade = append(cascade, e.edge.ID)
			return true
		}
		return false
	})
	delete(m.positions, id)
	m.mu.Unlock()

	m.emit(NodeRemoved{Node: node, Cascade: cascade})
	return nil
}

// RemoveEdge deletes the edge and emits EdgeRemoved.
func (m *Memory) RemoveEdge(id string) error {
	m.mu.Lock()
	i := m.edgeIndex(id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("remove edge %s: %w", id, ErrNotFound)
	}
	entry := m.edges[i]
	m.edges = slices.Delete(m.edges, i, i+1)
	m.mu.Unlock()

	m.emit(EdgeRemoved{Edge: entry.edge, Preview: entry.preview})
	return nil
}

// SpliceNodeIntoEdge replaces edgeID with node and the two edges through it.
func (m *Memory) SpliceNodeIntoEdge(node graph.Node, edgeID string) error {
	m.mu.Lock()
	i := m.edgeIndex(edgeID)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("splice into %s: %w", edgeID, ErrNotFound)
	}
	if m.nodeIndex(node.ID) >= 0 {
		m.mu.Unlock()
		return fmt.Errorf("splice node %s: %w", node.ID, ErrExists)
	}
	removed := m.edges[i].edge
	added := graph.SplicePayload{SourceID: removed.Source, TargetID: removed.Target, EdgeID: removed.ID, Node: node}.ReplacementEdges()
	for _, e := range added {
		if m.edgeIndex(e.ID) >= 0 {
			m.mu.Unlock()
			return fmt.Errorf("splice edge %s: %w", e.ID, ErrExists)
		}
	}
	m.edges = slices.Delete(m.edges, i, i+1)
	m.nodes = append(m.nodes, node)
	m.edges = append(m.edges, edgeEntry{edge: added[0]}, edgeEntry{edge: added[1]})
	m.mu.Unlock()

	m.emit(NodeSpliced{Removed: removed, Node: node, Added: added})
	return nil
}

// MarkFinal turns a preview edge into a regular one without emitting.
func (m *Memory) MarkFinal(edgeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.edgeIndex(edgeID)
	if i < 0 {
		return fmt.Errorf("mark final %s: %w", edgeID, ErrNotFound)
	}
	m.edges[i].preview = false
	return nil
}

// RunLayout places every node with the registry's default layout.
func (m *Memory) RunLayout(direction Direction) error {
	if !direction.Valid() {
		return fmt.Errorf("unknown layout direction %q", direction)
	}
	layout, ok := m.registry.Layout()
	if !ok {
		return fmt.Errorf("no layout registered")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.nodes))
	for _, n := range m.nodes {
		ids = append(ids, n.ID)
	}
	links := make([][2]string, 0, len(m.edges))
	for _, e := range m.edges {
		links = append(links, [2]string{e.edge.Source, e.edge.Target})
	}
	m.positions = layout.Place(ids, links, direction)
	m.direction = direction
	return nil
}

// Position returns the position computed by the last layout run.
func (m *Memory) Position(id string) (Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	return p, ok
}

// Direction returns the direction of the last layout run.
func (m *Memory) Direction() Direction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.direction
}

// HasNode reports whether id is on the surface.
func (m *Memory) HasNode(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodeIndex(id) >= 0
}

// HasEdge reports whether the edge id is on the surface, previews included.
func (m *Memory) HasEdge(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.edgeIndex(id) >= 0
}

// Node returns the node with id.
func (m *Memory) Node(id string) (graph.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.nodeIndex(id); i >= 0 {
		return m.nodes[i], true
	}
	return graph.Node{}, false
}

// Edge returns the edge with id.
func (m *Memory) Edge(id string) (graph.Edge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.edgeIndex(id); i >= 0 {
		return m.edges[i].edge, true
	}
	return graph.Edge{}, false
}

// IsPreview reports whether edgeID is a drag preview.
func (m *Memory) IsPreview(edgeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.edgeIndex(edgeID)
	return i >= 0 && m.edges[i].preview
}

// Nodes returns a copy of the nodes in insertion order.
func (m *Memory) Nodes() []graph.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.nodes)
}

// Edges returns the final edges; preview edges are left out.
func (m *Memory) Edges() []graph.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]graph.Edge, 0, len(m.edges))
	for _, e := range m.edges {
		if !e.preview {
			out = append(out, e.edge)
		}
	}
	return out
}

// SetDrawMode turns drag-to-connect gestures on or off.
func (m *Memory) SetDrawMode(enabled bool) {
	m.mu.Lock()
	m.drawMode = enabled
	m.mu.Unlock()
}

// DrawMode reports whether drag-to-connect is on.
func (m *Memory) DrawMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drawMode
}

// SetConnectPredicate sets the check DragConnect runs before creating an edge.
func (m *Memory) SetConnectPredicate(fn func(source, target string) bool) {
	m.mu.Lock()
	m.canLink = fn
	m.mu.Unlock()
}

// SelectCommand simulates picking command from the context menu of target.
func (m *Memory) SelectCommand(target, command string) error {
	var group Group
	switch {
	case m.HasNode(target):
		group = GroupNode
	case m.HasEdge(target):
		group = GroupEdge
	default:
		return fmt.Errorf("select %s: %w", target, ErrNotFound)
	}
	if !m.registry.HasCommand(group, command) {
		return fmt.Errorf("no %q command on %s menu", command, group)
	}
	m.emit(ContextMenuSelect{Target: target, Group: group, Command: command})
	return nil
}

// DragPreview simulates a drag from source hovering over target. It
// reports whether the gesture was accepted.
func (m *Memory) DragPreview(source, target string) bool {
	if !m.dragEnabled() || !m.HasNode(source) || !m.HasNode(target) {
		return false
	}
	m.emit(DragConnectPreviewStart{Source: source, Target: target})
	return true
}

// DragPreviewEnd simulates the drag leaving target.
func (m *Memory) DragPreviewEnd(source, target string) bool {
	if !m.dragEnabled() {
		return false
	}
	m.emit(DragConnectPreviewEnd{Source: source, Target: target})
	return true
}

// DragConnect simulates dropping a drag from source onto target. The
// connect predicate is consulted before the preview edge is created.
func (m *Memory) DragConnect(source, target string) (graph.Edge, error) {
	if !m.dragEnabled() {
		return graph.Edge{}, fmt.Errorf("drag to connect: draw mode is off")
	}
	m.mu.RLock()
	canLink := m.canLink
	m.mu.RUnlock()
	if canLink != nil && !canLink(source, target) {
		return graph.Edge{}, fmt.Errorf("connect %s to %s: %w", source, target, ErrRejected)
	}

	edge := graph.NewEdge(source, target)
	if err := m.AddEdge(edge, Meta{Preview: true}); err != nil {
		return graph.Edge{}, err
	}
	m.emit(DragConnectComplete{Source: source, Target: target, Edge: edge})
	return edge, nil
}

func (m *Memory) dragEnabled() bool {
	return m.registry.EdgeHandles() && m.DrawMode()
}

func (m *Memory) checkEdge(edge graph.Edge) error {
	if edge.Source == edge.Target {
		return fmt.Errorf("add edge %s: %w: self loop", edge.ID, ErrRejected)
	}
	if m.nodeIndex(edge.Source) < 0 || m.nodeIndex(edge.Target) < 0 {
		return fmt.Errorf("add edge %s: %w", edge.ID, ErrDangling)
	}
	if m.edgeIndex(edge.ID) >= 0 {
		return fmt.Errorf("add edge %s: %w", edge.ID, ErrExists)
	}
	return nil
}

func (m *Memory) nodeIndex(id string) int {
	return slices.IndexFunc(m.nodes, func(n graph.Node) bool { return n.ID == id })
}

func (m *Memory) edgeIndex(id string) int {
	return slices.IndexFunc(m.edges, func(e edgeEntry) bool { return e.edge.ID == id })
}
