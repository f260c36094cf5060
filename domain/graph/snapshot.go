package graph

import "slices"

// Snapshot is the canonical, server-owned state of one graph.
type Snapshot struct {
	ID          string `json:"id"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
	LastEventID string `json:"lastEventId"`

	// Version is the store's optimistic concurrency counter.
	Version int64 `json:"-"`
}

// NewSnapshot creates an empty graph.
func NewSnapshot(id string) Snapshot {
	return Snapshot{ID: id, Nodes: []Node{}, Edges: []Edge{}}
}

// Clone returns a deep copy so reducers never alias the stored slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Nodes = slices.Clone(s.Nodes)
	out.Edges = slices.Clone(s.Edges)
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return out
}

// HasNode reports whether a node with id is live.
func (s Snapshot) HasNode(id NodeID) bool {
	return slices.ContainsFunc(s.Nodes, func(n Node) bool { return n.ID == id })
}

// HasEdge reports whether an edge with id is live.
func (s Snapshot) HasEdge(id string) bool {
	return slices.ContainsFunc(s.Edges, func(e Edge) bool { return e.ID == id })
}

// FindEdge returns the edge with id.
func (s Snapshot) FindEdge(id string) (Edge, bool) {
	i := slices.IndexFunc(s.Edges, func(e Edge) bool { return e.ID == id })
	if i < 0 {
		return Edge{}, false
	}
	return s.Edges[i], true
}

// NodeIDs lists live node ids in order.
func (s Snapshot) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// DanglingEdges returns edges whose endpoints are not live nodes.
func (s Snapshot) DanglingEdges() []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if !s.HasNode(e.Source) || !s.HasNode(e.Target) {
			out = append(out, e)
		}
	}
	return out
}
