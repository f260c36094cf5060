// Package surface defines the local graph surface the drawer renders into,
// plus an in-memory implementation with a layered layout.
package surface

import (
	"errors"

	"graphsync/domain/graph"
)

// Direction orients the layout: TB is vertical, LR horizontal.
type Direction string

const (
	DirectionTB Direction = "TB"
	DirectionLR Direction = "LR"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionTB || d == DirectionLR
}

// Group selects which elements a context menu applies to.
type Group string

const (
	GroupNode Group = "node"
	GroupEdge Group = "edge"
)

var (
	ErrExists   = errors.New("element already exists")
	ErrNotFound = errors.New("element not found")
	ErrDangling = errors.New("edge endpoint does not exist")
	ErrRejected = errors.New("connection rejected")
)

// Meta is presentation state carried with an element.
type Meta struct {
	// Preview marks a drag-to-connect edge that is not final yet.
	Preview bool
}

// Surface is a mutable rendering of one graph. Every mutation takes effect
// before the call returns and is followed by a structural signal.
type Surface interface {
	AddNode(node graph.Node, meta Meta) error
	AddEdge(edge graph.Edge, meta Meta) error
	RemoveNode(id string) error
	RemoveEdge(id string) error
	// SpliceNodeIntoEdge removes the edge and adds node plus one edge per
	// original endpoint, as a single step.
	SpliceNodeIntoEdge(node graph.Node, edgeID string) error
	// MarkFinal turns a preview edge into a regular one.
	MarkFinal(edgeID string) error
	RunLayout(direction Direction) error

	HasNode(id string) bool
	HasEdge(id string) bool
	Node(id string) (graph.Node, bool)
	Edge(id string) (graph.Edge, bool)
	IsPreview(edgeID string) bool
	Nodes() []graph.Node
	Edges() []graph.Edge

	SetDrawMode(enabled bool)
	DrawMode() bool
	SetConnectPredicate(fn func(source, target string) bool)

	// Listen registers l and returns a function that removes it.
	Listen(l Listener) (cancel func())
}
