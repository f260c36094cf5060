// Package graph holds the pipeline diagram model shared by the server reducer
// and the client drawer: nodes, edges and the canonical graph snapshot.
package graph

import (
	"fmt"
	"strings"
)

// NodeID identifies a node. Node ids are generated by clients.
type NodeID = string

// Node is a single element of the pipeline diagram.
type Node struct {
	ID    NodeID `json:"id" dynamodbav:"id" validate:"required,max=128"`
	Kind  string `json:"kind" dynamodbav:"kind" validate:"max=64"`
	Label string `json:"label" dynamodbav:"label" validate:"max=256"`
	Image string `json:"image,omitempty" dynamodbav:"image,omitempty"`
}

// Edge connects two nodes. Its id is always "{source}/{target}".
type Edge struct {
	ID     string `json:"id" dynamodbav:"id"`
	Source NodeID `json:"source" dynamodbav:"source" validate:"required,max=128"`
	Target NodeID `json:"target" dynamodbav:"target" validate:"required,max=128"`
}

// EdgeID derives the deterministic edge id for a source/target pair.
func EdgeID(source, target NodeID) string {
	return source + "/" + target
}

// NewEdge builds an edge with its derived id.
func NewEdge(source, target NodeID) Edge {
	return Edge{ID: EdgeID(source, target), Source: source, Target: target}
}

// ParseEdgeID splits a derived edge id back into its endpoints.
func ParseEdgeID(id string) (source, target NodeID, err error) {
	source, target, ok := strings.Cut(id, "/")
	if !ok || source == "" || target == "" {
		return "", "", fmt.Errorf("malformed edge id %q", id)
	}
	return source, target, nil
}

// Normalize fills in the derived id.
func (e Edge) Normalize() Edge {
	e.ID = EdgeID(e.Source, e.Target)
	return e
}

// Touches reports whether the edge is incident to the given node.
func (e Edge) Touches(id NodeID) bool {
	return e.Source == id || e.Target == id
}

// SplicePayload describes replacing edge EdgeID (SourceID -> TargetID) with
// Node and the two edges SourceID -> Node.ID and Node.ID -> TargetID.
type SplicePayload struct {
	SourceID NodeID `json:"sourceId" validate:"required"`
	TargetID NodeID `json:"targetId" validate:"required"`
	EdgeID   string `json:"edgeId" validate:"required"`
	Node     Node   `json:"node" validate:"required"`
}

// ReplacementEdges returns the two edges that take the place of the spliced edge.
func (p SplicePayload) ReplacementEdges() [2]Edge {
	return [2]Edge{NewEdge(p.SourceID, p.Node.ID), NewEdge(p.Node.ID, p.TargetID)}
}
