package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeID(t *testing.T) {
	assert.Equal(t, "A/B", EdgeID("A", "B"))

	src, tgt, err := ParseEdgeID("A/B")
	require.NoError(t, err)
	assert.Equal(t, "A", src)
	assert.Equal(t, "B", tgt)

	_, _, err = ParseEdgeID("AB")
	assert.Error(t, err)
}

func TestSnapshot_CloneDoesNotAlias(t *testing.T) {
	s := NewSnapshot("g")
	s.Nodes = append(s.Nodes, Node{ID: "A"})

	c := s.Clone()
	c.Nodes[0].Label = "changed"

	assert.Equal(t, "", s.Nodes[0].Label)
}

func TestSnapshot_DanglingEdges(t *testing.T) {
	s := NewSnapshot("g")
	s.Nodes = []Node{{ID: "A"}}
	s.Edges = []Edge{NewEdge("A", "B")}

	assert.Equal(t, []Edge{NewEdge("A", "B")}, s.DanglingEdges())
}

func TestSplicePayload_ReplacementEdges(t *testing.T) {
	p := SplicePayload{SourceID: "A", TargetID: "B", EdgeID: "A/B", Node: Node{ID: "C"}}
	edges := p.ReplacementEdges()
	assert.Equal(t, "A/C", edges[0].ID)
	assert.Equal(t, "C/B", edges[1].ID)
}
