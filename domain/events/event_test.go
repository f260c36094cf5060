package events

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"graphsync/domain/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_Classification(t *testing.T) {
	assert.True(t, TypeAddNodeSuccess.IsConfirmation())
	assert.True(t, TypeAddNodeToEdgeSuccess.IsPersistable())
	assert.False(t, TypeAddNode.IsPersistable())
	assert.False(t, TypeViewNode.IsPersistable())
	assert.True(t, TypeAddEdgePreview.IsEphemeral())
	assert.False(t, TypeAddEdgePreview.IsPersistable())
	assert.True(t, TypeInit.Known())
	assert.False(t, Type("Nope").Known())
}

func TestMessage_DataIsBase64OnTheWire(t *testing.T) {
	ev := MustNew(TypeAddNodeSuccess, graph.Node{ID: "n1", Kind: "faucet", Label: "Canilla #50"})
	ev.ID = "01HZX"
	ev.GraphID = "g1"
	ev.ClientID = "c1"

	msg, err := Encode(Topic, ev)
	require.NoError(t, err)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var wire struct {
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	decoded, err := base64.StdEncoding.DecodeString(wire.Data)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), `"id":"01HZX"`)

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	got, err := back.Decode()
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GraphID)
	node, err := got.NodePayload()
	require.NoError(t, err)
	assert.Equal(t, "Canilla #50", node.Label)
}

func TestEvent_Payloads(t *testing.T) {
	edge, err := MustNew(TypeAddEdgeSuccess, graph.Edge{Source: "A", Target: "B"}).EdgePayload()
	require.NoError(t, err)
	assert.Equal(t, "A/B", edge.ID)

	splice, err := MustNew(TypeAddNodeToEdge, graph.SplicePayload{SourceID: "A", TargetID: "B", Node: graph.Node{ID: "C"}}).SplicePayload()
	require.NoError(t, err)
	assert.Equal(t, "A/B", splice.EdgeID)

	id, err := MustNew(TypeDeleteNodeSuccess, "A").IDPayload()
	require.NoError(t, err)
	assert.Equal(t, "A", id)

	_, err = Event{Type: TypeDeleteNodeSuccess}.IDPayload()
	assert.Error(t, err)
	_, err = MustNew(TypeAddNodeSuccess, graph.Node{}).NodePayload()
	assert.Error(t, err)
}

func TestEvent_After(t *testing.T) {
	ev := Event{ID: "01B"}
	assert.True(t, ev.After(""))
	assert.True(t, ev.After("01A"))
	assert.False(t, ev.After("01B"))
	assert.False(t, ev.After("01C"))
}
