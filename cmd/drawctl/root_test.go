package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"graphsync/domain/graph"
	"graphsync/infrastructure/di/ditest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server, "--client-id", "cli"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDrawctl_EditAndInspect(t *testing.T) {
	srv := ditest.Start(t, ditest.Config())

	out, err := run(t, srv.URL, "graph", "create", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "g1"`)

	for _, args := range [][]string{
		{"add-node", "g1", "A", "--label", "Source"},
		{"add-node", "g1", "B"},
		{"add-edge", "g1", "A", "B"},
		{"splice", "g1", "A", "B", "C"},
	} {
		_, err := run(t, srv.URL, args...)
		require.NoError(t, err, args)
	}

	var snap graph.Snapshot
	require.Eventually(t, func() bool {
		out, err := run(t, srv.URL, "graph", "get", "g1")
		if err != nil || json.Unmarshal([]byte(out), &snap) != nil {
			return false
		}
		return len(snap.Nodes) == 3 && len(snap.Edges) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.True(t, snap.HasEdge("A/C"))
	assert.True(t, snap.HasEdge("C/B"))

	out, err = run(t, srv.URL, "events", "g1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)

	out, err = run(t, srv.URL, "layout", "g1", "--direction", "TB")
	require.NoError(t, err)
	var placed []struct {
		ID string  `json:"id"`
		Y  float64 `json:"y"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &placed))
	require.Len(t, placed, 3)
	assert.Equal(t, []string{"A", "C", "B"}, []string{placed[0].ID, placed[1].ID, placed[2].ID})

	_, err = run(t, srv.URL, "delete", "node", "g1", "C")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		out, err := run(t, srv.URL, "graph", "get", "g1")
		return err == nil && json.Unmarshal([]byte(out), &snap) == nil && len(snap.Nodes) == 2 && len(snap.Edges) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDrawctl_Errors(t *testing.T) {
	srv := ditest.Start(t, ditest.Config())

	_, err := run(t, srv.URL, "graph", "get", "missing")
	assert.Error(t, err)

	_, err = run(t, srv.URL, "add-edge", "g1", "A", "A")
	assert.ErrorContains(t, err, "itself")

	_, err = run(t, srv.URL, "delete", "edge", "g1", "not-an-edge")
	assert.Error(t, err)

	_, err = run(t, srv.URL, "layout", "g1", "--direction", "XY")
	assert.ErrorContains(t, err, "direction")

	_, err = run(t, srv.URL, "add-node", "g1")
	assert.Error(t, err)
}
