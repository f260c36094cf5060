// Package storetest holds behavioural tests shared by every store adapter.
package storetest

import (
	"context"
	"testing"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SnapshotStore runs the snapshot store contract against a fresh store.
func SnapshotStore(t *testing.T, newStore func(t *testing.T) ports.SnapshotStore) {
	ctx := context.Background()

	t.Run("get unknown graph", func(t *testing.T) {
		_, err := newStore(t).Get(ctx, "missing")
		assert.ErrorIs(t, err, appErrors.ErrUnknownGraph)
	})

	t.Run("create then get", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, graph.NewSnapshot("g1")))

		snap, err := store.Get(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "g1", snap.ID)
		assert.Empty(t, snap.Nodes)
		assert.NotNil(t, snap.Edges)

		err = store.Create(ctx, graph.NewSnapshot("g1"))
		assert.True(t, appErrors.IsConflict(err))
	})

	t.Run("save is compare and swap", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, graph.NewSnapshot("g1")))
		snap, err := store.Get(ctx, "g1")
		require.NoError(t, err)

		first := snap
		first.Nodes = append(first.Nodes, graph.Node{ID: "n1", Kind: "faucet", Label: "Canilla #50"})
		first.LastEventID = "01A"
		saved, err := store.Save(ctx, first)
		require.NoError(t, err)
		assert.Greater(t, saved.Version, snap.Version)

		stale := snap
		stale.Nodes = append(stale.Nodes, graph.Node{ID: "n2"})
		_, err = store.Save(ctx, stale)
		assert.True(t, appErrors.IsConflict(err))

		got, err := store.Get(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, []string{"n1"}, got.NodeIDs())
		assert.Equal(t, "Canilla #50", got.Nodes[0].Label)
		assert.Equal(t, "01A", got.LastEventID)
		assert.Equal(t, saved.Version, got.Version)
	})

	t.Run("save unknown graph", func(t *testing.T) {
		_, err := newStore(t).Save(ctx, graph.NewSnapshot("ghost"))
		assert.ErrorIs(t, err, appErrors.ErrUnknownGraph)
	})
}

// EventLog runs the event log contract against a fresh log.
func EventLog(t *testing.T, newLog func(t *testing.T) ports.EventLog) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mk := func(id, graphID string) events.Event {
		ev := events.MustNew(events.TypeAddNodeSuccess, graph.Node{ID: "n-" + id})
		ev.ID = id
		ev.GraphID = graphID
		ev.ClientID = "c1"
		ev.CreatedAt = created
		return ev
	}

	t.Run("first write wins", func(t *testing.T) {
		log := newLog(t)
		first := mk("01A", "g1")
		stored, ok, err := log.Append(ctx, first)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, first.ID, stored.ID)

		rewrite := mk("01A", "g1")
		rewrite.ClientID = "someone-else"
		stored, ok, err = log.Append(ctx, rewrite)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "c1", stored.ClientID)
	})

	t.Run("list since in id order", func(t *testing.T) {
		log := newLog(t)
		for _, id := range []string{"01C", "01A", "01B"} {
			_, _, err := log.Append(ctx, mk(id, "g1"))
			require.NoError(t, err)
		}
		_, _, err := log.Append(ctx, mk("01D", "g2"))
		require.NoError(t, err)

		all, err := log.ListSince(ctx, "g1", "", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"01A", "01B", "01C"}, ids(all))
		assert.True(t, all[0].CreatedAt.Equal(created))
		assert.JSONEq(t, `{"id":"n-01A","kind":"","label":""}`, string(all[0].Payload))

		after, err := log.ListSince(ctx, "g1", "01A", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"01B", "01C"}, ids(after))

		limited, err := log.ListSince(ctx, "g1", "", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"01A", "01B"}, ids(limited))

		none, err := log.ListSince(ctx, "g3", "", 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// ConnectionStore runs the connection store contract.
func ConnectionStore(t *testing.T, newStore func(t *testing.T) ports.ConnectionStore) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, ports.Connection{ID: "a", GraphID: "g1", ClientID: "c1", ConnectedAt: now}))
	require.NoError(t, store.Save(ctx, ports.Connection{ID: "b", GraphID: "g1", ClientID: "c2", ConnectedAt: now}))
	require.NoError(t, store.Save(ctx, ports.Connection{ID: "c", GraphID: "g2", ClientID: "c3", ConnectedAt: now}))

	conns, err := store.ListByGraph(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))
	conns, err = store.ListByGraph(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "b", conns[0].ID)
}

func ids(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.ID)
	}
	return out
}
