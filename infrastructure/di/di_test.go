package di_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"graphsync/domain/events"
	"graphsync/domain/graph"
	"graphsync/infrastructure/config"
	"graphsync/infrastructure/di"
	"graphsync/infrastructure/di/ditest"
	"graphsync/infrastructure/messaging"
	"graphsync/infrastructure/persistence/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submit(t *testing.T, baseURL string, body map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(baseURL+"/api/v1/events", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.ID
}

func getSnapshot(t *testing.T, baseURL, graphID string) graph.Snapshot {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/v1/graphs/" + graphID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap graph.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestAddNodeRoundTrip(t *testing.T) {
	srv := ditest.Start(t, ditest.Config())

	resp, err := http.Post(srv.URL+"/api/v1/graphs", "application/json", bytes.NewBufferString(`{"id":"g1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	id := submit(t, srv.URL, map[string]any{
		"graphId":  "g1",
		"clientId": "c1",
		"type":     events.TypeAddNodeSuccess,
		"payload":  graph.Node{ID: "n1", Kind: "faucet", Label: "Canilla #50"},
	})
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return getSnapshot(t, srv.URL, "g1").LastEventID == id
	}, 2*time.Second, 10*time.Millisecond)

	snap := getSnapshot(t, srv.URL, "g1")
	assert.Equal(t, []graph.Node{{ID: "n1", Kind: "faucet", Label: "Canilla #50"}}, snap.Nodes)

	logged, err := srv.Container.EventLog.ListSince(context.Background(), "g1", "", 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, id, logged[0].ID)
	assert.Equal(t, "c1", logged[0].ClientID)
	assert.False(t, logged[0].CreatedAt.IsZero())
}

func TestIntentsAreLoggedButNotReduced(t *testing.T) {
	srv := ditest.Start(t, ditest.Config())
	_, err := srv.Container.Queries.CreateGraph(context.Background(), "g1")
	require.NoError(t, err)

	id := submit(t, srv.URL, map[string]any{
		"graphId":  "g1",
		"clientId": "c1",
		"type":     events.TypeAddNode,
		"payload":  graph.Node{ID: "n1"},
	})

	require.Eventually(t, func() bool {
		logged, err := srv.Container.EventLog.ListSince(context.Background(), "g1", "", 0)
		return err == nil && len(logged) == 1 && logged[0].ID == id
	}, 2*time.Second, 10*time.Millisecond)

	snap := getSnapshot(t, srv.URL, "g1")
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.LastEventID)
}

func TestSQLiteDriver(t *testing.T) {
	cfg := ditest.Config()
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "graphsync.db")
	srv := ditest.Start(t, cfg)

	_, ok := srv.Container.Snapshots.(*sqlite.SnapshotStore)
	assert.True(t, ok)

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitializeContainer(t *testing.T) {
	cfg := ditest.Config()
	c, cleanup, err := di.InitializeContainer(context.Background(), &cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.True(t, c.LocalMessaging())
	assert.Nil(t, c.Metrics)
	_, ok := c.Publisher.(*messaging.BreakerPublisher)
	assert.True(t, ok)
	require.NoError(t, c.WireConsumers())
}

func TestInitializeContainer_EventBridgeSkipsLocalConsumers(t *testing.T) {
	cfg := ditest.Config()
	cfg.Messaging.Driver = config.MessagingEventBridge
	c, cleanup, err := di.InitializeContainer(context.Background(), &cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, c.LocalMessaging())
	require.NoError(t, c.WireConsumers())
}

func TestInitializeContainer_BadSQLitePath(t *testing.T) {
	cfg := ditest.Config()
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "missing", "dir", "graphsync.db")
	_, _, err := di.InitializeContainer(context.Background(), &cfg)
	assert.Error(t, err)
}
