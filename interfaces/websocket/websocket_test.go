package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"graphsync/application/queries"
	"graphsync/domain/events"
	"graphsync/domain/graph"
	"graphsync/infrastructure/persistence/memory"
	appErrors "graphsync/pkg/errors"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	hub    *Hub
	server *httptest.Server
	cancel context.CancelFunc
}

func newFixture(t *testing.T, cfg ServerConfig) *fixture {
	t.Helper()
	snapshots := memory.NewSnapshotStore()
	require.NoError(t, snapshots.Create(context.Background(), graph.NewSnapshot("g1")))
	graphs := queries.NewService(snapshots, memory.NewEventLog(), zap.NewNop())

	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(NewServer(hub, graphs, cfg, zap.NewNop()).HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &fixture{hub: hub, server: srv, cancel: cancel}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_DeliversToGraphSubscribers(t *testing.T) {
	f := newFixture(t, DefaultServerConfig())
	a := f.dial(t, "graphId=g1&clientId=a")
	b := f.dial(t, "graphId=g1&clientId=b")

	for _, conn := range []*websocket.Conn{a, b} {
		hello := readEvent(t, conn)
		assert.Equal(t, events.Type(FrameSubscribed), hello.Type)
		assert.Empty(t, hello.ID)
	}
	assert.Equal(t, 2, f.hub.ConnectionCount("g1"))

	ev := events.MustNew(events.TypeDeleteEdgeSuccess, "A/B")
	ev.ID, ev.GraphID, ev.ClientID = "01HZX", "g1", "a"
	require.NoError(t, f.hub.Notify(context.Background(), ev))

	// the origin receives its own event too
	for _, conn := range []*websocket.Conn{a, b} {
		got := readEvent(t, conn)
		assert.Equal(t, "01HZX", got.ID)
		assert.Equal(t, "a", got.ClientID)
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	f := newFixture(t, DefaultServerConfig())
	conn := f.dial(t, "graphId=g1&clientId=a")
	readEvent(t, conn)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return f.hub.ConnectionCount("g1") == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_NotifyAfterStop(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// fill the queue so the stopped branch is the only one ready
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- delivery{}
	}
	err := hub.Notify(context.Background(), events.Event{ID: "x", GraphID: "g1"})

	assert.True(t, appErrors.IsUnavailable(err))
}

func TestServer_RejectsBadRequests(t *testing.T) {
	f := newFixture(t, DefaultServerConfig())

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "missing graph id", query: "clientId=a", status: http.StatusBadRequest},
		{name: "missing client id", query: "graphId=g1", status: http.StatusBadRequest},
		{name: "unknown graph", query: "graphId=nope&clientId=a", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(f.server.URL + "?" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestServer_CheckOrigin(t *testing.T) {
	s := NewServer(NewHub(nil, zap.NewNop()), nil, ServerConfig{AllowedOrigins: []string{"https://app.example"}}, zap.NewNop())

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://app.example")
	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example")

	assert.True(t, s.checkOrigin(allowed))
	assert.False(t, s.checkOrigin(denied))
	assert.True(t, s.checkOrigin(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}
