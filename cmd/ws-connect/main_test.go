package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"graphsync/application/queries"
	"graphsync/domain/graph"
	"graphsync/infrastructure/persistence/memory"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func request(params map[string]string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		QueryStringParameters: params,
		RequestContext:        events.APIGatewayWebsocketProxyRequestContext{ConnectionID: "conn-1"},
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	require.NoError(t, snapshots.Create(ctx, graph.NewSnapshot("g1")))
	connections := memory.NewConnectionStore()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &connector{
		graphs:      queries.NewService(snapshots, memory.NewEventLog(), zap.NewNop()),
		connections: connections,
		now:         func() time.Time { return at },
		logger:      zap.NewNop(),
	}

	for _, tc := range []struct {
		name   string
		params map[string]string
		status int
	}{
		{"missing client", map[string]string{"graphId": "g1"}, http.StatusBadRequest},
		{"unknown graph", map[string]string{"graphId": "nope", "clientId": "c1"}, http.StatusNotFound},
		{"ok", map[string]string{"graphId": "g1", "clientId": "c1"}, http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := c.handle(ctx, request(tc.params))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}

	conns, err := connections.ListByGraph(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "conn-1", conns[0].ID)
	assert.Equal(t, "c1", conns[0].ClientID)
	assert.Equal(t, at, conns[0].ConnectedAt)
}
