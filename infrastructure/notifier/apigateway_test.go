package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"
	"graphsync/infrastructure/persistence/memory"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePoster struct {
	mu    sync.Mutex
	sent  map[string][]byte
	fails map[string]error
}

func (f *fakePoster) PostToConnection(_ context.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.ConnectionId)
	if err, ok := f.fails[id]; ok {
		return nil, err
	}
	f.sent[id] = in.Data
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func seedConnections(t *testing.T, ids ...string) *memory.ConnectionStore {
	store := memory.NewConnectionStore()
	for _, id := range ids {
		require.NoError(t, store.Save(context.Background(), ports.Connection{ID: id, GraphID: "g1", ConnectedAt: time.Now()}))
	}
	return store
}

func TestAPIGateway_NotifyDeletesGoneConnections(t *testing.T) {
	// Arrange
	store := seedConnections(t, "alive", "stale")
	poster := &fakePoster{
		sent:  map[string][]byte{},
		fails: map[string]error{"stale": &apigwTypes.GoneException{}},
	}
	n := NewAPIGateway(poster, store, nil, zap.NewNop())
	ev := events.MustNew(events.TypeDeleteNodeSuccess, "n1")
	ev.ID, ev.GraphID = "01A", "g1"

	// Act
	err := n.Notify(context.Background(), ev)

	// Assert
	require.NoError(t, err)
	var got events.Event
	require.NoError(t, json.Unmarshal(poster.sent["alive"], &got))
	assert.Equal(t, "01A", got.ID)

	remaining, err := store.ListByGraph(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "alive", remaining[0].ID)
}

func TestAPIGateway_NotifyReportsOtherFailures(t *testing.T) {
	store := seedConnections(t, "broken")
	poster := &fakePoster{sent: map[string][]byte{}, fails: map[string]error{"broken": errors.New("throttled")}}
	n := NewAPIGateway(poster, store, nil, zap.NewNop())
	ev := events.Event{ID: "01A", GraphID: "g1", Type: events.TypeDeleteNodeSuccess}

	assert.Error(t, n.Notify(context.Background(), ev))
}

func TestAPIGateway_NoSubscribers(t *testing.T) {
	n := NewAPIGateway(&fakePoster{}, memory.NewConnectionStore(), nil, zap.NewNop())

	assert.NoError(t, n.Notify(context.Background(), events.Event{ID: "01A", GraphID: "g1"}))
}
