package reducer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"graphsync/application/ports/mocks"
	"graphsync/domain/events"
	"graphsync/domain/graph"
	"graphsync/domain/projection"
	"graphsync/infrastructure/persistence/memory"
	appErrors "graphsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func confirmNode(t *testing.T, id, graphID, nodeID string) events.Event {
	t.Helper()
	ev, err := events.New(events.TypeAddNodeSuccess, graph.Node{ID: nodeID, Kind: "faucet", Label: "Canilla #50"})
	require.NoError(t, err)
	ev.ID = id
	ev.GraphID = graphID
	ev.ClientID = "c1"
	return ev
}

func message(t *testing.T, ev events.Event) events.Message {
	t.Helper()
	msg, err := events.Encode(events.Topic, ev)
	require.NoError(t, err)
	return msg
}

func newStore(t *testing.T, graphID string) *memory.SnapshotStore {
	t.Helper()
	store := memory.NewSnapshotStore()
	require.NoError(t, store.Create(context.Background(), graph.NewSnapshot(graphID)))
	return store
}

func TestSnapshotReducer_AppliesConfirmation(t *testing.T) {
	store := newStore(t, "g1")
	r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())

	res, err := r.Apply(context.Background(), confirmNode(t, "01HZX", "g1", "n1"))
	require.NoError(t, err)

	assert.Equal(t, projection.OutcomeApplied, res.Outcome)
	snap, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, snap.NodeIDs())
	assert.Equal(t, "01HZX", snap.LastEventID)
}

func TestSnapshotReducer_RedeliveryIsNoOp(t *testing.T) {
	store := newStore(t, "g1")
	r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())
	ev := confirmNode(t, "01HZX", "g1", "n1")

	_, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	before, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)

	res, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	after, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, projection.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, before, after)
}

func TestSnapshotReducer_IgnoresIntents(t *testing.T) {
	store := new(mocks.MockSnapshotStore)
	r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())
	ev := confirmNode(t, "01HZX", "g1", "n1")
	ev.Type = events.TypeAddNode

	res, err := r.Apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Equal(t, projection.OutcomeUnhandled, res.Outcome)
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestSnapshotReducer_UnknownGraph(t *testing.T) {
	store := memory.NewSnapshotStore()
	r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())

	_, err := r.Apply(context.Background(), confirmNode(t, "01HZX", "missing", "n1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnknownGraph))

	// not redelivered
	assert.NoError(t, r.Handle(context.Background(), message(t, confirmNode(t, "01HZX", "missing", "n1"))))
}

func TestSnapshotReducer_RetriesOnConflict(t *testing.T) {
	store := new(mocks.MockSnapshotStore)
	prior := graph.NewSnapshot("g1")
	prior.Version = 1
	store.On("Get", mock.Anything, "g1").Return(prior, nil).Twice()
	store.On("Save", mock.Anything, mock.Anything).Return(graph.Snapshot{}, appErrors.NewConflict("version moved")).Once()
	store.On("Save", mock.Anything, mock.MatchedBy(func(s graph.Snapshot) bool {
		return s.HasNode("n1")
	})).Return(graph.Snapshot{ID: "g1", Version: 2}, nil).Once()
	r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())

	res, err := r.Apply(context.Background(), confirmNode(t, "01HZX", "g1", "n1"))

	require.NoError(t, err)
	assert.Equal(t, projection.OutcomeApplied, res.Outcome)
	assert.Equal(t, int64(2), res.Snapshot.Version)
	store.AssertExpectations(t)
}

func TestSnapshotReducer_ConflictExhaustionIsRetryable(t *testing.T) {
	store := new(mocks.MockSnapshotStore)
	store.On("Get", mock.Anything, "g1").Return(graph.NewSnapshot("g1"), nil)
	store.On("Save", mock.Anything, mock.Anything).Return(graph.Snapshot{}, appErrors.NewConflict("version moved"))
	r := NewSnapshotReducer(store, 2, time.Millisecond, nil, zap.NewNop())

	msg := message(t, confirmNode(t, "01HZX", "g1", "n1"))
	err := r.Handle(context.Background(), msg)

	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))
	store.AssertNumberOfCalls(t, "Save", 2)
}

func TestSnapshotReducer_ConcurrentWritersKeepCheckpoint(t *testing.T) {
	store := newStore(t, "g1")
	r := NewSnapshotReducer(store, 50, time.Microsecond, nil, zap.NewNop())
	ids := []string{"01A", "01B", "01C", "01D", "01E", "01F", "01G", "01H"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied []string
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := r.Apply(context.Background(), confirmNode(t, id, "g1", "n"+id))
			assert.NoError(t, err)
			if res.Outcome == projection.OutcomeApplied {
				mu.Lock()
				applied = append(applied, "n"+id)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	snap, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)
	// Every write that won landed, and nothing at or below a checkpoint did.
	assert.ElementsMatch(t, applied, snap.NodeIDs())
	assert.True(t, snap.HasNode("n01H"))
	assert.Equal(t, "01H", snap.LastEventID)
}

func TestSnapshotReducer_OrderedWritersConverge(t *testing.T) {
	store := newStore(t, "g1")
	r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())
	ids := []string{"01A", "01B", "01C", "01D"}

	for _, id := range ids {
		res, err := r.Apply(context.Background(), confirmNode(t, id, "g1", "n"+id))
		require.NoError(t, err)
		assert.Equal(t, projection.OutcomeApplied, res.Outcome)
	}

	snap, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n01A", "n01B", "n01C", "n01D"}, snap.NodeIDs())
	assert.Equal(t, "01D", snap.LastEventID)
}

func TestSnapshotReducer_RedeliveryDoesNotResurrect(t *testing.T) {
	deleteEvent := func(t *testing.T, id, nodeID string) events.Event {
		ev, err := events.New(events.TypeDeleteNodeSuccess, nodeID)
		require.NoError(t, err)
		ev.ID, ev.GraphID = id, "g1"
		return ev
	}
	spliceEvent := func(t *testing.T, id string) events.Event {
		ev, err := events.New(events.TypeAddNodeToEdgeSuccess, graph.SplicePayload{
			SourceID: "A", TargetID: "B", EdgeID: "A/B", Node: graph.Node{ID: "C"},
		})
		require.NoError(t, err)
		ev.ID, ev.GraphID = id, "g1"
		return ev
	}

	tests := []struct {
		name    string
		apply   func(t *testing.T) events.Event
		removed string
	}{
		{name: "add node", apply: func(t *testing.T) events.Event { return confirmNode(t, "01C", "g1", "n1") }, removed: "n1"},
		{name: "splice", apply: func(t *testing.T) events.Event { return spliceEvent(t, "01C") }, removed: "C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewSnapshotStore()
			seed := graph.NewSnapshot("g1")
			seed.Nodes = []graph.Node{{ID: "A"}, {ID: "B"}}
			seed.Edges = []graph.Edge{graph.NewEdge("A", "B")}
			require.NoError(t, store.Create(ctx, seed))
			r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())
			ev := tt.apply(t)

			require.NoError(t, r.Handle(ctx, message(t, ev)))
			require.NoError(t, r.Handle(ctx, message(t, deleteEvent(t, "01D", tt.removed))))
			res, err := r.Apply(ctx, ev)

			require.NoError(t, err)
			assert.Equal(t, projection.OutcomeDuplicate, res.Outcome)
			snap, err := store.Get(ctx, "g1")
			require.NoError(t, err)
			assert.False(t, snap.HasNode(tt.removed))
			assert.Empty(t, snap.DanglingEdges())
			assert.Equal(t, "01D", snap.LastEventID)
		})
	}
}

func TestSnapshotReducer_RejectedEventIsAcknowledged(t *testing.T) {
	store := newStore(t, "g1")
	r := NewSnapshotReducer(store, 3, time.Millisecond, nil, zap.NewNop())
	ev, err := events.New(events.TypeAddEdgeSuccess, graph.NewEdge("a", "b"))
	require.NoError(t, err)
	ev.ID, ev.GraphID = "01HZX", "g1"

	res, err := r.Apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Equal(t, projection.OutcomeRejected, res.Outcome)
	assert.NotEmpty(t, res.Reason)
}

func TestSnapshotReducer_UndecodableMessageDropped(t *testing.T) {
	r := NewSnapshotReducer(new(mocks.MockSnapshotStore), 3, time.Millisecond, nil, zap.NewNop())

	err := r.Handle(context.Background(), events.Message{Topic: events.Topic, Data: []byte("{")})

	assert.NoError(t, err)
}

func TestLogWriter_AppendsAndNotifies(t *testing.T) {
	log := memory.NewEventLog()
	notifier := new(mocks.MockNotifier)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(ev events.Event) bool {
		return ev.ID == "01HZX" && ev.CreatedAt.Equal(fixed)
	})).Return(nil).Twice()
	w := NewLogWriter(log, notifier, func() time.Time { return fixed }, nil, zap.NewNop())
	msg := message(t, confirmNode(t, "01HZX", "g1", "n1"))

	require.NoError(t, w.Handle(context.Background(), msg))
	require.NoError(t, w.Handle(context.Background(), msg))

	stored, err := log.ListSince(context.Background(), "g1", "", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "c1", stored[0].ClientID)
	notifier.AssertExpectations(t)
}

func TestLogWriter_FirstWriteWins(t *testing.T) {
	log := memory.NewEventLog()
	w := NewLogWriter(log, nil, nil, nil, zap.NewNop())
	first := confirmNode(t, "01HZX", "g1", "n1")
	second := confirmNode(t, "01HZX", "g1", "n2")

	require.NoError(t, w.HandleEvent(context.Background(), first))
	require.NoError(t, w.HandleEvent(context.Background(), second))

	stored, err := log.ListSince(context.Background(), "g1", "", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	node, err := stored[0].NodePayload()
	require.NoError(t, err)
	assert.Equal(t, "n1", node.ID)
}

func TestLogWriter_NotifyFailureRequestsRedelivery(t *testing.T) {
	notifier := new(mocks.MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(appErrors.NewUnavailable("fan-out failed", errors.New("hub closed")))
	w := NewLogWriter(memory.NewEventLog(), notifier, nil, nil, zap.NewNop())

	err := w.Handle(context.Background(), message(t, confirmNode(t, "01HZX", "g1", "n1")))

	assert.True(t, appErrors.IsUnavailable(err))
}

func TestLogWriter_AppendFailure(t *testing.T) {
	log := new(mocks.MockEventLog)
	log.On("Append", mock.Anything, mock.Anything).Return(events.Event{}, false, appErrors.NewUnavailable("throttled", nil))
	w := NewLogWriter(log, nil, nil, nil, zap.NewNop())

	err := w.Handle(context.Background(), message(t, confirmNode(t, "01HZX", "g1", "n1")))

	assert.True(t, appErrors.IsRetryable(err))
}

func TestLogWriter_MissingIDDropped(t *testing.T) {
	log := new(mocks.MockEventLog)
	w := NewLogWriter(log, nil, nil, nil, zap.NewNop())
	ev := confirmNode(t, "", "g1", "n1")

	assert.NoError(t, w.Handle(context.Background(), message(t, ev)))
	log.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}
