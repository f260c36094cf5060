package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"graphsync/client/drawer"
	"graphsync/client/surface"
	"graphsync/client/syncclient"
	"graphsync/domain/events"
	"graphsync/domain/graph"
	"graphsync/infrastructure/di/ditest"
	appErrors "graphsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 3 * time.Second

type env struct {
	srv    *ditest.Server
	client *syncclient.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := ditest.Start(t, ditest.Config())
	c, err := syncclient.New(srv.URL, syncclient.WithBackoff(time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	_, err = c.CreateGraph(context.Background(), "g1")
	require.NoError(t, err)
	return &env{srv: srv, client: c}
}

func (e *env) open(t *testing.T, clientID string) (*Session, *surface.Memory) {
	t.Helper()
	surf := surface.NewMemory(nil)
	s, err := Open(context.Background(), e.client, surf, "g1",
		WithClientID(clientID),
		WithEmitRetry(3, time.Millisecond),
		WithDrawerOptions(drawer.WithIDGenerator(func() string { return clientID + "-gen" })),
	)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, surf
}

func nodeIDs(nodes []graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func (e *env) logged(t *testing.T) []events.Event {
	t.Helper()
	evs, err := e.client.ListEvents(context.Background(), "g1", "", 0)
	require.NoError(t, err)
	return evs
}

func TestOpen_UnknownGraph(t *testing.T) {
	e := newEnv(t)
	_, err := Open(context.Background(), e.client, surface.NewMemory(nil), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrUnknownGraph))
}

func TestOpen_SeedsSnapshotSilently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, ev := range []events.Event{
		events.MustNew(events.TypeAddNodeSuccess, graph.Node{ID: "A"}),
		events.MustNew(events.TypeAddNodeSuccess, graph.Node{ID: "B"}),
		events.MustNew(events.TypeAddEdgeSuccess, graph.NewEdge("A", "B")),
	} {
		require.NoError(t, e.client.Emit(ctx, "seed", "g1", ev))
	}
	require.Eventually(t, func() bool {
		snap, err := e.client.GetGraph(ctx, "g1")
		return err == nil && len(snap.Edges) == 1
	}, waitFor, 10*time.Millisecond)

	s, surf := e.open(t, "c1")
	assert.ElementsMatch(t, []string{"A", "B"}, nodeIDs(surf.Nodes()))
	assert.True(t, surf.HasEdge("A/B"))

	require.NoError(t, s.Flush(ctx))
	assert.Len(t, e.logged(t), 3)

	// seeded elements still confirm their deletion
	require.NoError(t, s.Do(ctx, func(d *drawer.Drawer) error { return d.RemoveNodeFromGraph("A", false) }))
	require.NoError(t, s.Flush(ctx))
	require.Eventually(t, func() bool {
		snap, err := e.client.GetGraph(ctx, "g1")
		return err == nil && !snap.HasNode("A") && len(snap.Edges) == 0
	}, waitFor, 10*time.Millisecond)
}

func TestLocalChangesReachServerInOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s, _ := e.open(t, "c1")

	ids := []string{"n1", "n2", "n3", "n4", "n5"}
	for _, id := range ids {
		require.NoError(t, s.Do(ctx, func(d *drawer.Drawer) error {
			return d.AddNode(graph.Node{ID: id, Kind: "faucet"}, drawer.Local)
		}))
	}
	require.NoError(t, s.Flush(ctx))
	assert.Zero(t, s.Pending())

	require.Eventually(t, func() bool { return len(e.logged(t)) == len(ids) }, waitFor, 10*time.Millisecond)
	var got []string
	for _, ev := range e.logged(t) {
		assert.Equal(t, events.TypeAddNodeSuccess, ev.Type)
		assert.Equal(t, "c1", ev.ClientID)
		node, err := ev.NodePayload()
		require.NoError(t, err)
		got = append(got, node.ID)
	}
	assert.Equal(t, ids, got)
}

func TestTwoSessionsConverge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, surfA := e.open(t, "a")
	b, surfB := e.open(t, "b")

	require.NoError(t, a.Do(ctx, func(d *drawer.Drawer) error {
		if err := d.AddNode(graph.Node{ID: "A"}, drawer.Local); err != nil {
			return err
		}
		return d.AddNode(graph.Node{ID: "B"}, drawer.Local)
	}))
	require.NoError(t, a.Flush(ctx))
	require.Eventually(t, func() bool { return surfB.HasNode("A") && surfB.HasNode("B") }, waitFor, 10*time.Millisecond)

	require.NoError(t, b.Do(ctx, func(d *drawer.Drawer) error {
		return d.AddEdge(graph.NewEdge("A", "B"), drawer.Local)
	}))
	require.NoError(t, b.Flush(ctx))
	require.Eventually(t, func() bool { return surfA.HasEdge("A/B") }, waitFor, 10*time.Millisecond)

	require.NoError(t, a.Do(ctx, func(d *drawer.Drawer) error {
		return d.AddNodeToEdge("A", "B", "A/B", graph.Node{ID: "C"})
	}))
	require.NoError(t, a.Flush(ctx))
	require.Eventually(t, func() bool {
		return surfB.HasNode("C") && surfB.HasEdge("A/C") && surfB.HasEdge("C/B") && !surfB.HasEdge("A/B")
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, b.Do(ctx, func(d *drawer.Drawer) error { return d.RemoveNodeFromGraph("A", true) }))
	require.NoError(t, b.Flush(ctx))
	require.Eventually(t, func() bool { return !surfA.HasNode("A") }, waitFor, 10*time.Millisecond)

	assert.ElementsMatch(t, nodeIDs(surfA.Nodes()), nodeIDs(surfB.Nodes()))
	require.Eventually(t, func() bool {
		snap, err := e.client.GetGraph(ctx, "g1")
		return err == nil && slices.Equal([]string{"B", "C"}, sortedIDs(snap.Nodes))
	}, waitFor, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"B", "C"}, nodeIDs(surfA.Nodes()))
}

func sortedIDs(nodes []graph.Node) []string {
	ids := nodeIDs(nodes)
	slices.Sort(ids)
	return ids
}

func TestRemoteConfirmationsAreNotEchoedBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.open(t, "a")
	b, surfB := e.open(t, "b")

	require.NoError(t, a.Do(ctx, func(d *drawer.Drawer) error {
		return d.AddNode(graph.Node{ID: "A"}, drawer.Local)
	}))
	require.NoError(t, a.Flush(ctx))
	require.Eventually(t, func() bool { return surfB.HasNode("A") }, waitFor, 10*time.Millisecond)

	require.NoError(t, b.Flush(ctx))
	assert.Len(t, e.logged(t), 1)
}

func TestClose_IsIdempotent(t *testing.T) {
	e := newEnv(t)
	s, _ := e.open(t, "c1")
	s.Close()
	s.Close()
	err := s.Do(context.Background(), func(*drawer.Drawer) error { return nil })
	assert.ErrorIs(t, err, drawer.ErrLoopStopped)
	assert.NoError(t, s.Flush(context.Background()))
}

type emitLog struct {
	mu    sync.Mutex
	types []events.Type
	fail  map[int]error
	calls int
}

func (l *emitLog) emit(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if err, ok := l.fail[l.calls]; ok {
		return err
	}
	l.types = append(l.types, ev.Type)
	return nil
}

func (l *emitLog) snapshot() ([]events.Type, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Type(nil), l.types...), l.calls
}

func runOutbox(t *testing.T, emit emitFunc) *outbox {
	t.Helper()
	o := newOutbox(emit, 3, time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return o
}

func TestOutbox_RetriesRetryableFailures(t *testing.T) {
	log := &emitLog{fail: map[int]error{1: appErrors.NewUnavailable("bus down", nil)}}
	o := runOutbox(t, log.emit)

	o.push(events.Event{Type: events.TypeAddNodeSuccess})
	o.push(events.Event{Type: events.TypeDeleteNodeSuccess})
	require.NoError(t, o.flush(context.Background()))

	types, calls := log.snapshot()
	assert.Equal(t, []events.Type{events.TypeAddNodeSuccess, events.TypeDeleteNodeSuccess}, types)
	assert.Equal(t, 3, calls)
	assert.Zero(t, o.pending())
}

func TestOutbox_DropsPermanentFailures(t *testing.T) {
	log := &emitLog{fail: map[int]error{1: appErrors.NewValidation("bad payload")}}
	o := runOutbox(t, log.emit)

	o.push(events.Event{Type: events.TypeAddNodeSuccess})
	o.push(events.Event{Type: events.TypeAddEdgeSuccess})
	require.NoError(t, o.flush(context.Background()))

	types, calls := log.snapshot()
	assert.Equal(t, []events.Type{events.TypeAddEdgeSuccess}, types)
	assert.Equal(t, 2, calls)
}

func TestOutbox_OneInFlight(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	o := runOutbox(t, func(context.Context, events.Event) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		o.push(events.Event{Type: events.TypeAddNodeSuccess})
	}
	require.NoError(t, o.flush(context.Background()))
	assert.Equal(t, 1, maxInFlight)
}

func TestOutbox_FlushHonoursContext(t *testing.T) {
	block := make(chan struct{})
	o := runOutbox(t, func(ctx context.Context, _ events.Event) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	defer close(block)

	o.push(events.Event{Type: events.TypeAddNodeSuccess})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.flush(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, o.pending())
}
