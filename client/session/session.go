// Package session connects a surface to a graph on the server: it loads the
// snapshot, keeps the surface in sync with confirmations from other clients
// and forwards local confirmations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"graphsync/client/drawer"
	"graphsync/client/surface"
	"graphsync/client/syncclient"
	"graphsync/domain/events"
	"graphsync/domain/graph"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Remote is the server API a session needs. *syncclient.Client implements it.
type Remote interface {
	Emit(ctx context.Context, clientID, graphID string, ev events.Event) error
	GetGraph(ctx context.Context, graphID string) (graph.Snapshot, error)
	OnServerCreate(ctx context.Context, clientID, graphID, since string, cb syncclient.Callback) (*syncclient.Subscription, error)
}

var _ Remote = (*syncclient.Client)(nil)

type settings struct {
	clientID   string
	logger     *zap.Logger
	drawerOpts []drawer.Option
	emitTries  uint
	emitDelay  time.Duration
	loopBuffer int
}

// Option configures a session.
type Option func(*settings)

// WithClientID fixes the client id; a random one is used otherwise.
func WithClientID(id string) Option { return func(s *settings) { s.clientID = id } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.logger = l } }

// WithDrawerOptions passes options to the drawer. Its local observer is
// owned by the session.
func WithDrawerOptions(opts ...drawer.Option) Option {
	return func(s *settings) { s.drawerOpts = append(s.drawerOpts, opts...) }
}

// WithEmitRetry bounds retries of a retryable emit failure.
func WithEmitRetry(tries uint, delay time.Duration) Option {
	return func(s *settings) {
		s.emitTries = tries
		s.emitDelay = delay
	}
}

// Session owns a drawer on its own loop.
type Session struct {
	clientID string
	graphID  string
	surface  surface.Surface
	drawer   *drawer.Drawer
	loop     *drawer.Loop
	outbox   *outbox
	sub      *syncclient.Subscription
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open loads graphID, seeds surf with its snapshot and starts syncing.
// ctx bounds only the setup; the session runs until Close.
func Open(ctx context.Context, remote Remote, surf surface.Surface, graphID string, opts ...Option) (*Session, error) {
	cfg := settings{
		logger:     zap.NewNop(),
		emitTries:  5,
		emitDelay:  100 * time.Millisecond,
		loopBuffer: 256,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clientID == "" {
		cfg.clientID = uuid.NewString()
	}
	logger := cfg.logger.With(zap.String("graph_id", graphID), zap.String("client_id", cfg.clientID))

	snap, err := remote.GetGraph(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", graphID, err)
	}

	s := &Session{
		clientID: cfg.clientID,
		graphID:  graphID,
		surface:  surf,
		logger:   logger,
	}
	s.outbox = newOutbox(func(ctx context.Context, ev events.Event) error {
		return remote.Emit(ctx, s.clientID, s.graphID, ev)
	}, cfg.emitTries, cfg.emitDelay, logger)

	drawerOpts := append(cfg.drawerOpts,
		drawer.WithLocalObserver(s.forward),
		drawer.WithErrorHandler(func(err error) { logger.Warn("Drawer error", zap.Error(err)) }),
	)
	s.drawer = drawer.New(surf, drawerOpts...)
	if err := s.drawer.Initialize(); err != nil {
		return nil, err
	}
	s.seed(snap)

	s.loop = drawer.NewLoop(s.drawer, cfg.loopBuffer)
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		_ = s.loop.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		_ = s.outbox.run(runCtx)
	}()

	sub, err := remote.OnServerCreate(runCtx, s.clientID, graphID, snap.LastEventID, s.onConfirmed)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", graphID, err)
	}
	s.sub = sub
	logger.Info("Session opened",
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("edges", len(snap.Edges)),
		zap.String("last_event_id", snap.LastEventID),
	)
	return s, nil
}

// seed draws the snapshot without announcing it. Deleting a seeded element
// is still confirmed to the server.
func (s *Session) seed(snap graph.Snapshot) {
	for _, n := range snap.Nodes {
		if err := s.drawer.AddNode(n, drawer.Confirmed); err != nil {
			s.logger.Warn("Skipping snapshot node", zap.String("node_id", n.ID), zap.Error(err))
		}
	}
	for _, e := range snap.Edges {
		if err := s.drawer.AddEdge(e, drawer.Confirmed); err != nil {
			s.logger.Warn("Skipping snapshot edge", zap.String("edge_id", e.ID), zap.Error(err))
		}
	}
}

// forward runs on the loop for every local event.
func (s *Session) forward(ev events.Event) {
	if !ev.Type.IsPersistable() {
		return
	}
	s.outbox.push(ev)
}

func (s *Session) onConfirmed(ev events.Event) {
	s.loop.Post(func(d *drawer.Drawer) {
		if _, err := d.ApplyConfirmed(ev); err != nil {
			s.logger.Warn("Failed to apply confirmation", zap.String("event_id", ev.ID), zap.Error(err))
		}
	})
}

// ClientID is the id stamped on every event this session emits.
func (s *Session) ClientID() string { return s.clientID }

// GraphID is the graph the session is bound to.
func (s *Session) GraphID() string { return s.graphID }

// Surface is the surface the session draws on. Mutate it only through Do.
func (s *Session) Surface() surface.Surface { return s.surface }

// Do runs fn on the drawer loop and waits for it.
func (s *Session) Do(ctx context.Context, fn func(*drawer.Drawer) error) error {
	return s.loop.Do(ctx, fn)
}

// Flush waits until every local confirmation produced so far was sent.
// Work queued on the loop before Flush is included.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.loop.Do(ctx, func(*drawer.Drawer) error { return nil }); err != nil {
		if errors.Is(err, drawer.ErrLoopStopped) {
			return nil
		}
		return err
	}
	return s.outbox.flush(ctx)
}

// Pending is the number of local confirmations not yet sent.
func (s *Session) Pending() int { return s.outbox.pending() }

// Close stops syncing. Unsent local confirmations are dropped; call Flush
// first to keep them.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.sub != nil {
			s.sub.Close()
		}
		s.cancel()
		s.wg.Wait()
		s.drawer.Close()
		s.logger.Info("Session closed")
	})
}
