package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	frameSubscribed = "Subscribed"
	seenCapacity    = 4096
	frameBuffer     = 256
)

// Callback receives confirmed events in delivery order. It runs on the
// subscription goroutine and must not block for long.
type Callback func(events.Event)

// Subscription is a live feed of confirmations for one graph.
type Subscription struct {
	client   *Client
	graphID  string
	clientID string
	cb       Callback
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	cursor string
	err    error
	seen   *seenSet
}

// OnServerCreate subscribes to confirmations of graphID after since. The
// first connection is made before returning, so an unknown graph or an
// unreachable server surfaces here. Afterwards the subscription reconnects
// on its own and resumes from the last delivered event until Close is
// called or ctx ends.
func (c *Client) OnServerCreate(ctx context.Context, clientID, graphID, since string, cb Callback) (*Subscription, error) {
	if graphID == "" || clientID == "" {
		return nil, appErrors.NewValidation("graphId and clientId are required")
	}
	if cb == nil {
		return nil, appErrors.NewValidation("callback is required")
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		client:   c,
		graphID:  graphID,
		clientID: clientID,
		cb:       cb,
		logger:   c.logger.With(zap.String("graph_id", graphID), zap.String("client_id", clientID)),
		cancel:   cancel,
		done:     make(chan struct{}),
		cursor:   since,
		seen:     newSeenSet(seenCapacity),
	}

	conn, err := c.connect(subCtx, clientID, graphID)
	if err != nil {
		cancel()
		return nil, err
	}
	go s.run(subCtx, conn)
	return s, nil
}

// Close stops the subscription and waits for its goroutine.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed when the subscription stops.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription stopped, nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cursor is the id of the newest event seen so far.
func (s *Subscription) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// connect dials the websocket and waits for the server to confirm the
// registration. Events published after that frame reach this connection,
// so a catch-up read started afterwards leaves no gap.
func (c *Client) connect(ctx context.Context, clientID, graphID string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL(clientID, graphID), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil, appErrors.UnknownGraph(graphID)
			}
			return nil, statusError(resp)
		}
		return nil, appErrors.NewUnavailable("dial websocket", err)
	}

	deadline := time.Now().Add(c.dialer.HandshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return nil, appErrors.NewUnavailable("await subscription", err)
		}
		var frame struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &frame) == nil && frame.Type == frameSubscribed {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, nil
}

func (s *Subscription) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.client.minBackoff
	b.MaxInterval = s.client.maxBackoff

	for {
		err := s.serve(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("subscription interrupted", zap.Error(err))

		conn, err = s.reconnect(ctx, b)
		if err != nil {
			if ctx.Err() == nil {
				s.fail(err)
			}
			return
		}
		b.Reset()
	}
}

func (s *Subscription) reconnect(ctx context.Context, b *backoff.ExponentialBackOff) (*websocket.Conn, error) {
	for {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil, errors.New("reconnect attempts exhausted")
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		conn, err := s.client.connect(ctx, s.clientID, s.graphID)
		if err == nil {
			s.logger.Info("subscription resumed", zap.String("cursor", s.Cursor()))
			return conn, nil
		}
		if errors.Is(err, appErrors.ErrUnknownGraph) {
			return nil, err
		}
		s.logger.Debug("reconnect failed", zap.Duration("delay", delay), zap.Error(err))
	}
}

// serve pumps one connection: frames are buffered while the gap since the
// cursor is read over HTTP, then delivered live.
func (s *Subscription) serve(ctx context.Context, conn *websocket.Conn) error {
	frames := make(chan []byte, frameBuffer)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-stop:
				return
			}
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := s.catchUp(ctx); err != nil {
		return fmt.Errorf("catch up: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			// Frames read before the error are still delivered.
			s.drain(frames)
			return err
		case data := <-frames:
			s.deliverFrame(data)
		}
	}
}

func (s *Subscription) drain(frames <-chan []byte) {
	for {
		select {
		case data := <-frames:
			s.deliverFrame(data)
		default:
			return
		}
	}
}

// catchUp pages through the log until the server returns an empty page.
// A short page is not treated as the end, since the server may cap the
// page below the requested size.
func (s *Subscription) catchUp(ctx context.Context) error {
	since := s.Cursor()
	for {
		page, err := s.client.ListEvents(ctx, s.graphID, since, s.client.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		prev := since
		for _, ev := range page {
			s.deliver(ev)
			if ev.ID > since {
				since = ev.ID
			}
		}
		if since == prev {
			return nil
		}
	}
}

func (s *Subscription) deliverFrame(data []byte) {
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn("dropping undecodable frame", zap.Error(err))
		return
	}
	if ev.ID == "" {
		return
	}
	s.deliver(ev)
}

func (s *Subscription) deliver(ev events.Event) {
	if ev.GraphID != s.graphID {
		return
	}
	s.mu.Lock()
	if s.seen.has(ev.ID) {
		s.mu.Unlock()
		return
	}
	s.seen.add(ev.ID)
	if ev.ID > s.cursor {
		s.cursor = ev.ID
	}
	s.mu.Unlock()

	if !ev.Type.IsConfirmation() {
		return
	}
	if s.client.echo == EchoSkip && ev.ClientID == s.clientID {
		return
	}
	s.cb(ev)
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Error("subscription stopped", zap.Error(err))
}

// seenSet remembers the most recent ids in insertion order.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	next  int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, capacity), order: make([]string, 0, capacity)}
}

func (s *seenSet) has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) add(id string) {
	if len(s.order) < cap(s.order) {
		s.order = append(s.order, id)
	} else {
		delete(s.ids, s.order[s.next])
		s.order[s.next] = id
		s.next = (s.next + 1) % len(s.order)
	}
	s.ids[id] = struct{}{}
}
