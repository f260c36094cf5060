// Package syncclient talks to the graphsync server: it submits events,
// reads snapshots and subscribes to confirmations.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"graphsync/domain/events"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EchoPolicy decides what happens to confirmations this client originated.
// The server delivers them to every subscriber, origin included.
type EchoPolicy int

const (
	// EchoSkip drops them; the optimistic local mutation already happened.
	EchoSkip EchoPolicy = iota
	// EchoApply delivers them and relies on idempotent application.
	EchoApply
)

const apiPrefix = "/api/v1"

// Client is safe for concurrent use.
type Client struct {
	base       *url.URL
	http       *http.Client
	dialer     *websocket.Dialer
	echo       EchoPolicy
	pageSize   int
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// MaxPageSize is the largest event page the server returns.
const MaxPageSize = 1000

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithEchoPolicy sets how events originated by the subscriber are treated.
func WithEchoPolicy(p EchoPolicy) Option { return func(c *Client) { c.echo = p } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// WithPageSize sets the catch-up page size, clamped to [1, MaxPageSize].
func WithPageSize(n int) Option { return func(c *Client) { c.pageSize = min(max(n, 1), MaxPageSize) } }

// WithBackoff bounds the reconnect delay.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.minBackoff = minDelay
		c.maxBackoff = maxDelay
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:       base,
		http:       &http.Client{Timeout: 30 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		echo:       EchoSkip,
		pageSize:   500,
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type submitRequest struct {
	GraphID  string          `json:"graphId"`
	ClientID string          `json:"clientId"`
	Type     events.Type     `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type submitResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type eventsResponse struct {
	Events      []events.Event `json:"events"`
	LastEventID string         `json:"lastEventId"`
}

type problem struct {
	Title     string `json:"title"`
	Detail    string `json:"detail"`
	Retryable bool   `json:"retryable"`
}

// Emit submits ev and returns once the server accepted it, which means an
// id was assigned and the event was published, not that it was persisted.
func (c *Client) Emit(ctx context.Context, clientID, graphID string, ev events.Event) error {
	_, err := c.Submit(ctx, clientID, graphID, ev)
	return err
}

// Submit is Emit returning the assigned event id.
func (c *Client) Submit(ctx context.Context, clientID, graphID string, ev events.Event) (string, error) {
	body := submitRequest{GraphID: graphID, ClientID: clientID, Type: ev.Type, Payload: ev.Payload}
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/events", nil, body, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetGraph fetches the canonical snapshot.
func (c *Client) GetGraph(ctx context.Context, graphID string) (graph.Snapshot, error) {
	var snap graph.Snapshot
	err := c.do(ctx, http.MethodGet, apiPrefix+"/graphs/"+url.PathEscape(graphID), nil, nil, http.StatusOK, &snap)
	if appErrors.IsNotFound(err) {
		return graph.Snapshot{}, appErrors.UnknownGraph(graphID)
	}
	return snap, err
}

// CreateGraph creates an empty graph. An empty id lets the server pick one.
func (c *Client) CreateGraph(ctx context.Context, graphID string) (graph.Snapshot, error) {
	var snap graph.Snapshot
	err := c.do(ctx, http.MethodPost, apiPrefix+"/graphs", nil, map[string]string{"id": graphID}, http.StatusCreated, &snap)
	return snap, err
}

// ListEvents reads one page of the event log after since.
func (c *Client) ListEvents(ctx context.Context, graphID, since string, limit int) ([]events.Event, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp eventsResponse
	err := c.do(ctx, http.MethodGet, apiPrefix+"/graphs/"+url.PathEscape(graphID)+"/events", q, nil, http.StatusOK, &resp)
	if appErrors.IsNotFound(err) {
		return nil, appErrors.UnknownGraph(graphID)
	}
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any, want int, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return appErrors.NewInternal("encode request", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return appErrors.NewInternal("build request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return appErrors.NewUnavailable(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErrors.NewInternal("decode response", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var p problem
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &p); err != nil || p.Detail == "" {
		p.Detail = strings.TrimSpace(string(raw))
	}
	msg := fmt.Sprintf("server returned %d: %s", resp.StatusCode, p.Detail)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return appErrors.NewValidation(msg)
	case http.StatusNotFound:
		return appErrors.NewNotFound(msg)
	case http.StatusConflict:
		return appErrors.NewConflict(msg)
	case http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		return appErrors.NewUnavailable(msg, nil)
	default:
		return appErrors.NewInternal(msg, nil)
	}
}

func (c *Client) wsURL(clientID, graphID string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + apiPrefix + "/ws"
	u.RawQuery = url.Values{"graphId": {graphID}, "clientId": {clientID}}.Encode()
	return u.String()
}
