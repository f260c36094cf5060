// Package websocket streams logged events to the clients subscribed to a
// graph. The Hub is the standalone server's fan-out transport.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"
	"graphsync/pkg/observability"

	"go.uber.org/zap"
)

// FrameSubscribed is the type of the control frame sent once a connection
// is registered. Control frames carry no event id.
const FrameSubscribed = "Subscribed"

// Hub tracks connections per graph and broadcasts events to them.
type Hub struct {
	graphs map[string]map[*Client]struct{} // graphID -> clients
	mu     sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan delivery

	done    chan struct{}
	metrics *observability.Collector
	logger  *zap.Logger
}

type delivery struct {
	graphID string
	eventID string
	data    []byte
}

// NewHub creates a hub. Run must be called for it to make progress.
func NewHub(metrics *observability.Collector, logger *zap.Logger) *Hub {
	return &Hub{
		graphs:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan delivery, 1000),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return nil

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case d := <-h.broadcast:
			h.broadcastToGraph(d)
		}
	}
}

// Notify queues ev for every connection subscribed to its graph.
func (h *Hub) Notify(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return appErrors.NewInternal("failed to encode event "+ev.ID, err)
	}

	select {
	case h.broadcast <- delivery{graphID: ev.GraphID, eventID: ev.ID, data: data}:
		return nil
	case <-h.done:
		return appErrors.NewUnavailable("websocket hub stopped", nil)
	case <-ctx.Done():
		return appErrors.NewUnavailable("broadcast queue full", ctx.Err())
	}
}

// ConnectionCount returns the number of connections subscribed to graphID.
func (h *Hub) ConnectionCount(graphID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.graphs[graphID])
}

func (h *Hub) enqueueRegister(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) enqueueUnregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.graphs[client.graphID] == nil {
		h.graphs[client.graphID] = make(map[*Client]struct{})
	}
	h.graphs[client.graphID][client] = struct{}{}
	count := len(h.graphs[client.graphID])
	h.mu.Unlock()

	h.metrics.SubscriberConnected()
	client.sendSubscribed()

	h.logger.Info("Client registered",
		zap.String("graphID", client.graphID),
		zap.String("clientID", client.clientID),
		zap.String("connectionID", client.id),
		zap.Int("graphConnections", count),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.graphs[client.graphID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.graphs, client.graphID)
	}
	h.metrics.SubscriberDisconnected()

	h.logger.Info("Client unregistered",
		zap.String("graphID", client.graphID),
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", len(clients)),
	)
}

func (h *Hub) broadcastToGraph(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.graphs[d.graphID]
	if len(clients) == 0 {
		h.logger.Debug("No subscribers for graph", zap.String("graphID", d.graphID))
		return
	}

	sent, dropped := 0, 0
	for client := range clients {
		select {
		case client.send <- d.data:
			sent++
			h.metrics.RecordDelivery("sent")
		default:
			// Slow consumer; it resumes from the log after reconnecting.
			dropped++
			h.metrics.RecordDelivery("dropped")
			h.logger.Warn("Closing slow client",
				zap.String("graphID", client.graphID),
				zap.String("connectionID", client.id),
			)
			go func(c *Client) {
				h.enqueueUnregister(c)
				c.conn.Close()
			}(client)
		}
	}

	h.logger.Debug("Broadcast complete",
		zap.String("graphID", d.graphID),
		zap.String("eventID", d.eventID),
		zap.Int("sent", sent),
		zap.Int("dropped", dropped),
	)
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for graphID, clients := range h.graphs {
		for client := range clients {
			close(client.send)
			client.conn.Close()
			h.metrics.SubscriberDisconnected()
			total++
		}
		delete(h.graphs, graphID)
	}
	h.logger.Info("All connections closed", zap.Int("closed", total))
}

func subscribedFrame(graphID, clientID string) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"graphId":%q,"clientId":%q}`, FrameSubscribed, graphID, clientID))
}
