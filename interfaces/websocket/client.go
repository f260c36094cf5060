package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
)

// Client is one subscriber connection. Subscribers only receive; anything
// they send besides control frames is discarded.
type Client struct {
	id       string
	graphID  string
	clientID string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte

	pingPeriod time.Duration
	pongWait   time.Duration
	logger     *zap.Logger
}

func newClient(graphID, clientID string, hub *Hub, conn *websocket.Conn, cfg ServerConfig, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:         id,
		graphID:    graphID,
		clientID:   clientID,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, cfg.SendBuffer),
		pingPeriod: cfg.PingInterval,
		pongWait:   cfg.PingInterval * 10 / 9,
		logger: logger.With(
			zap.String("graphID", graphID),
			zap.String("clientID", clientID),
			zap.String("connectionID", id),
		),
	}
}

// start registers the client and runs its pumps.
func (c *Client) start() {
	if !c.hub.enqueueRegister(c) {
		c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// sendSubscribed is called by the hub right after registration, so every
// event broadcast afterwards reaches this client.
func (c *Client) sendSubscribed() {
	select {
	case c.send <- subscribedFrame(c.graphID, c.clientID):
	default:
		c.logger.Error("Failed to send subscribed frame")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.enqueueUnregister(c)
		c.conn.Close()
		c.logger.Debug("Read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return
			}

			// Drain what queued up meanwhile.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, next); err != nil {
					c.logger.Warn("Failed to write queued message", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
