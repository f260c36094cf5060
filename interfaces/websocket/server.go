package websocket

import (
	"context"
	"net/http"
	"slices"
	"time"

	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// GraphLookup resolves a graph before a subscription is accepted.
type GraphLookup interface {
	GetGraph(ctx context.Context, graphID string) (graph.Snapshot, error)
}

// ServerConfig holds websocket server settings.
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string
	MaxPerGraph     int
	PingInterval    time.Duration
	SendBuffer      int
}

// DefaultServerConfig returns the default websocket settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  []string{"*"},
		MaxPerGraph:     1000,
		PingInterval:    54 * time.Second,
		SendBuffer:      256,
	}
}

// Server upgrades subscription requests and hands the connections to the hub.
type Server struct {
	hub      *Hub
	graphs   GraphLookup
	cfg      ServerConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates the websocket endpoint. graphs may be nil to skip the
// existence check.
func NewServer(hub *Hub, graphs GraphLookup, cfg ServerConfig, logger *zap.Logger) *Server {
	def := DefaultServerConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.MaxPerGraph <= 0 {
		cfg.MaxPerGraph = def.MaxPerGraph
	}
	s := &Server{hub: hub, graphs: graphs, cfg: cfg, logger: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// HandleWebSocket serves GET /ws?graphId=&clientId=.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	graphID := r.URL.Query().Get("graphId")
	clientID := r.URL.Query().Get("clientId")
	if graphID == "" || clientID == "" {
		http.Error(w, "graphId and clientId are required", http.StatusBadRequest)
		return
	}

	if s.graphs != nil {
		if _, err := s.graphs.GetGraph(r.Context(), graphID); err != nil {
			status := http.StatusInternalServerError
			if appErrors.IsNotFound(err) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
	}

	if s.hub.ConnectionCount(graphID) >= s.cfg.MaxPerGraph {
		s.logger.Warn("Connection limit exceeded for graph",
			zap.String("graphID", graphID),
			zap.Int("limit", s.cfg.MaxPerGraph),
		)
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := newClient(graphID, clientID, s.hub, conn, s.cfg, s.logger)
	client.start()

	s.logger.Info("New WebSocket connection established",
		zap.String("graphID", graphID),
		zap.String("clientID", clientID),
		zap.String("connectionID", client.id),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}
