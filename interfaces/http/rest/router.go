// Package rest exposes the HTTP API.
//
// @title graphsync API
// @version 1.0
// @description Event submission, snapshots and event log for collaborative pipeline diagrams.
// @BasePath /api/v1
package rest

import (
	"context"
	"net/http"
	"time"

	"graphsync/interfaces/http/rest/docs"
	"graphsync/interfaces/http/rest/handlers"
	"graphsync/interfaces/http/rest/middleware"
	"graphsync/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Router wires handlers and middleware.
type Router struct {
	ingest         handlers.Submitter
	queries        handlers.GraphQueries
	websocket      http.HandlerFunc
	metrics        *observability.Collector
	ready          []ReadinessCheck
	allowedOrigins []string
	logger         *zap.Logger
}

// NewRouter creates a router. websocket may be nil when subscriptions are
// served elsewhere.
func NewRouter(
	ingest handlers.Submitter,
	queries handlers.GraphQueries,
	websocket http.HandlerFunc,
	metrics *observability.Collector,
	allowedOrigins []string,
	logger *zap.Logger,
	ready ...ReadinessCheck,
) *Router {
	return &Router{
		ingest:         ingest,
		queries:        queries,
		websocket:      websocket,
		metrics:        metrics,
		ready:          ready,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Tracing())
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.metrics))

	origins := rt.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}
	router.Get("/swagger/doc.json", rt.swaggerDoc)

	router.Route("/api/v1", func(r chi.Router) {
		eventHandler := handlers.NewEventHandler(rt.ingest, rt.logger)
		r.Post("/events", eventHandler.Submit)

		r.Route("/graphs", func(r chi.Router) {
			graphHandler := handlers.NewGraphHandler(rt.queries, rt.logger)
			r.Post("/", graphHandler.CreateGraph)
			r.Get("/{graphId}", graphHandler.GetGraph)
			r.Get("/{graphId}/events", graphHandler.ListEvents)
		})

		if rt.websocket != nil {
			r.Get("/ws", rt.websocket)
		}
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	for _, check := range rt.ready {
		if err := check(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (rt *Router) swaggerDoc(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
}
