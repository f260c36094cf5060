package handlers

import (
	"context"
	"net/http"
	"strconv"

	"graphsync/domain/events"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GraphQueries reads and creates graphs.
type GraphQueries interface {
	CreateGraph(ctx context.Context, graphID string) (graph.Snapshot, error)
	GetGraph(ctx context.Context, graphID string) (graph.Snapshot, error)
	ListEvents(ctx context.Context, graphID, since string, limit int) ([]events.Event, error)
}

// CreateGraphRequest optionally names the new graph.
type CreateGraphRequest struct {
	ID string `json:"id"`
}

// EventsResponse is a page of the event log.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	// LastEventID is the id of the last returned event, or the since cursor
	// when the page is empty.
	LastEventID string `json:"lastEventId"`
}

// GraphHandler serves snapshot and event log reads.
type GraphHandler struct {
	queries GraphQueries
	logger  *zap.Logger
}

// NewGraphHandler creates the handler.
func NewGraphHandler(queries GraphQueries, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{queries: queries, logger: logger}
}

// CreateGraph handles POST /graphs.
//
// @Summary Create a graph
// @Tags graphs
// @Accept json
// @Produce json
// @Param request body CreateGraphRequest false "Graph id"
// @Success 201 {object} graph.Snapshot
// @Failure 409 {object} ErrorResponse
// @Router /graphs [post]
func (h *GraphHandler) CreateGraph(w http.ResponseWriter, r *http.Request) {
	var req CreateGraphRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	snap, err := h.queries.CreateGraph(r.Context(), req.ID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, snap)
}

// GetGraph handles GET /graphs/{graphId}.
//
// @Summary Get the canonical snapshot
// @Tags graphs
// @Produce json
// @Param graphId path string true "Graph ID"
// @Success 200 {object} graph.Snapshot
// @Failure 404 {object} ErrorResponse
// @Router /graphs/{graphId} [get]
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := h.queries.GetGraph(r.Context(), chi.URLParam(r, "graphId"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, snap)
}

// ListEvents handles GET /graphs/{graphId}/events?since=&limit=.
//
// @Summary List logged events after a cursor
// @Tags graphs
// @Produce json
// @Param graphId path string true "Graph ID"
// @Param since query string false "Exclusive event id cursor"
// @Param limit query int false "Page size" default(500)
// @Success 200 {object} EventsResponse
// @Failure 404 {object} ErrorResponse
// @Router /graphs/{graphId}/events [get]
func (h *GraphHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, r, h.logger, appErrors.NewValidation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	evs, err := h.queries.ListEvents(r.Context(), chi.URLParam(r, "graphId"), since, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	resp := EventsResponse{Events: evs, LastEventID: since}
	if len(evs) > 0 {
		resp.LastEventID = evs[len(evs)-1].ID
	}
	respondJSON(w, h.logger, http.StatusOK, resp)
}
