package handlers

import (
	"context"
	"net/http"

	"graphsync/application/ingest"
	"graphsync/domain/events"

	"go.uber.org/zap"
)

// Submitter accepts client events.
type Submitter interface {
	Submit(ctx context.Context, cmd ingest.SubmitCommand) (events.Event, error)
}

// SubmitResponse acknowledges an accepted event.
type SubmitResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// EventHandler serves the submission entrypoint.
type EventHandler struct {
	ingest Submitter
	logger *zap.Logger
}

// NewEventHandler creates the handler.
func NewEventHandler(ingest Submitter, logger *zap.Logger) *EventHandler {
	return &EventHandler{ingest: ingest, logger: logger}
}

// Submit handles POST /events. The response means the event was put on the
// broadcast channel, not that it was persisted.
//
// @Summary Submit an event
// @Tags events
// @Accept json
// @Produce json
// @Param request body ingest.SubmitCommand true "Event"
// @Success 202 {object} SubmitResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /events [post]
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var cmd ingest.SubmitCommand
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	ev, err := h.ingest.Submit(r.Context(), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusAccepted, SubmitResponse{Message: "event accepted", ID: ev.ID})
}
