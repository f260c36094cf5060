package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"graphsync/application/ingest"
	"graphsync/application/ports/mocks"
	"graphsync/application/queries"
	"graphsync/domain/events"
	"graphsync/infrastructure/persistence/memory"
	"graphsync/interfaces/http/rest/handlers"
	appErrors "graphsync/pkg/errors"
	"graphsync/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	handler   http.Handler
	publisher *mocks.MockPublisher
	log       *memory.EventLog
}

func newFixture(t *testing.T, ready ...ReadinessCheck) *fixture {
	t.Helper()
	publisher := new(mocks.MockPublisher)
	ids := new(mocks.MockIDGenerator)
	ids.On("NewID").Return("01HZX")
	log := memory.NewEventLog()
	q := queries.NewService(memory.NewSnapshotStore(), log, zap.NewNop())
	svc := ingest.NewService(publisher, ids, nil, zap.NewNop())
	rt := NewRouter(svc, q, nil, observability.NewCollector("test"), nil, zap.NewNop(), ready...)
	return &fixture{handler: rt.Setup(), publisher: publisher, log: log}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitEvent(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("EnsureTopic", mock.Anything, events.Topic).Return(nil)
	f.publisher.On("Publish", mock.Anything, events.Topic, mock.Anything).Return(nil)

	rec := f.do(t, http.MethodPost, "/api/v1/events",
		`{"graphId":"g1","clientId":"c1","type":"AddNodeSuccess","payload":{"id":"n1","kind":"faucet","label":"Canilla #50"}}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp handlers.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "01HZX", resp.ID)
	assert.NotEmpty(t, resp.Message)
}

func TestSubmitEvent_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		publishErr error
		status     int
		retryable  bool
	}{
		{name: "malformed body", body: `{`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"graphId":"g1","bogus":1}`, status: http.StatusBadRequest},
		{name: "unknown type", body: `{"graphId":"g1","clientId":"c1","type":"Explode"}`, status: http.StatusBadRequest},
		{
			name:       "channel down",
			body:       `{"graphId":"g1","clientId":"c1","type":"ViewNode","payload":"n1"}`,
			publishErr: errors.New("connection refused"),
			status:     http.StatusServiceUnavailable,
			retryable:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.publisher.On("EnsureTopic", mock.Anything, events.Topic).Return(nil)
			f.publisher.On("Publish", mock.Anything, events.Topic, mock.Anything).Return(tt.publishErr)

			rec := f.do(t, http.MethodPost, "/api/v1/events", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			var problem handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, tt.retryable, problem.Retryable)
		})
	}
}

func TestGraphLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/graphs", `{"id":"g1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/graphs", `{"id":"g1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/graphs/g1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"g1","nodes":[],"edges":[],"lastEventId":""}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/graphs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGraph_EmptyBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/graphs", "")

	require.Equal(t, http.StatusCreated, rec.Code)
	var snap struct{ ID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.ID)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/graphs", `{"id":"g1"}`).Code)
	for _, id := range []string{"01A", "01B"} {
		ev := events.MustNew(events.TypeDeleteNodeSuccess, "n1")
		ev.ID, ev.GraphID = id, "g1"
		_, _, err := f.log.Append(context.Background(), ev)
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/graphs/g1/events?since=01A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "01B", resp.LastEventID)

	rec = f.do(t, http.MethodGet, "/api/v1/graphs/g1/events?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReadyMetricsDocs(t *testing.T) {
	f := newFixture(t, func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", "").Code)

	f.do(t, http.MethodGet, "/api/v1/graphs/missing", "")
	metrics := f.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, metrics.Body.String(), "test_http_requests_total")

	doc := f.do(t, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, doc.Code)
	assert.True(t, json.Valid(doc.Body.Bytes()))
	assert.Contains(t, doc.Body.String(), "/graphs/{graphId}/events")
}

func TestReadiness_Failing(t *testing.T) {
	f := newFixture(t, func(context.Context) error { return appErrors.NewUnavailable("db down", nil) })

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/ready", "").Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, handlers.StatusFor(appErrors.NewValidation("x")))
	assert.Equal(t, http.StatusNotFound, handlers.StatusFor(appErrors.UnknownGraph("g")))
	assert.Equal(t, http.StatusConflict, handlers.StatusFor(appErrors.NewConflict("x")))
	assert.Equal(t, http.StatusServiceUnavailable, handlers.StatusFor(appErrors.NewUnavailable("x", nil)))
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusFor(errors.New("boom")))
}
