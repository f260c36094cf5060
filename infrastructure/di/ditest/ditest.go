// Package ditest starts a complete standalone server for tests.
package ditest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"graphsync/infrastructure/config"
	"graphsync/infrastructure/di"

	"github.com/stretchr/testify/require"
)

// Config is the default configuration trimmed for tests: in-memory
// storage, local messaging, fast retries and quiet logs.
func Config() config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Metrics.Enabled = false
	cfg.Messaging.RetryDelay = time.Millisecond
	cfg.Reducer.BaseDelay = time.Millisecond
	cfg.Websocket.PingInterval = time.Second
	return cfg
}

// Server is a running server and its container.
type Server struct {
	*httptest.Server
	Container *di.Container
}

// Start builds the container from cfg, runs it and serves its router.
// Everything is torn down when the test ends.
func Start(t *testing.T, cfg config.Config) *Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	c, cleanup, err := di.InitializeContainer(ctx, &cfg)
	require.NoError(t, err)
	require.NoError(t, c.WireConsumers())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	srv := httptest.NewServer(c.Router.Setup())
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
		cleanup()
	})
	return &Server{Server: srv, Container: c}
}
