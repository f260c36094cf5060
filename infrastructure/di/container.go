// Package di assembles the server from configuration.
package di

import (
	"context"
	"fmt"

	"graphsync/application/ingest"
	"graphsync/application/ports"
	"graphsync/application/queries"
	"graphsync/application/reducer"
	"graphsync/domain/events"
	"graphsync/infrastructure/config"
	"graphsync/infrastructure/messaging/local"
	"graphsync/interfaces/http/rest"
	"graphsync/interfaces/websocket"
	"graphsync/pkg/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logging     Logging
	Logger      *zap.Logger
	Metrics     *observability.Collector
	Tracing     TracingShutdown
	Stores      Stores
	Snapshots   ports.SnapshotStore
	EventLog    ports.EventLog
	Connections ports.ConnectionStore
	Broker      *local.Broker
	Publisher   ports.Publisher
	Hub         *websocket.Hub
	Notifier    ports.Notifier
	LogWriter   *reducer.LogWriter
	Reducer     *reducer.SnapshotReducer
	Ingest      *ingest.Service
	Queries     *queries.Service
	Websocket   *websocket.Server
	Router      *rest.Router
}

// LocalMessaging reports whether events travel over the in-process broker.
// Otherwise the consumers run as separate functions behind the bus.
func (c *Container) LocalMessaging() bool {
	return c.Config.Messaging.Driver == config.MessagingLocal
}

// WireConsumers subscribes the log writer and the snapshot reducer to the
// events topic of the local broker. It must run before the broker starts.
func (c *Container) WireConsumers() error {
	if !c.LocalMessaging() {
		return nil
	}
	if err := c.Broker.Subscribe(events.Topic, LogWriterSubscriber, c.LogWriter.Handle); err != nil {
		return fmt.Errorf("subscribe log writer: %w", err)
	}
	if err := c.Broker.Subscribe(events.Topic, ReducerSubscriber, c.Reducer.Handle); err != nil {
		return fmt.Errorf("subscribe reducer: %w", err)
	}
	c.Logger.Info("Consumers subscribed", zap.String("topic", events.Topic))
	return nil
}

// Run drives the hub and, for local messaging, the broker until ctx ends.
// Consumers must be wired first.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Hub.Run(ctx) })
	if c.LocalMessaging() {
		g.Go(func() error { return c.Broker.Run(ctx) })
	}
	return g.Wait()
}
