//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"graphsync/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogging,
	ProvideLogger,
	ProvideMetrics,
	ProvideTracing,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideAPIGatewayClient,
	ProvideStores,
	ProvideSnapshotStore,
	ProvideEventLog,
	ProvideConnectionStore,
	ProvideBroker,
	ProvidePublisher,
	ProvideIDGenerator,
	ProvideHub,
	ProvideNotifier,
	ProvideLogWriter,
	ProvideSnapshotReducer,
	ProvideIngest,
	ProvideQueries,
	ProvideWebsocketServer,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The cleanup closes
// stores, flushes traces and syncs the logger.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
