package di

import (
	"context"
	"fmt"

	"graphsync/application/fanout"
	"graphsync/application/ingest"
	"graphsync/application/ports"
	"graphsync/application/queries"
	"graphsync/application/reducer"
	"graphsync/infrastructure/config"
	"graphsync/infrastructure/idgen"
	"graphsync/infrastructure/messaging"
	"graphsync/infrastructure/messaging/eventbridge"
	"graphsync/infrastructure/messaging/local"
	"graphsync/infrastructure/notifier"
	"graphsync/infrastructure/persistence/dynamodb"
	"graphsync/infrastructure/persistence/memory"
	"graphsync/infrastructure/persistence/sqlite"
	"graphsync/interfaces/http/rest"
	"graphsync/interfaces/websocket"
	"graphsync/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// Subscriber names on the local broker.
const (
	LogWriterSubscriber = "event-log-writer"
	ReducerSubscriber   = "snapshot-reducer"
)

// Logging carries the logger together with its adjustable level.
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

// Stores groups the persistence adapters selected by Storage.Driver.
type Stores struct {
	Snapshots   ports.SnapshotStore
	Events      ports.EventLog
	Connections ports.ConnectionStore
	// Ping reports whether the backing store is reachable.
	Ping rest.ReadinessCheck
}

// TracingShutdown flushes the trace exporter.
type TracingShutdown func(context.Context) error

// ProvideLogging builds the process logger.
func ProvideLogging(cfg *config.Config) (Logging, func(), error) {
	logger, level, err := observability.NewLogger(string(cfg.Environment), cfg.Logging.Level)
	if err != nil {
		return Logging{}, nil, err
	}
	logger = logger.With(zap.String("service", cfg.ServiceName))
	return Logging{Logger: logger, Level: level}, func() { _ = logger.Sync() }, nil
}

// ProvideLogger extracts the logger.
func ProvideLogger(l Logging) *zap.Logger {
	return l.Logger
}

// ProvideMetrics creates the collector, or nil when metrics are disabled.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// ProvideTracing installs the tracer provider.
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (TracingShutdown, func(), error) {
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init tracing: %w", err)
	}
	cleanup := func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return shutdown, cleanup, nil
}

// ProvideAWSConfig loads the shared AWS configuration. No request is made
// until a client is used, so local drivers pay nothing for it.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
}

// ProvideDynamoDBClient creates a DynamoDB client, pointed at AWS.Endpoint
// when set (DynamoDB Local).
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client.
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideAPIGatewayClient creates the management API client for the
// websocket endpoint, or nil when no endpoint is configured.
func ProvideAPIGatewayClient(awsCfg aws.Config, cfg *config.Config) *apigatewaymanagementapi.Client {
	if cfg.Websocket.Endpoint == "" {
		return nil
	}
	return apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(cfg.Websocket.Endpoint)
	})
}

// ProvideStores opens the configured persistence driver.
func ProvideStores(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (Stores, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return Stores{}, nil, fmt.Errorf("open sqlite store %s: %w", cfg.Storage.SQLitePath, err)
		}
		logger.Info("Using SQLite storage", zap.String("path", cfg.Storage.SQLitePath))
		stores := Stores{
			Snapshots:   sqlite.NewSnapshotStore(db),
			Events:      sqlite.NewEventLog(db),
			Connections: memory.NewConnectionStore(),
			Ping:        func(context.Context) error { return db.Ping() },
		}
		return stores, func() { _ = db.Close() }, nil

	case config.StorageDynamoDB:
		logger.Info("Using DynamoDB storage", zap.String("table", cfg.Storage.TableName))
		stores := Stores{
			Snapshots:   dynamodb.NewSnapshotStore(client, cfg.Storage.TableName, logger),
			Events:      dynamodb.NewEventLog(client, cfg.Storage.TableName, logger),
			Connections: dynamodb.NewConnectionStore(client, cfg.Storage.TableName, cfg.Storage.IndexName, logger),
			Ping: func(ctx context.Context) error {
				_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(cfg.Storage.TableName)})
				return err
			},
		}
		return stores, func() {}, nil

	default:
		logger.Info("Using in-memory storage")
		stores := Stores{
			Snapshots:   memory.NewSnapshotStore(),
			Events:      memory.NewEventLog(),
			Connections: memory.NewConnectionStore(),
			Ping:        func(context.Context) error { return nil },
		}
		return stores, func() {}, nil
	}
}

func ProvideSnapshotStore(s Stores) ports.SnapshotStore { return s.Snapshots }

func ProvideEventLog(s Stores) ports.EventLog { return s.Events }

func ProvideConnectionStore(s Stores) ports.ConnectionStore { return s.Connections }

// ProvideBroker creates the in-process broadcast channel. It only carries
// traffic when Messaging.Driver is local.
func ProvideBroker(cfg *config.Config, logger *zap.Logger) *local.Broker {
	return local.NewBroker(cfg.Messaging.MaxRedeliver, cfg.Messaging.RetryDelay, logger.Named("broker"))
}

// ProvidePublisher selects the broadcast channel and wraps it in a circuit
// breaker.
func ProvidePublisher(cfg *config.Config, broker *local.Broker, client *awseventbridge.Client, logger *zap.Logger) ports.Publisher {
	var next ports.Publisher = broker
	if cfg.Messaging.Driver == config.MessagingEventBridge {
		next = eventbridge.NewPublisher(client, cfg.Messaging.EventBusName, cfg.Messaging.Source, logger)
	}
	return messaging.NewBreakerPublisher(next, messaging.BreakerConfig{
		Name:         "publisher-" + cfg.Messaging.Driver,
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.Interval,
		Timeout:      cfg.Breaker.Timeout,
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	}, logger)
}

// ProvideIDGenerator assigns monotonic ULIDs to events.
func ProvideIDGenerator() ports.IDGenerator { return idgen.NewULID() }

// ProvideHub creates the websocket hub.
func ProvideHub(metrics *observability.Collector, logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(metrics, logger.Named("hub"))
}

// ProvideNotifier fans persisted events out to the local hub and, when a
// management endpoint is configured, to API Gateway connections. The hub
// only has subscribers in the standalone server, which uses local messaging.
func ProvideNotifier(
	cfg *config.Config,
	hub *websocket.Hub,
	client *apigatewaymanagementapi.Client,
	connections ports.ConnectionStore,
	metrics *observability.Collector,
	logger *zap.Logger,
) ports.Notifier {
	var transports []ports.Notifier
	if cfg.Messaging.Driver == config.MessagingLocal {
		transports = append(transports, hub)
	}
	if client != nil {
		transports = append(transports, notifier.NewAPIGateway(client, connections, metrics, logger))
	}
	return fanout.New(logger, transports...)
}

// ProvideLogWriter creates the event log consumer.
func ProvideLogWriter(log ports.EventLog, n ports.Notifier, metrics *observability.Collector, logger *zap.Logger) *reducer.LogWriter {
	return reducer.NewLogWriter(log, n, nil, metrics, logger.Named(LogWriterSubscriber))
}

// ProvideSnapshotReducer creates the snapshot consumer.
func ProvideSnapshotReducer(store ports.SnapshotStore, cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) *reducer.SnapshotReducer {
	return reducer.NewSnapshotReducer(store, cfg.Reducer.MaxAttempts, cfg.Reducer.BaseDelay, metrics, logger.Named(ReducerSubscriber))
}

func ProvideIngest(publisher ports.Publisher, ids ports.IDGenerator, metrics *observability.Collector, logger *zap.Logger) *ingest.Service {
	return ingest.NewService(publisher, ids, metrics, logger)
}

func ProvideQueries(store ports.SnapshotStore, log ports.EventLog, logger *zap.Logger) *queries.Service {
	return queries.NewService(store, log, logger)
}

func ProvideWebsocketServer(hub *websocket.Hub, q *queries.Service, cfg *config.Config, logger *zap.Logger) *websocket.Server {
	wsCfg := websocket.DefaultServerConfig()
	wsCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	wsCfg.PingInterval = cfg.Websocket.PingInterval
	wsCfg.SendBuffer = cfg.Websocket.SendBuffer
	return websocket.NewServer(hub, q, wsCfg, logger)
}

// ProvideRouter builds the HTTP router with the readiness check of the
// selected store.
func ProvideRouter(
	in *ingest.Service,
	q *queries.Service,
	ws *websocket.Server,
	stores Stores,
	metrics *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(in, q, ws.HandleWebSocket, metrics, cfg.Server.AllowedOrigins, logger, stores.Ping)
}
