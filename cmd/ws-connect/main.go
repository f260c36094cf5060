// Command ws-connect registers an API Gateway websocket connection as a
// subscriber of one graph.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/graph"
	"graphsync/infrastructure/config"
	"graphsync/infrastructure/di"
	appErrors "graphsync/pkg/errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

type graphLookup interface {
	GetGraph(ctx context.Context, graphID string) (graph.Snapshot, error)
}

type connector struct {
	graphs      graphLookup
	connections ports.ConnectionStore
	now         func() time.Time
	logger      *zap.Logger
}

func (c *connector) handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	graphID := req.QueryStringParameters["graphId"]
	clientID := req.QueryStringParameters["clientId"]
	connectionID := req.RequestContext.ConnectionID
	if graphID == "" || clientID == "" {
		c.logger.Warn("Connection request missing parameters", zap.String("connection_id", connectionID))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}

	if _, err := c.graphs.GetGraph(ctx, graphID); err != nil {
		if errors.Is(err, appErrors.ErrUnknownGraph) {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusNotFound}, nil
		}
		c.logger.Error("Failed to look up graph", zap.String("graph_id", graphID), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	err := c.connections.Save(ctx, ports.Connection{
		ID:          connectionID,
		GraphID:     graphID,
		ClientID:    clientID,
		ConnectedAt: c.now().UTC(),
	})
	if err != nil {
		c.logger.Error("Failed to save connection", zap.String("connection_id", connectionID), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	c.logger.Info("Websocket connected",
		zap.String("connection_id", connectionID),
		zap.String("graph_id", graphID),
		zap.String("client_id", clientID),
	)
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	container, _, err := di.InitializeContainer(context.Background(), &cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	c := &connector{
		graphs:      container.Queries,
		connections: container.Connections,
		now:         time.Now,
		logger:      container.Logger,
	}
	lambda.Start(c.handle)
}
