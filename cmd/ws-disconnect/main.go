// Command ws-disconnect forgets an API Gateway websocket connection.
package main

import (
	"context"
	"log"
	"net/http"

	"graphsync/application/ports"
	"graphsync/infrastructure/config"
	"graphsync/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

type disconnector struct {
	connections ports.ConnectionStore
	logger      *zap.Logger
}

func (d *disconnector) handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID
	if err := d.connections.Delete(ctx, connectionID); err != nil {
		d.logger.Error("Failed to delete connection", zap.String("connection_id", connectionID), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	d.logger.Info("Websocket disconnected", zap.String("connection_id", connectionID))
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
	d := &disconnector{connections: container.Connections, logger: container.Logger}
	lambda.Start(d.handle)
}
