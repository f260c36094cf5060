// Command mutate-graph is the EventBridge target that folds confirmations
// into the graph snapshot.
package main

import (
	"context"
	"log"

	"graphsync/infrastructure/config"
	"graphsync/infrastructure/di"
	"graphsync/infrastructure/messaging/eventbridge"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var container *di.Container

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	container, _, err = di.InitializeContainer(context.Background(), &cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
}

func handler(ctx context.Context, ev events.EventBridgeEvent) error {
	msg, err := eventbridge.DecodeDetail(ev.Detail)
	if err != nil {
		container.Logger.Error("Dropping undecodable EventBridge event",
			zap.String("id", ev.ID),
			zap.Error(err),
		)
		return nil
	}
	return container.Reducer.Handle(ctx, msg)
}

func main() {
	lambda.Start(handler)
}
