// Package notifier pushes persisted events to websocket subscribers
// connected through API Gateway.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"graphsync/application/ports"
	"graphsync/domain/events"
	"graphsync/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentPosts = 8

// Poster is the subset of the API Gateway management API used here.
type Poster interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

var _ Poster = (*apigatewaymanagementapi.Client)(nil)

// APIGateway posts every event to all connections of its graph. Stale
// connections are removed from the store when API Gateway reports them gone.
type APIGateway struct {
	poster      Poster
	connections ports.ConnectionStore
	metrics     *observability.Collector
	logger      *zap.Logger
}

// NewAPIGateway creates the notifier.
func NewAPIGateway(poster Poster, connections ports.ConnectionStore, metrics *observability.Collector, logger *zap.Logger) *APIGateway {
	return &APIGateway{poster: poster, connections: connections, metrics: metrics, logger: logger}
}

// Notify delivers ev to each subscriber. Failures to reach a single live
// connection are logged; the first one is returned so the channel can
// redeliver.
func (n *APIGateway) Notify(ctx context.Context, ev events.Event) error {
	conns, err := n.connections.ListByGraph(ctx, ev.GraphID)
	if err != nil {
		return fmt.Errorf("list connections of %s: %w", ev.GraphID, err)
	}
	if len(conns) == 0 {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPosts)
	for _, conn := range conns {
		g.Go(func() error {
			return n.post(gctx, conn, data)
		})
	}
	return g.Wait()
}

func (n *APIGateway) post(ctx context.Context, conn ports.Connection, data []byte) error {
	_, err := n.poster.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(conn.ID),
		Data:         data,
	})
	if err == nil {
		n.metrics.RecordDelivery("ok")
		return nil
	}

	var gone *apigwTypes.GoneException
	if errors.As(err, &gone) {
		n.metrics.RecordDelivery("gone")
		n.logger.Info("Found stale connection, deleting", zap.String("connectionID", conn.ID))
		if err := n.connections.Delete(ctx, conn.ID); err != nil {
			n.logger.Warn("Failed to delete stale connection", zap.String("connectionID", conn.ID), zap.Error(err))
		}
		return nil
	}

	n.metrics.RecordDelivery("error")
	n.logger.Error("Failed to post to connection", zap.String("connectionID", conn.ID), zap.Error(err))
	return fmt.Errorf("post to connection %s: %w", conn.ID, err)
}

var _ ports.Notifier = (*APIGateway)(nil)
