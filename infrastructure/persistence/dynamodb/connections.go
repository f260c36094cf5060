package dynamodb

import (
	"context"
	"fmt"
	"time"

	"graphsync/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

type connectionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	GSI1PK       string `dynamodbav:"GSI1PK"`
	GSI1SK       string `dynamodbav:"GSI1SK"`
	EntityType   string `dynamodbav:"EntityType"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	GraphID      string `dynamodbav:"GraphID"`
	ClientID     string `dynamodbav:"ClientID"`
	ConnectedAt  string `dynamodbav:"ConnectedAt"`
	TTL          int64  `dynamodbav:"TTL"`
}

// ConnectionStore tracks API Gateway websocket connections per graph.
type ConnectionStore struct {
	client    Client
	tableName string
	indexName string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewConnectionStore creates a connection store. indexName is the GSI keyed
// by GSI1PK used to find a connection by id on disconnect.
func NewConnectionStore(client Client, tableName, indexName string, logger *zap.Logger) *ConnectionStore {
	return &ConnectionStore{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		ttl:       2 * time.Hour,
		logger:    logger,
	}
}

func (c *ConnectionStore) Save(ctx context.Context, conn ports.Connection) error {
	item, err := attributevalue.MarshalMap(connectionItem{
		PK:           graphPK(conn.GraphID),
		SK:           connPrefix + conn.ID,
		GSI1PK:       connPrefix + conn.ID,
		GSI1SK:       graphPK(conn.GraphID),
		EntityType:   entityConn,
		ConnectionID: conn.ID,
		GraphID:      conn.GraphID,
		ClientID:     conn.ClientID,
		ConnectedAt:  conn.ConnectedAt.UTC().Format(time.RFC3339),
		TTL:          conn.ConnectedAt.Add(c.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return storeError("failed to save connection", err)
	}
	return nil
}

func (c *ConnectionStore) Delete(ctx context.Context, connectionID string) error {
	keyExpr := expression.Key("GSI1PK").Equal(expression.Value(connPrefix + connectionID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(c.tableName),
		IndexName:                 aws.String(c.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return storeError("failed to find connection", err)
	}

	for _, raw := range out.Items {
		var item connectionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			c.logger.Warn("Failed to parse connection item", zap.Error(err))
			continue
		}
		if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(c.tableName),
			Key:       keyOf(item.PK, item.SK),
		}); err != nil {
			return storeError("failed to delete connection", err)
		}
	}
	return nil
}

func (c *ConnectionStore) ListByGraph(ctx context.Context, graphID string) ([]ports.Connection, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(graphPK(graphID))).
		And(expression.Key("SK").BeginsWith(connPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(c.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, storeError("failed to list connections", err)
	}

	conns := make([]ports.Connection, 0, len(out.Items))
	for _, raw := range out.Items {
		var item connectionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			c.logger.Warn("Failed to parse connection item", zap.Error(err))
			continue
		}
		at, _ := time.Parse(time.RFC3339, item.ConnectedAt)
		conns = append(conns, ports.Connection{
			ID:          item.ConnectionID,
			GraphID:     item.GraphID,
			ClientID:    item.ClientID,
			ConnectedAt: at,
		})
	}
	return conns, nil
}

var _ ports.ConnectionStore = (*ConnectionStore)(nil)
