// Package dynamodb stores snapshots, the event log and websocket connections
// in a single DynamoDB table.
//
// Key layout:
//
//	graph snapshot   PK=GRAPH#<graphId>  SK=SNAPSHOT
//	event            PK=GRAPH#<graphId>  SK=EVENT#<eventId>
//	connection       PK=GRAPH#<graphId>  SK=CONN#<connectionId>  GSI1PK=CONN#<connectionId>
package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Client is the subset of the DynamoDB API used by the stores.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

const (
	snapshotSK   = "SNAPSHOT"
	eventPrefix  = "EVENT#"
	connPrefix   = "CONN#"
	entityGraph  = "Graph"
	entityEvent  = "Event"
	entityConn   = "Connection"
	eventSKUpper = eventPrefix + "~"
)

func graphPK(graphID string) string { return "GRAPH#" + graphID }

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// isThrottled reports throughput errors that warrant a retry by the caller.
func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return true
	}
	return false
}
