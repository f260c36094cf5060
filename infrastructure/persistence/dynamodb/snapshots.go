package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

type snapshotItem struct {
	PK          string       `dynamodbav:"PK"`
	SK          string       `dynamodbav:"SK"`
	EntityType  string       `dynamodbav:"EntityType"`
	GraphID     string       `dynamodbav:"GraphID"`
	Nodes       []graph.Node `dynamodbav:"Nodes"`
	Edges       []graph.Edge `dynamodbav:"Edges"`
	LastEventID string       `dynamodbav:"LastEventID"`
	Version     int64        `dynamodbav:"Version"`
	UpdatedAt   string       `dynamodbav:"UpdatedAt"`
}

func toSnapshotItem(snap graph.Snapshot, version int64) snapshotItem {
	snap = snap.Clone()
	return snapshotItem{
		PK:          graphPK(snap.ID),
		SK:          snapshotSK,
		EntityType:  entityGraph,
		GraphID:     snap.ID,
		Nodes:       snap.Nodes,
		Edges:       snap.Edges,
		LastEventID: snap.LastEventID,
		Version:     version,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

func (i snapshotItem) snapshot() graph.Snapshot {
	return graph.Snapshot{
		ID:          i.GraphID,
		Nodes:       i.Nodes,
		Edges:       i.Edges,
		LastEventID: i.LastEventID,
		Version:     i.Version,
	}.Clone()
}

// SnapshotStore keeps one item per graph. Save is a conditional put on the
// Version attribute.
type SnapshotStore struct {
	client    Client
	tableName string
	logger    *zap.Logger
}

// NewSnapshotStore creates a snapshot store on tableName.
func NewSnapshotStore(client Client, tableName string, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{client: client, tableName: tableName, logger: logger}
}

func (s *SnapshotStore) Create(ctx context.Context, snap graph.Snapshot) error {
	item, err := attributevalue.MarshalMap(toSnapshotItem(snap, 1))
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal graph snapshot")
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return appErrors.NewConflict("graph " + snap.ID + " already exists")
		}
		return storeError("failed to create graph", err)
	}

	s.logger.Debug("Graph created", zap.String("graphID", snap.ID))
	return nil
}

func (s *SnapshotStore) Get(ctx context.Context, graphID string) (graph.Snapshot, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            keyOf(graphPK(graphID), snapshotSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return graph.Snapshot{}, storeError("failed to get graph", err)
	}
	if out.Item == nil {
		return graph.Snapshot{}, appErrors.UnknownGraph(graphID)
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return graph.Snapshot{}, appErrors.Wrap(err, "failed to unmarshal graph snapshot")
	}
	return item.snapshot(), nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap graph.Snapshot) (graph.Snapshot, error) {
	next := snap.Version + 1
	item, err := attributevalue.MarshalMap(toSnapshotItem(snap, next))
	if err != nil {
		return graph.Snapshot{}, appErrors.Wrap(err, "failed to marshal graph snapshot")
	}

	condition := expression.Name("PK").AttributeExists().
		And(expression.Name("Version").Equal(expression.Value(snap.Version)))
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(s.tableName),
		Item:                                item,
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if ccf.Item == nil {
				return graph.Snapshot{}, appErrors.UnknownGraph(snap.ID)
			}
			return graph.Snapshot{}, appErrors.NewConflict("optimistic lock failed for graph " + snap.ID)
		}
		return graph.Snapshot{}, storeError("failed to save graph", err)
	}

	saved := snap.Clone()
	saved.Version = next
	return saved, nil
}

func storeError(message string, err error) error {
	if isThrottled(err) {
		return appErrors.NewUnavailable(message, err)
	}
	return appErrors.NewInternal(message, err)
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)
