package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

type eventItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	EventID    string `dynamodbav:"EventID"`
	Type       string `dynamodbav:"Type"`
	GraphID    string `dynamodbav:"GraphID"`
	ClientID   string `dynamodbav:"ClientID"`
	Payload    string `dynamodbav:"Payload"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

func toEventItem(ev events.Event) eventItem {
	return eventItem{
		PK:         graphPK(ev.GraphID),
		SK:         eventPrefix + ev.ID,
		EntityType: entityEvent,
		EventID:    ev.ID,
		Type:       string(ev.Type),
		GraphID:    ev.GraphID,
		ClientID:   ev.ClientID,
		Payload:    string(ev.Payload),
		CreatedAt:  ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (i eventItem) event() (events.Event, error) {
	ev := events.Event{
		ID:       i.EventID,
		Type:     events.Type(i.Type),
		GraphID:  i.GraphID,
		ClientID: i.ClientID,
	}
	if i.Payload != "" {
		ev.Payload = []byte(i.Payload)
	}
	created, err := time.Parse(time.RFC3339Nano, i.CreatedAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("parse CreatedAt of %s: %w", i.EventID, err)
	}
	ev.CreatedAt = created
	return ev, nil
}

// EventLog writes events under their graph partition with a conditional
// put, so the first write of an id wins.
type EventLog struct {
	client    Client
	tableName string
	logger    *zap.Logger
}

// NewEventLog creates an event log on tableName.
func NewEventLog(client Client, tableName string, logger *zap.Logger) *EventLog {
	return &EventLog{client: client, tableName: tableName, logger: logger}
}

func (l *EventLog) Append(ctx context.Context, ev events.Event) (events.Event, bool, error) {
	if ev.ID == "" {
		return events.Event{}, false, appErrors.NewValidation("event id is required")
	}
	item, err := attributevalue.MarshalMap(toEventItem(ev))
	if err != nil {
		return events.Event{}, false, appErrors.Wrap(err, "failed to marshal event")
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(l.tableName),
		Item:                                item,
		ConditionExpression:                 aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return ev, true, nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return events.Event{}, false, storeError("failed to append event", err)
	}

	// Already logged: the stored record wins.
	l.logger.Debug("Event already logged", zap.String("eventID", ev.ID))
	if ccf.Item == nil {
		return ev, false, nil
	}
	var stored eventItem
	if err := attributevalue.UnmarshalMap(ccf.Item, &stored); err != nil {
		return events.Event{}, false, appErrors.Wrap(err, "failed to unmarshal stored event")
	}
	existing, err := stored.event()
	if err != nil {
		return events.Event{}, false, err
	}
	return existing, false, nil
}

func (l *EventLog) ListSince(ctx context.Context, graphID, since string, limit int) ([]events.Event, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(graphPK(graphID))).
		And(expression.Key("SK").Between(expression.Value(eventPrefix+since), expression.Value(eventSKUpper)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(l.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}

	out := []events.Event{}
	for {
		page, err := l.client.Query(ctx, input)
		if err != nil {
			return nil, storeError("failed to query events", err)
		}
		for _, raw := range page.Items {
			var item eventItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				l.logger.Warn("Failed to parse event item", zap.Error(err))
				continue
			}
			// Between is inclusive of the lower bound.
			if item.EventID == since || !strings.HasPrefix(item.SK, eventPrefix) {
				continue
			}
			ev, err := item.event()
			if err != nil {
				l.logger.Warn("Failed to parse event item", zap.Error(err))
				continue
			}
			out = append(out, ev)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

var _ ports.EventLog = (*EventLog)(nil)
