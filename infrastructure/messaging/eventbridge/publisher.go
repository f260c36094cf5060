// Package eventbridge publishes broadcast messages to an EventBridge bus.
// Consumers are Lambda targets of rules matching the bus, source and
// detail type (the topic).
package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"graphsync/application/ports"
	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// EventBridge limits PutEvents to 10 entries per call.
const batchSize = 10

// Client is the subset of the EventBridge API used by the publisher.
type Client interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
	DescribeEventBus(ctx context.Context, params *eventbridge.DescribeEventBusInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DescribeEventBusOutput, error)
	CreateEventBus(ctx context.Context, params *eventbridge.CreateEventBusInput, optFns ...func(*eventbridge.Options)) (*eventbridge.CreateEventBusOutput, error)
}

var _ Client = (*eventbridge.Client)(nil)

// Publisher implements ports.Publisher on EventBridge. The message topic
// becomes the entry's detail type; the detail is the message itself.
type Publisher struct {
	client       Client
	eventBusName string
	source       string
	logger       *zap.Logger

	mu      sync.Mutex
	ensured bool
}

// NewPublisher creates a publisher for eventBusName.
func NewPublisher(client Client, eventBusName, source string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		logger:       logger,
	}
}

// EnsureTopic makes sure the bus exists. Topics map to detail types, which
// need no provisioning, so only the bus is checked.
func (p *Publisher) EnsureTopic(ctx context.Context, topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured {
		return nil
	}

	_, err := p.client.DescribeEventBus(ctx, &eventbridge.DescribeEventBusInput{
		Name: aws.String(p.eventBusName),
	})
	var notFound *types.ResourceNotFoundException
	switch {
	case err == nil:
	case errors.As(err, &notFound):
		_, err = p.client.CreateEventBus(ctx, &eventbridge.CreateEventBusInput{
			Name: aws.String(p.eventBusName),
		})
		var exists *types.ResourceAlreadyExistsException
		if err != nil && !errors.As(err, &exists) {
			return appErrors.NewUnavailable("failed to create event bus "+p.eventBusName, err)
		}
		p.logger.Info("Event bus created", zap.String("eventBus", p.eventBusName), zap.String("topic", topic))
	default:
		return appErrors.NewUnavailable("failed to describe event bus "+p.eventBusName, err)
	}

	p.ensured = true
	return nil
}

// Publish sends msgs in batches of ten. Order holds within one call.
func (p *Publisher) Publish(ctx context.Context, topic string, msgs ...events.Message) error {
	for i := 0; i < len(msgs); i += batchSize {
		end := min(i+batchSize, len(msgs))
		if err := p.publishBatch(ctx, topic, msgs[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishBatch(ctx context.Context, topic string, msgs []events.Message) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(msgs))
	for _, msg := range msgs {
		detail, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(topic),
			Detail:       aws.String(string(detail)),
		})
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return appErrors.NewUnavailable("failed to publish events to EventBridge", err)
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("Failed to publish event",
					zap.String("topic", topic),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return appErrors.NewUnavailable(fmt.Sprintf("%d events failed to publish", result.FailedEntryCount), nil)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}

// DecodeDetail extracts the broadcast message from an EventBridge event
// detail, as delivered to Lambda targets.
func DecodeDetail(detail json.RawMessage) (events.Message, error) {
	var msg events.Message
	if err := json.Unmarshal(detail, &msg); err != nil {
		return events.Message{}, appErrors.NewValidation("malformed event detail: " + err.Error())
	}
	return msg, nil
}

var _ ports.Publisher = (*Publisher)(nil)
