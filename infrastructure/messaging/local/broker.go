// Package local is an in-process broadcast channel for the standalone
// server. Every subscriber consumes from its own queue on its own goroutine;
// a failing handler is retried with backoff, giving at-least-once delivery
// to each subscriber and preserving publish order per subscriber.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const queueSize = 1024

type subscriber struct {
	name    string
	handler ports.MessageHandler
	queue   chan events.Message
}

// Broker fans every published message out to all subscribers of its topic.
type Broker struct {
	mu      sync.RWMutex
	topics  map[string][]*subscriber
	running bool

	maxRedeliver int
	retryDelay   time.Duration
	logger       *zap.Logger
	wg           sync.WaitGroup
}

// NewBroker creates a broker. A handler failing maxRedeliver times in a row
// gets the message dropped and logged.
func NewBroker(maxRedeliver int, retryDelay time.Duration, logger *zap.Logger) *Broker {
	return &Broker{
		topics:       make(map[string][]*subscriber),
		maxRedeliver: maxRedeliver,
		retryDelay:   retryDelay,
		logger:       logger,
	}
}

// EnsureTopic creates topic if it does not exist.
func (b *Broker) EnsureTopic(_ context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = nil
	}
	return nil
}

// Subscribe registers handler on topic, creating the topic if needed. It
// must be called before Run.
func (b *Broker) Subscribe(topic, name string, handler ports.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("subscribe %s to %s: broker already running", name, topic)
	}
	b.topics[topic] = append(b.topics[topic], &subscriber{
		name:    name,
		handler: handler,
		queue:   make(chan events.Message, queueSize),
	})
	return nil
}

// Publish enqueues msgs for every subscriber of topic, in order.
func (b *Broker) Publish(ctx context.Context, topic string, msgs ...events.Message) error {
	b.mu.RLock()
	subs, ok := b.topics[topic]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("publish to %s: topic does not exist", topic)
	}

	for _, sub := range subs {
		for _, msg := range msgs {
			select {
			case sub.queue <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Run consumes all subscriber queues until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	var subs []*subscriber
	for _, s := range b.topics {
		subs = append(subs, s...)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		b.wg.Add(1)
		go func(sub *subscriber) {
			defer b.wg.Done()
			b.consume(ctx, sub)
		}(sub)
	}
	b.wg.Wait()
	return nil
}

func (b *Broker) consume(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.queue:
			b.deliver(ctx, sub, msg)
		}
	}
}

func (b *Broker) deliver(ctx context.Context, sub *subscriber, msg events.Message) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.retryDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, sub.handler(ctx, msg)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(b.maxRedeliver+1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			b.logger.Warn("Handler failed, redelivering",
				zap.String("subscriber", sub.name),
				zap.Int("attempt", attempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)
	if err != nil && ctx.Err() == nil {
		b.logger.Error("Dropping message after redelivery attempts",
			zap.String("subscriber", sub.name),
			zap.String("topic", msg.Topic),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
}

var _ ports.Publisher = (*Broker)(nil)
