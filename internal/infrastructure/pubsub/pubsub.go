// Package pubsub provides an in-process topic broker that serves as the
// event source for subscriptions. Subscribers are keyed by topic; each
// subscriber gets its own buffered channel and delivery goroutine so events
// reach a subscription in publish order without blocking publishers.
package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"go-subscription-ws/internal/infrastructure/logger"
	"go-subscription-ws/internal/protocol"
)

// ErrTopicRequired is returned when a subscription names no topic.
var ErrTopicRequired = errors.New("subscription topic is required")

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Broker implements protocol.EventSource over named topics.
type Broker struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*subscriber
	bufferSize int
	logger     logger.Logger
}

var _ protocol.EventSource = (*Broker)(nil)

type subscriber struct {
	id     string
	topic  string
	ch     chan protocol.Event
	sink   protocol.Sink
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a broker. A bufferSize <= 0 selects DefaultBufferSize.
func New(bufferSize int, log logger.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broker{
		topics:     make(map[string]map[string]*subscriber),
		bufferSize: bufferSize,
		logger:     log.WithField("component", "pubsub"),
	}
}

// Topic resolves the topic a subscription listens on: the "topic" variable
// when present, otherwise the operation name.
func Topic(params *protocol.SubscriptionParams) (string, error) {
	if t, ok := params.Variables["topic"].(string); ok && t != "" {
		return t, nil
	}
	if params.OperationName != "" {
		return params.OperationName, nil
	}
	return "", ErrTopicRequired
}

// Subscribe registers params.Sink on the resolved topic. The returned handle
// is the subscriber id. ctx only bounds this call.
func (b *Broker) Subscribe(ctx context.Context, params *protocol.SubscriptionParams) (protocol.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.Sink == nil {
		return nil, errors.New("subscription sink is required")
	}

	topic, err := Topic(params)
	if err != nil {
		return nil, protocol.NewExecutionError(err.Error())
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:     uuid.NewString(),
		topic:  topic,
		ch:     make(chan protocol.Event, b.bufferSize),
		sink:   params.Sink,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]*subscriber)
		b.topics[topic] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	go sub.deliver(subCtx)

	b.logger.Debugf("subscriber %s joined topic %s", sub.id, topic)
	return sub.id, nil
}

// Unsubscribe removes the subscriber and waits for its delivery goroutine to
// stop, so no event reaches the sink afterwards. Unknown handles are ignored.
func (b *Broker) Unsubscribe(handle protocol.Handle) {
	id, ok := handle.(string)
	if !ok {
		return
	}

	b.mu.Lock()
	var sub *subscriber
	for topic, subs := range b.topics {
		if s, exists := subs[id]; exists {
			sub = s
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
			break
		}
	}
	b.mu.Unlock()

	if sub == nil {
		return
	}
	sub.cancel()
	<-sub.done
	b.logger.Debugf("subscriber %s left topic %s", sub.id, sub.topic)
}

// Publish hands event to every subscriber of topic and returns how many
// accepted it. Subscribers whose queue is full miss the event.
func (b *Broker) Publish(ctx context.Context, topic string, event protocol.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if topic == "" {
		return 0, ErrTopicRequired
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.topics[topic] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			b.logger.Warnf("subscriber %s on topic %s is full, dropping event", sub.id, topic)
		}
	}
	return delivered, nil
}

// SubscriberCount returns the number of subscribers of topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Topics returns every topic with at least one subscriber.
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.topics))
	for t := range b.topics {
		topics = append(topics, t)
	}
	return topics
}

func (s *subscriber) deliver(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case event := <-s.ch:
			s.sink.Send(event)
		case <-ctx.Done():
			return
		}
	}
}
