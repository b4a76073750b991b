package changefeed

import (
	"context"
	"log/slog"
	"sync"

	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/services"
	"jokernotes/internal/metrics"
)

// DefaultBufferSize is the per-subscriber queue length
const DefaultBufferSize = 64

type subscriber struct {
	ch chan models.ChangeEvent
}

// Broker fans change events out to in-process subscribers by topic.
// Publish never blocks: a subscriber whose buffer is full misses the event
// and is expected to re-query.
type Broker struct {
	mu         sync.RWMutex
	topics     map[string]map[*subscriber]struct{}
	bufferSize int
	closed     bool
	logger     *slog.Logger
}

// NewBroker creates a broker. bufferSize <= 0 uses DefaultBufferSize.
func NewBroker(bufferSize int, logger *slog.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broker{
		topics:     make(map[string]map[*subscriber]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

var (
	_ services.ChangePublisher  = (*Broker)(nil)
	_ services.ChangeSubscriber = (*Broker)(nil)
)

// Publish delivers evt to every subscriber of any of its topics
func (b *Broker) Publish(_ context.Context, evt models.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	metrics.ChangeEventsPublished.WithLabelValues(string(evt.Type)).Inc()

	for _, topic := range evt.Topics {
		for sub := range b.topics[topic] {
			select {
			case sub.ch <- evt:
			default:
				metrics.ChangeEventsDropped.Inc()
				b.logger.Debug("change event dropped for slow subscriber",
					"topic", topic,
					"type", evt.Type,
					"document_id", evt.DocumentID,
				)
			}
		}
	}
	return nil
}

// Subscribe registers for events on topic. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe(topic string) (<-chan models.ChangeEvent, func()) {
	sub := &subscriber{ch: make(chan models.ChangeEvent, b.bufferSize)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscriber]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()
	metrics.ChangeSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs, ok := b.topics[topic]
			if !ok {
				return
			}
			if _, ok := subs[sub]; !ok {
				return
			}
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
			close(sub.ch)
			metrics.ChangeSubscribers.Dec()
		})
	}
	return sub.ch, cancel
}

// Close ends every subscription. Later publishes are discarded.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for sub := range subs {
			close(sub.ch)
			metrics.ChangeSubscribers.Dec()
		}
		delete(b.topics, topic)
	}
}
