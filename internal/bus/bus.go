// Package bus is the in-process notification bus that decouples change
// detection from review processing.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/igorsal/pr-sentinel/internal/interfaces"
)

// Topic names a notification channel
type Topic string

const (
	TopicNewPR           Topic = "new_pr"
	TopicUpdatedPR       Topic = "updated_pr"
	TopicError           Topic = "error"
	TopicWebhookReceived Topic = "webhook_received"
	TopicPREvent         Topic = "pr_event"
	TopicReviewCompleted Topic = "review_completed"
)

// Event is a single published notification
type Event struct {
	Topic       Topic
	Payload     interface{}
	PublishedAt time.Time
}

// Handler receives events for a topic
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers events synchronously, on the publisher's goroutine, to every
// subscriber of the topic in registration order.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[Topic][]subscription
	logger  interfaces.Logger
	metrics interfaces.MetricsCollector
}

// New creates an empty bus
func New(logger interfaces.Logger, metrics interfaces.MetricsCollector) *Bus {
	return &Bus{
		subs:    make(map[Topic][]subscription),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers handler for topic and returns a function that removes it
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// copy so that in-flight Publish snapshots stay intact
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			return
		}
	}
}

// Publish delivers payload to the current subscribers of topic. A panicking
// handler is recovered and logged; the remaining handlers still run.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	event := Event{Topic: topic, Payload: payload, PublishedAt: time.Now()}
	for _, s := range subs {
		b.deliver(s.handler, event)
	}
}

func (b *Bus) deliver(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Notification handler panicked", fmt.Errorf("%v", r), "topic", string(event.Topic))
			b.metrics.IncrementCounter("bus_handler_panics_total", map[string]string{"topic": string(event.Topic)})
		}
	}()
	handler(event)
}

// SubscriberCount returns the number of handlers registered for topic
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
