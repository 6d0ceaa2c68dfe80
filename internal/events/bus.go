// Package events provides the in-process pub/sub bus used for workflow
// progress, cache invalidation and config-change notifications.
package events

import (
	"sync"

	"tbcv/internal/logging"
)

// Topic names used across the system.
const (
	TopicProgress      = "workflow.progress"
	TopicConfigChanged = "config.changed"
	TopicTruthReloaded = "truth.reloaded"
	TopicEnhancement   = "enhancement.applied"
	TopicRollback      = "enhancement.rolled_back"
	TopicCacheInvalidate = "cache.invalidate"
)

// Event is a published message.
type Event struct {
	Topic   string
	Payload map[string]any
}

// Subscription receives events for one subscriber. Events are delivered in
// publish order per subscriber.
type Subscription struct {
	C      chan Event
	topics map[string]bool
	bus    *Bus
	closed bool
}

// Bus is the process-wide event bus.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for the given topics. An empty topic list
// subscribes to everything. The returned channel is buffered; slow consumers
// drop the oldest pending event rather than blocking publishers.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		C:      make(chan Event, 256),
		topics: make(map[string]bool, len(topics)),
		bus:    b,
	}
	for _, t := range topics {
		sub.topics[t] = true
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.bus.subs, s)
	close(s.C)
}

// Publish delivers the event to all matching subscribers in publish order.
func (b *Bus) Publish(topic string, payload map[string]any) {
	ev := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if len(sub.topics) > 0 && !sub.topics[topic] {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			// Drop the oldest event to make room; a stalled consumer must
			// not stall the publisher.
			select {
			case <-sub.C:
			default:
			}
			select {
			case sub.C <- ev:
			default:
				logging.Get(logging.CategoryEvents).Warn("dropping event %s for slow subscriber", topic)
			}
		}
	}
}
