// Package pubsub implements a small synchronous publish/subscribe hub for
// orchestrator lifecycle events (system-ready, system-shutdown, agent-error,
// spec-changed). It is adapted from the teacher's event handler registry
// (internal/events/registry.go): handlers register per-topic or as global
// listeners, and lookup is a simple map scan under a read lock.
package pubsub

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Topic names a class of orchestrator lifecycle event.
type Topic string

const (
	TopicSystemReady    Topic = "system-ready"
	TopicSystemShutdown Topic = "system-shutdown"
	TopicAgentError     Topic = "agent-error"
	TopicSpecChanged    Topic = "spec-changed"
)

// Event is a published notification: its Topic plus free-form payload.
type Event struct {
	Topic   Topic
	Payload interface{}
}

// Handler processes a published event. Handler failures are isolated: one
// handler's error never prevents other handlers from receiving the event.
type Handler func(Event) error

// Hub is a synchronous, in-process publish/subscribe exchange.
type Hub struct {
	mu     sync.RWMutex
	topic  map[Topic][]Handler
	global []Handler
	logger *logrus.Logger
}

// New creates an empty Hub.
func New(logger *logrus.Logger) *Hub {
	return &Hub{
		topic:  make(map[Topic][]Handler),
		logger: logger,
	}
}

// Subscribe registers handler for the named topics. With zero topics, the
// handler is global and receives every published event.
func (h *Hub) Subscribe(handler Handler, topics ...Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(topics) == 0 {
		h.global = append(h.global, handler)
		return
	}
	for _, t := range topics {
		h.topic[t] = append(h.topic[t], handler)
	}
}

// Publish synchronously fans an event out to every global handler and every
// handler subscribed to its topic. A failing handler is logged and does not
// prevent the remaining handlers from running.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.global)+len(h.topic[event.Topic]))
	handlers = append(handlers, h.global...)
	handlers = append(handlers, h.topic[event.Topic]...)
	h.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(event); err != nil && h.logger != nil {
			h.logger.WithError(err).WithField("topic", event.Topic).Warn("pubsub handler failed")
		}
	}
}

// HandlerCount returns the total number of registered handlers (global plus per-topic).
func (h *Hub) HandlerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := len(h.global)
	for _, handlers := range h.topic {
		count += len(handlers)
	}
	return count
}
