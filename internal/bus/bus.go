// Package bus implements the Message Bus: subscription-based routing,
// broadcast, and policy-driven retry (spec.md §4.1).
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentruntime/internal/types"
)

// Handler processes a message delivered to an agent and reports success or
// an error.
type Handler func(ctx context.Context, msg types.Message) error

// subscription is one agent's registration against a set of message kinds.
type subscription struct {
	agentID string
	kinds   map[types.MessageKind]struct{}
	handler Handler
}

// Bus routes messages between registered agent subscriptions.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscription // agentID -> subscription

	histMu  sync.Mutex
	history map[string][]types.Message // workflowID -> ordered messages

	logger *logrus.Logger
}

// New creates an empty Message Bus.
func New(logger *logrus.Logger) *Bus {
	return &Bus{
		subs:    make(map[string]*subscription),
		history: make(map[string][]types.Message),
		logger:  logger,
	}
}

// Subscribe registers a handler for an agent against a set of message
// kinds. Re-subscription replaces the prior registration.
func (b *Bus) Subscribe(agentID string, kinds []types.MessageKind, handler Handler) error {
	if agentID == "" {
		return fmt.Errorf("subscribe: agentID must not be empty")
	}
	if len(kinds) == 0 {
		return fmt.Errorf("subscribe: kinds must not be empty")
	}

	kindSet := make(map[types.MessageKind]struct{}, len(kinds))
	for _, k := range kinds {
		kindSet[k] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[agentID] = &subscription{agentID: agentID, kinds: kindSet, handler: handler}
	return nil
}

// Unsubscribe removes all subscriptions for an agent.
func (b *Bus) Unsubscribe(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, agentID)
}

// HasHandlers reports whether an agent currently has a subscription.
func (b *Bus) HasHandlers(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subs[agentID]
	return ok
}

// MessageHistory returns the ordered list of messages routed for a workflow.
func (b *Bus) MessageHistory(workflowID string) []types.Message {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	hist := b.history[workflowID]
	out := make([]types.Message, len(hist))
	copy(out, hist)
	return out
}

func (b *Bus) appendHistory(msg types.Message) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history[msg.WorkflowID] = append(b.history[msg.WorkflowID], msg)
}

func (b *Bus) lookupSubscription(agentID string) (*subscription, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sub, ok := b.subs[agentID]
	return sub, ok
}

func (b *Bus) subscribersOf(kind types.MessageKind) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*subscription
	for _, sub := range b.subs {
		if _, ok := sub.kinds[kind]; ok {
			out = append(out, sub)
		}
	}
	return out
}

// Route delivers a message. If TargetID is set, delivery is directed: it
// fails if no subscription exists for the target, or if the target is
// subscribed to a different kind. If TargetID is empty, the message is
// broadcast to every subscriber of its kind; zero matching subscribers is
// a vacuous success (spec.md §9 open question, resolved in favor of
// broadcast succeeding vacuously).
//
// A directed message is appended to its workflow history exactly when
// routing is attempted, before handler invocation, so failures remain
// observable (spec.md §4.1).
func (b *Bus) Route(ctx context.Context, msg types.Message) error {
	if msg.TargetID != "" {
		return b.routeDirected(ctx, msg)
	}
	return b.routeBroadcast(ctx, msg)
}

func (b *Bus) routeDirected(ctx context.Context, msg types.Message) error {
	b.appendHistory(msg)

	sub, ok := b.lookupSubscription(msg.TargetID)
	if !ok {
		return fmt.Errorf("route: no subscription for target agent %q", msg.TargetID)
	}
	if _, handles := sub.kinds[msg.Kind]; !handles {
		return fmt.Errorf("route: agent %q is not subscribed to kind %q", msg.TargetID, msg.Kind)
	}

	return sub.handler(ctx, msg)
}

func (b *Bus) routeBroadcast(ctx context.Context, msg types.Message) error {
	subs := b.subscribersOf(msg.Kind)
	if len(subs) == 0 {
		return nil
	}

	var firstErr error
	for _, sub := range subs {
		if err := sub.handler(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Result is the outcome of a SendWithRetry call.
type Result struct {
	Success  bool
	Attempts int
	LastErr  error
}

// IsRetryableFunc classifies an error for retry purposes. The Message Bus
// does not itself own the error taxonomy — it asks the caller (normally
// the Error Handler) whether a category is retryable under the policy.
type IsRetryableFunc func(err error, policy types.RetryPolicy) bool

// SendWithRetry attempts directed delivery up to 1+policy.MaxRetries times
// (spec.md §4.1). Each attempt is bounded by policy.Timeout; a timed-out
// attempt counts as a failed attempt. Between attempts the message's
// retry count is incremented and the bus sleeps backoff(strategy,
// attemptNumber, baseDelay).
func (b *Bus) SendWithRetry(ctx context.Context, msg types.Message, policy types.RetryPolicy, baseDelay time.Duration, retryable IsRetryableFunc) Result {
	attempts := 0
	var lastErr error

	for attempts < 1+policy.MaxRetries {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		err := b.Route(attemptCtx, msg)
		cancel()

		if err == nil {
			return Result{Success: true, Attempts: attempts}
		}
		lastErr = err

		if retryable != nil && !retryable(err, policy) {
			return Result{Success: false, Attempts: attempts, LastErr: lastErr}
		}

		if attempts >= 1+policy.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return Result{Success: false, Attempts: attempts, LastErr: ctx.Err()}
		case <-time.After(Backoff(policy.Backoff, attempts, baseDelay)):
		}

		msg.Metadata.RetryCount++
	}

	return Result{Success: false, Attempts: attempts, LastErr: lastErr}
}

// Backoff computes the delay before the given attempt number under a
// backoff strategy (spec.md §4.1):
//
//	fixed       -> baseDelay
//	linear      -> baseDelay * attemptNumber
//	exponential -> baseDelay * 2^(attemptNumber-1)
func Backoff(strategy types.BackoffStrategy, attemptNumber int, baseDelay time.Duration) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	switch strategy {
	case types.BackoffLinear:
		return baseDelay * time.Duration(attemptNumber)
	case types.BackoffExponential:
		return baseDelay * time.Duration(1<<uint(attemptNumber-1))
	default: // fixed
		return baseDelay
	}
}
