// Package allocator implements the Resource Allocator: per-agent priority
// queues, starvation detection, and fair scheduling (spec.md §4.4).
//
// The queue itself is adapted from the teacher's task scheduler
// (internal/task/scheduler.go): a container/heap priority queue ordered by
// priority then FIFO creation time. The allocator drops that scheduler's
// worker pool and dispatch loop entirely — the Orchestrator drives dequeue
// and scheduling decisions directly, it does not need a background runtime.
package allocator

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentruntime/internal/types"
)

var (
	// ErrAgentNotRegistered is returned by operations against an agent id
	// the allocator does not know about.
	ErrAgentNotRegistered = errors.New("allocator: agent not registered")
	// ErrAgentAlreadyRegistered is returned by RegisterAgent on a duplicate id.
	ErrAgentAlreadyRegistered = errors.New("allocator: agent already registered")
)

// queuedMessage pairs a message with the sequence number it was enqueued
// under, used only to keep FIFO ties stable in the heap.
type queuedMessage struct {
	msg       types.Message
	createdAt time.Time
	seq       uint64
}

// messageQueue implements heap.Interface ordered by descending priority
// then ascending creation time, breaking remaining ties by enqueue order.
type messageQueue []*queuedMessage

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	pi, pj := q[i].msg.Metadata.Priority.Rank(), q[j].msg.Metadata.Priority.Rank()
	if pi != pj {
		return pi > pj
	}
	if !q[i].createdAt.Equal(q[j].createdAt) {
		return q[i].createdAt.Before(q[j].createdAt)
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x interface{}) {
	*q = append(*q, x.(*queuedMessage))
}

func (q *messageQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[0 : n-1]
	return item
}

// agentRecord holds one registered agent's queue and scheduling metrics.
type agentRecord struct {
	queue messageQueue

	avgProcessingTime time.Duration
	processedCount    int64
	lastProcessedAt   time.Time
	starved           bool
}

// Config carries the allocator's tunable thresholds (spec.md §6).
type Config struct {
	StarvationThreshold  time.Duration
	FairnessWindow       int
	PriorityBoostStarved float64
}

// DefaultConfig mirrors the spec's default configuration keys.
func DefaultConfig() Config {
	return Config{
		StarvationThreshold:  5000 * time.Millisecond,
		FairnessWindow:       100,
		PriorityBoostStarved: 10,
	}
}

// Decision is the outcome of ScheduleNextAgent.
type Decision struct {
	AgentID  string
	Priority float64
	Reason   string
}

// Allocator implements the Resource Allocator component.
type Allocator struct {
	mu     sync.Mutex
	agents map[string]*agentRecord
	seq    uint64

	cfg    Config
	logger *logrus.Logger
	nowFn  func() time.Time
}

// Option configures an Allocator at construction time.
type Option func(*Allocator)

// WithClock overrides the allocator's time source, for deterministic tests.
func WithClock(nowFn func() time.Time) Option {
	return func(a *Allocator) { a.nowFn = nowFn }
}

// New creates a Resource Allocator.
func New(cfg Config, logger *logrus.Logger, opts ...Option) *Allocator {
	a := &Allocator{
		agents: make(map[string]*agentRecord),
		cfg:    cfg,
		logger: logger,
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterAgent creates an empty queue and zeroed metrics for agentID.
func (a *Allocator) RegisterAgent(agentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.agents[agentID]; ok {
		return fmt.Errorf("%w: %s", ErrAgentAlreadyRegistered, agentID)
	}
	a.agents[agentID] = &agentRecord{queue: make(messageQueue, 0)}
	return nil
}

// DeregisterAgent removes an agent's queue and metrics entirely.
func (a *Allocator) DeregisterAgent(agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.agents, agentID)
}

// Enqueue adds a message to agentID's queue. Fails if the agent is not registered.
func (a *Allocator) Enqueue(agentID string, msg types.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotRegistered, agentID)
	}

	a.seq++
	heap.Push(&rec.queue, &queuedMessage{msg: msg, createdAt: a.nowFn(), seq: a.seq})
	return nil
}

// Dequeue returns the next message for agentID under priority-then-FIFO
// ordering, or ok=false if the queue is empty. Fails if unregistered.
func (a *Allocator) Dequeue(agentID string) (msg types.Message, ok bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, registered := a.agents[agentID]
	if !registered {
		return types.Message{}, false, fmt.Errorf("%w: %s", ErrAgentNotRegistered, agentID)
	}
	if len(rec.queue) == 0 {
		return types.Message{}, false, nil
	}

	item := heap.Pop(&rec.queue).(*queuedMessage)
	return item.msg, true, nil
}

// QueueSize reports the number of messages currently queued for agentID.
func (a *Allocator) QueueSize(agentID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.agents[agentID]
	if !ok {
		return 0
	}
	return len(rec.queue)
}

// RecordProcessing updates agentID's rolling average processing time,
// increments its processed count, stamps last-processed time, and clears
// the starved flag (spec.md §4.4).
func (a *Allocator) RecordProcessing(agentID string, elapsed time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.agents[agentID]
	if !ok {
		return
	}

	if rec.processedCount == 0 {
		rec.avgProcessingTime = elapsed
	} else {
		rec.avgProcessingTime = time.Duration(0.7*float64(rec.avgProcessingTime) + 0.3*float64(elapsed))
	}
	rec.processedCount++
	rec.lastProcessedAt = a.nowFn()
	rec.starved = false
}

// DetectStarvation marks every registered agent with a non-empty queue
// whose last-processed time is older than the configured threshold as
// starved, and returns the ids of agents currently starved.
func (a *Allocator) DetectStarvation() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.nowFn()
	var starved []string
	for agentID, rec := range a.agents {
		if len(rec.queue) == 0 {
			continue
		}

		reference := rec.lastProcessedAt
		if reference.IsZero() {
			// Never processed: measure from the oldest queued message.
			reference = rec.queue[0].createdAt
			for _, item := range rec.queue {
				if item.createdAt.Before(reference) {
					reference = item.createdAt
				}
			}
		}

		if now.Sub(reference) >= a.cfg.StarvationThreshold {
			rec.starved = true
		}
		if rec.starved {
			starved = append(starved, agentID)
		}
	}
	return starved
}

// ScheduleNextAgent picks the agent with the highest scheduling priority
// among candidateIds, excluding agents with empty queues. The priority is
// the sum of a starvation boost, a queue-size contribution, an aging
// contribution, and an under-average bonus (spec.md §4.4).
func (a *Allocator) ScheduleNextAgent(candidateIDs []string) (Decision, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(candidateIDs) == 0 {
		return Decision{}, false
	}

	now := a.nowFn()

	var totalProcessed int64
	var registeredCount int64
	for _, rec := range a.agents {
		totalProcessed += rec.processedCount
		registeredCount++
	}
	var meanProcessed float64
	if registeredCount > 0 {
		meanProcessed = float64(totalProcessed) / float64(registeredCount)
	}

	var best *Decision
	var bestReasonParts []string
	for _, agentID := range candidateIDs {
		rec, ok := a.agents[agentID]
		if !ok || len(rec.queue) == 0 {
			continue
		}

		var priority float64
		var reasons []string

		if rec.starved {
			priority += a.cfg.PriorityBoostStarved
			reasons = append(reasons, "starved")
		}

		queueContribution := minFloat(float64(len(rec.queue))/10, 5)
		priority += queueContribution
		reasons = append(reasons, fmt.Sprintf("queue_size=%d", len(rec.queue)))

		var secondsSinceLastProcessed float64
		if !rec.lastProcessedAt.IsZero() {
			secondsSinceLastProcessed = now.Sub(rec.lastProcessedAt).Seconds()
		}
		agingContribution := minFloat(secondsSinceLastProcessed, 5)
		priority += agingContribution

		if float64(rec.processedCount) < meanProcessed {
			priority += 3
			reasons = append(reasons, "under_average")
		}

		if best == nil || priority > best.Priority {
			best = &Decision{AgentID: agentID, Priority: priority}
			bestReasonParts = reasons
		}
	}

	if best == nil {
		return Decision{}, false
	}
	best.Reason = joinReasons(bestReasonParts)
	return *best, true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func joinReasons(parts []string) string {
	if len(parts) == 0 {
		return "default"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
