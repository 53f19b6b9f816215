package errorhandler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentruntime/internal/types"
)

// Context is the structured context an error is handled with.
type Context struct {
	WorkflowID string
	TaskID     string
	AgentID    string
	Operation  string
	Timestamp  time.Time
	Data       map[string]interface{}
}

// LogEntry is a stored record of one handled error.
type LogEntry struct {
	ID        string
	Err       error
	Category  types.ErrorCategory
	Context   Context
	Stack     string
}

// Notification is delivered to a dependent agent's handler when a
// system-category error is handled for the agent it depends on.
type Notification struct {
	FailedAgentID string
	Err           error
	Category      types.ErrorCategory
	Context       Context
	Timestamp     time.Time
}

// NotificationHandler is invoked once per dependent per notified failure.
type NotificationHandler func(ctx context.Context, n Notification) error

// Handler implements the Error Handler component (spec.md §4.3).
type Handler struct {
	mu    sync.RWMutex
	log   []LogEntry
	graph *DependencyGraph

	handlersMu sync.RWMutex
	handlers   map[string]NotificationHandler // agentID -> its notification handler

	logger *logrus.Logger
}

// New creates an Error Handler.
func New(logger *logrus.Logger) *Handler {
	return &Handler{
		graph:    NewDependencyGraph(),
		handlers: make(map[string]NotificationHandler),
		logger:   logger,
	}
}

// RegisterDependency records that dependentAgentID depends on sourceAgentID.
func (h *Handler) RegisterDependency(dependentAgentID, sourceAgentID string) {
	h.graph.AddDependency(dependentAgentID, sourceAgentID)
}

// RegisterNotificationHandler wires an agent's notification handler so it
// can be invoked when an agent it depends on fails.
func (h *Handler) RegisterNotificationHandler(agentID string, handler NotificationHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[agentID] = handler
}

// UnregisterNotificationHandler removes a previously registered handler.
func (h *Handler) UnregisterNotificationHandler(agentID string) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	delete(h.handlers, agentID)
}

// Handle classifies err, logs it with context, and — for system-category
// failures — notifies every registered dependent concurrently. It returns
// the classification and the strategy-table entry for the category.
func (h *Handler) Handle(ctx context.Context, err error, errCtx Context) (types.ErrorCategory, Strategy) {
	cat := Classify(err)
	strategy := StrategyFor(cat)

	if errCtx.Timestamp.IsZero() {
		errCtx.Timestamp = time.Now()
	}

	entry := LogEntry{
		ID:       uuid.NewString(),
		Err:      err,
		Category: cat,
		Context:  errCtx,
		Stack:    string(debug.Stack()),
	}

	h.mu.Lock()
	h.log = append(h.log, entry)
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"log_id":      entry.ID,
			"category":    cat,
			"workflow_id": errCtx.WorkflowID,
			"agent_id":    errCtx.AgentID,
			"operation":   errCtx.Operation,
		}).WithError(err).Warn("error handled")
	}

	if strategy.NotifyDependents {
		h.NotifyDependents(ctx, errCtx.AgentID, err, cat, errCtx)
	}

	return cat, strategy
}

// NotifyDependents invokes every registered dependent's notification
// handler concurrently. A single notify call enumerates direct dependents
// only — it never recurses through the graph (spec.md §9). Individual
// handler failures are caught and logged without aborting other
// notifications (spec.md §4.3, §7).
func (h *Handler) NotifyDependents(ctx context.Context, failedAgentID string, err error, cat types.ErrorCategory, errCtx Context) {
	dependents := h.graph.Dependents(failedAgentID)
	if len(dependents) == 0 {
		return
	}

	notification := Notification{
		FailedAgentID: failedAgentID,
		Err:           err,
		Category:      cat,
		Context:       errCtx,
		Timestamp:     time.Now(),
	}

	var wg sync.WaitGroup
	for _, dependentID := range dependents {
		h.handlersMu.RLock()
		handler, ok := h.handlers[dependentID]
		h.handlersMu.RUnlock()
		if !ok {
			continue
		}

		wg.Add(1)
		go func(id string, nh NotificationHandler) {
			defer wg.Done()
			if nerr := nh(ctx, notification); nerr != nil && h.logger != nil {
				h.logger.WithError(nerr).WithField("dependent_agent_id", id).
					Warn("dependent notification handler failed")
			}
		}(dependentID, handler)
	}
	wg.Wait()
}

// LogEntries returns a copy of the log, optionally filtered.
func (h *Handler) LogEntries() []LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]LogEntry, len(h.log))
	copy(out, h.log)
	return out
}

// LogByWorkflow returns log entries for a given workflow id.
func (h *Handler) LogByWorkflow(workflowID string) []LogEntry {
	return h.filter(func(e LogEntry) bool { return e.Context.WorkflowID == workflowID })
}

// LogByAgent returns log entries for a given agent id.
func (h *Handler) LogByAgent(agentID string) []LogEntry {
	return h.filter(func(e LogEntry) bool { return e.Context.AgentID == agentID })
}

// LogByCategory returns log entries of a given category.
func (h *Handler) LogByCategory(cat types.ErrorCategory) []LogEntry {
	return h.filter(func(e LogEntry) bool { return e.Category == cat })
}

func (h *Handler) filter(pred func(LogEntry) bool) []LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]LogEntry, 0)
	for _, e := range h.log {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}
