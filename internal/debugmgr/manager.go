// Package debugmgr implements the Debug Manager: independently toggleable
// message, workflow-state, and agent-state snapshot streams, plus replay of
// a recorded workflow into a fresh one (spec.md §4.5).
//
// The snapshot bookkeeping follows the status/result accumulation style of
// the teacher's memory.Synchronizer (internal/memory/synchronizer.go): a
// result struct accumulates counts and errors across a sequence of
// operations without aborting on the first failure.
package debugmgr

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentruntime/internal/types"
)

// DeliveryStatus is the outcome the Debug Manager records for a routed message.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// MessageLogEntry is one recorded attempt to route a message.
type MessageLogEntry struct {
	Message    types.Message
	Status     DeliveryStatus
	Err        error
	RecordedAt time.Time
}

// Config toggles which of the Debug Manager's streams are active. All
// sub-streams default to on once Enabled is set (spec.md §6).
type Config struct {
	Enabled          bool
	LogMessages      bool
	LogRouting       bool
	LogAgentState    bool
	LogWorkflowState bool
}

// DefaultConfig mirrors the spec's recognized configuration keys: disabled
// by default, every sub-stream on once enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		LogMessages:      true,
		LogRouting:       true,
		LogAgentState:    true,
		LogWorkflowState: true,
	}
}

// Manager is the Debug Manager component.
type Manager struct {
	mu sync.RWMutex

	cfg Config

	messages          map[string][]MessageLogEntry   // workflowID -> message log
	workflowSnapshots map[string][]types.WorkflowState // workflowID -> ordered snapshots
	agentSnapshots    map[string][]types.AgentState    // workflowID -> ordered snapshots

	logger *logrus.Logger
	nowFn  func() time.Time
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the time source, for deterministic tests.
func WithClock(nowFn func() time.Time) Option {
	return func(m *Manager) { m.nowFn = nowFn }
}

// New creates a Debug Manager under the given configuration.
func New(cfg Config, logger *logrus.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:               cfg,
		messages:          make(map[string][]MessageLogEntry),
		workflowSnapshots: make(map[string][]types.WorkflowState),
		agentSnapshots:    make(map[string][]types.AgentState),
		logger:            logger,
		nowFn:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetEnabled turns the Debug Manager as a whole on or off.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Enabled = enabled
}

// Enabled reports whether the Debug Manager is currently recording anything.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Enabled
}

// RecordMessage appends a message log entry for workflowID, if enabled.
func (m *Manager) RecordMessage(workflowID string, msg types.Message, status DeliveryStatus, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled || !m.cfg.LogMessages {
		return
	}
	m.messages[workflowID] = append(m.messages[workflowID], MessageLogEntry{
		Message:    msg.Clone(),
		Status:     status,
		Err:        err,
		RecordedAt: m.nowFn(),
	})
}

// RecordWorkflowSnapshot appends a deep-copied workflow-state snapshot, if enabled.
func (m *Manager) RecordWorkflowSnapshot(workflowID string, wf types.WorkflowState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled || !m.cfg.LogWorkflowState {
		return
	}
	m.workflowSnapshots[workflowID] = append(m.workflowSnapshots[workflowID], wf.Clone())
}

// RecordAgentSnapshot appends a deep-copied agent-state snapshot under
// workflowID, if enabled.
func (m *Manager) RecordAgentSnapshot(workflowID string, state types.AgentState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled || !m.cfg.LogAgentState {
		return
	}
	m.agentSnapshots[workflowID] = append(m.agentSnapshots[workflowID], state.Clone())
}

// MessageLog returns a copy of the recorded message log entries for workflowID.
func (m *Manager) MessageLog(workflowID string) []MessageLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.messages[workflowID]
	out := make([]MessageLogEntry, len(entries))
	copy(out, entries)
	return out
}

// WorkflowSnapshots returns a copy of the recorded workflow-state snapshots for workflowID.
func (m *Manager) WorkflowSnapshots(workflowID string) []types.WorkflowState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.workflowSnapshots[workflowID]
	out := make([]types.WorkflowState, len(snaps))
	copy(out, snaps)
	return out
}

// AgentSnapshots returns a copy of the recorded agent-state snapshots for workflowID.
func (m *Manager) AgentSnapshots(workflowID string) []types.AgentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.agentSnapshots[workflowID]
	out := make([]types.AgentState, len(snaps))
	copy(out, snaps)
	return out
}
