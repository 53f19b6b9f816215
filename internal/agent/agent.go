// Package agent defines the Agent contract the core consumes (spec.md §6)
// and a thread-safe base implementation concrete agents can embed.
//
// The state-guarding pattern (a mutex-protected struct with GetState/
// SetState accessors, plus MarkHealthCheck as the one write that stamps a
// timestamp) is adapted from the teacher's original
// Agent.GetState/SetState/UpdateHeartbeat; the
// business-specific task channels, communication services, and memory
// synchronization it wired are not part of the core's Agent contract and
// have been dropped in favor of the orchestrator-facing handler contract.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/aosanya/agentruntime/internal/types"
)

// HandleResult is the outcome an agent reports for one handled message.
type HandleResult struct {
	Success bool
	Data    map[string]interface{}
	Err     error
}

// HealthResult is the outcome of a health check.
type HealthResult struct {
	Healthy   bool
	Timestamp time.Time
	Details   map[string]interface{}
}

// StatePartial describes the fields SetState may merge into an AgentState.
// Nil fields are left untouched.
type StatePartial struct {
	Status              *types.AgentStatus
	InFlightTaskIDs     []string
	CompletedCount      *int
	FailedCount         *int
	AvgProcessingTimeMS *float64
	LastHealthCheck     *time.Time
	Configuration       map[string]interface{}
}

// Agent is the contract every agent exposes to the core (spec.md §6).
type Agent interface {
	ID() string
	Name() string
	Capabilities() []string
	Configuration() map[string]interface{}

	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	HandleMessage(ctx context.Context, msg types.Message) HandleResult
	CanHandle(msg types.Message) bool

	GetState() types.AgentState
	SetState(partial StatePartial)

	HealthCheck(ctx context.Context) HealthResult
}

// Base implements the state-bookkeeping half of the Agent contract so
// concrete agents only need to provide identity, capabilities, and message
// handling. Embed it and delegate GetState/SetState from the embedding type.
type Base struct {
	mu    sync.RWMutex
	state types.AgentState

	id            string
	name          string
	capabilities  []string
	configuration map[string]interface{}

	nowFn func() time.Time
}

// NewBase constructs a Base in the initializing state.
func NewBase(id, name string, capabilities []string, configuration map[string]interface{}) *Base {
	return &Base{
		id:            id,
		name:          name,
		capabilities:  append([]string(nil), capabilities...),
		configuration: configuration,
		state: types.AgentState{
			AgentID:         id,
			Status:          types.AgentStatusInitializing,
			InFlightTaskIDs: []string{},
			Configuration:   configuration,
		},
		nowFn: time.Now,
	}
}

// ID returns the agent's stable identifier.
func (b *Base) ID() string { return b.id }

// Name returns the agent's human-readable name.
func (b *Base) Name() string { return b.name }

// Capabilities returns the agent's declared capability list.
func (b *Base) Capabilities() []string {
	return append([]string(nil), b.capabilities...)
}

// Configuration returns the agent's free-form configuration mapping.
func (b *Base) Configuration() map[string]interface{} {
	return b.configuration
}

// GetState returns a deep copy of the agent's current state.
func (b *Base) GetState() types.AgentState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Clone()
}

// SetState merges partial into the agent's state.
func (b *Base) SetState(partial StatePartial) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if partial.Status != nil {
		b.state.Status = *partial.Status
	}
	if partial.InFlightTaskIDs != nil {
		b.state.InFlightTaskIDs = append([]string(nil), partial.InFlightTaskIDs...)
	}
	if partial.CompletedCount != nil {
		b.state.CompletedCount = *partial.CompletedCount
	}
	if partial.FailedCount != nil {
		b.state.FailedCount = *partial.FailedCount
	}
	if partial.AvgProcessingTimeMS != nil {
		b.state.AvgProcessingTimeMS = *partial.AvgProcessingTimeMS
	}
	if partial.LastHealthCheck != nil {
		b.state.LastHealthCheck = *partial.LastHealthCheck
	}
	if partial.Configuration != nil {
		b.state.Configuration = partial.Configuration
	}
}

// MarkHealthCheck stamps the agent's last-health-check time to now.
func (b *Base) MarkHealthCheck() {
	now := b.nowFn()
	b.SetState(StatePartial{LastHealthCheck: &now})
}
