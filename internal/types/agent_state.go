package types

import "time"

// AgentStatus is the lifecycle state of an Agent as tracked by AgentState.
type AgentStatus string

const (
	AgentStatusInitializing AgentStatus = "initializing"
	AgentStatusReady        AgentStatus = "ready"
	AgentStatusBusy         AgentStatus = "busy"
	AgentStatusError        AgentStatus = "error"
	AgentStatusShutdown     AgentStatus = "shutdown"
)

// AgentState is the runtime snapshot of a single agent.
type AgentState struct {
	AgentID              string                 `json:"agent_id"`
	Status               AgentStatus            `json:"status"`
	InFlightTaskIDs      []string               `json:"in_flight_task_ids"`
	CompletedCount       int                    `json:"completed_count"`
	FailedCount          int                    `json:"failed_count"`
	AvgProcessingTimeMS  float64                `json:"avg_processing_time_ms"`
	LastHealthCheck      time.Time              `json:"last_health_check"`
	Configuration        map[string]interface{} `json:"configuration,omitempty"`
}

// Validate checks the non-negativity invariants of spec.md §3 for AgentState.
func (s AgentState) Validate() error {
	var fields []string
	if s.AgentID == "" {
		fields = append(fields, "agent_id must not be empty")
	}
	if s.CompletedCount < 0 {
		fields = append(fields, "completed_count must be non-negative")
	}
	if s.FailedCount < 0 {
		fields = append(fields, "failed_count must be non-negative")
	}
	if s.AvgProcessingTimeMS < 0 {
		fields = append(fields, "avg_processing_time_ms must be non-negative")
	}
	switch s.Status {
	case AgentStatusInitializing, AgentStatusReady, AgentStatusBusy, AgentStatusError, AgentStatusShutdown:
	default:
		fields = append(fields, "status is not a recognized agent status")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Clone returns a deep-enough copy suitable for a pre/post snapshot.
func (s AgentState) Clone() AgentState {
	clone := s
	if s.InFlightTaskIDs != nil {
		clone.InFlightTaskIDs = append([]string(nil), s.InFlightTaskIDs...)
	}
	if s.Configuration != nil {
		clone.Configuration = make(map[string]interface{}, len(s.Configuration))
		for k, v := range s.Configuration {
			clone.Configuration[k] = v
		}
	}
	return clone
}
