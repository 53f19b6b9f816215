package types

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusRetrying   TaskStatus = "retrying"
)

// Task is a unit of work owned by an agent inside a workflow.
type Task struct {
	ID            string                 `json:"id"`
	AgentID       string                 `json:"agent_id"`
	Status        TaskStatus             `json:"status"`
	Input         map[string]interface{} `json:"input"`
	Output        map[string]interface{} `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	RetryCount    int                    `json:"retry_count"`
	ParentTaskID  string                 `json:"parent_task_id,omitempty"`
	ChildTaskIDs  []string               `json:"child_task_ids"`
	CreatedAt     time.Time              `json:"created_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// Validate checks the structural invariants of spec.md §3 for Task.
func (t Task) Validate() error {
	var fields []string
	if t.ID == "" {
		fields = append(fields, "id must not be empty")
	}
	if t.AgentID == "" {
		fields = append(fields, "agent_id must not be empty")
	}
	if t.CreatedAt.IsZero() {
		fields = append(fields, "created_at must be set")
	}
	if t.RetryCount < 0 {
		fields = append(fields, "retry_count must be non-negative")
	}
	switch t.Status {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed, TaskStatusRetrying:
	default:
		fields = append(fields, "status is not a recognized task status")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Clone returns a deep-enough copy safe for storing as a snapshot.
func (t Task) Clone() Task {
	clone := t
	if t.Input != nil {
		clone.Input = make(map[string]interface{}, len(t.Input))
		for k, v := range t.Input {
			clone.Input[k] = v
		}
	}
	if t.Output != nil {
		clone.Output = make(map[string]interface{}, len(t.Output))
		for k, v := range t.Output {
			clone.Output[k] = v
		}
	}
	if t.ChildTaskIDs != nil {
		clone.ChildTaskIDs = append([]string(nil), t.ChildTaskIDs...)
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		clone.CompletedAt = &ts
	}
	return clone
}
