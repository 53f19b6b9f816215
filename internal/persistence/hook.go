// Package persistence defines the pluggable persistence seam named in
// spec.md §1: the orchestration core is in-memory, but the Workflow State
// Manager calls out to a Hook on every mutation so a durable backend can be
// wired in without the core depending on it.
package persistence

import "github.com/aosanya/agentruntime/internal/types"

// Hook receives workflow mutation notifications. The Workflow State Manager
// invokes these synchronously while holding its internal lock, so every
// Manager operation waits for the hook to return. NoopHook returns at once;
// arangohook.Hook performs its database writes inline.
type Hook interface {
	// OnWorkflowMutated is called after a workflow (or one of its tasks) changes.
	OnWorkflowMutated(wf types.WorkflowState)
	// OnWorkflowDeleted is called after a workflow is removed.
	OnWorkflowDeleted(workflowID string)
}

// NoopHook is the default Hook: it discards every notification. The core
// is fully functional in-memory without any persistence backend wired in.
type NoopHook struct{}

func (NoopHook) OnWorkflowMutated(types.WorkflowState) {}
func (NoopHook) OnWorkflowDeleted(string)              {}
