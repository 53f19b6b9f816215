package debugmgr

import (
	"context"
	"fmt"

	"github.com/aosanya/agentruntime/internal/types"
)

// Router is the subset of the Message Bus's contract replay needs.
type Router interface {
	Route(ctx context.Context, msg types.Message) error
}

// WorkflowStore is the subset of the Workflow State Manager's contract
// replay needs to seed and read back a fresh workflow.
type WorkflowStore interface {
	CreateWorkflow(id string, initial *types.WorkflowState) (types.WorkflowState, error)
	GetWorkflow(id string) (types.WorkflowState, error)
}

// ReplayFailure records one message that failed to re-route during replay.
type ReplayFailure struct {
	MessageID string
	Err       string
}

// ReplayResult is the outcome of a Replay call (spec.md §4.5, §7).
type ReplayResult struct {
	NewWorkflowID string
	Success       bool
	ReplayedCount int
	Failures      []ReplayFailure
	FinalState    *types.WorkflowState
}

// Replay recreates a recorded workflow's message sequence into a fresh
// workflow id of the form "<orig>-replay-<timestamp>". It seeds the new
// workflow from the earliest recorded workflow-state snapshot if one
// exists, then re-routes every logged message in recorded order with a
// rewritten workflow id, a derived message id ("<origId>-replay"), a fresh
// timestamp, and zero retry count. Per-message failures are recorded
// without aborting the sequence (spec.md §4.5).
func (m *Manager) Replay(ctx context.Context, origWorkflowID string, bus Router, store WorkflowStore) (ReplayResult, error) {
	now := m.nowFn()
	newWorkflowID := fmt.Sprintf("%s-replay-%d", origWorkflowID, now.UnixNano())

	m.mu.RLock()
	snapshots := append([]types.WorkflowState(nil), m.workflowSnapshots[origWorkflowID]...)
	entries := append([]MessageLogEntry(nil), m.messages[origWorkflowID]...)
	m.mu.RUnlock()

	var seed *types.WorkflowState
	if len(snapshots) > 0 {
		copied := snapshots[0].Clone()
		seed = &copied
	} else {
		seed = &types.WorkflowState{Metadata: types.WorkflowMetadata{InitiatorID: "debug-replay"}}
	}

	if _, err := store.CreateWorkflow(newWorkflowID, seed); err != nil {
		return ReplayResult{}, fmt.Errorf("replay: seed workflow %q: %w", newWorkflowID, err)
	}

	result := ReplayResult{NewWorkflowID: newWorkflowID, Success: true}
	for _, entry := range entries {
		rewritten := entry.Message.Clone()
		rewritten.WorkflowID = newWorkflowID
		rewritten.ID = entry.Message.ID + "-replay"
		rewritten.Metadata.CreatedAt = m.nowFn()
		rewritten.Metadata.RetryCount = 0

		if err := bus.Route(ctx, rewritten); err != nil {
			result.Success = false
			result.Failures = append(result.Failures, ReplayFailure{MessageID: rewritten.ID, Err: err.Error()})
			if m.logger != nil {
				m.logger.WithError(err).WithField("message_id", rewritten.ID).Warn("replay message failed")
			}
			continue
		}
		result.ReplayedCount++
	}

	if final, err := store.GetWorkflow(newWorkflowID); err == nil {
		result.FinalState = &final
	}

	return result, nil
}
