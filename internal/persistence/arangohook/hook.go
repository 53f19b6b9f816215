// Package arangohook is an optional, concrete implementation of
// persistence.Hook that mirrors workflow mutations into ArangoDB, the way
// the teacher's internal/workflow.ArangoRepository persists its own
// workflow definitions. It is never wired in by default — the
// orchestration core stays in-memory unless a caller explicitly
// constructs one of these against a running database.
package arangohook

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver"
	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentruntime/internal/types"
)

const (
	workflowsCollection = "orchestration_workflows"
	tasksCollection     = "orchestration_tasks"
)

// workflowDocument is the ArangoDB representation of a types.WorkflowState,
// with a `_key` field ArangoDB requires for document identity.
type workflowDocument struct {
	Key        string                 `json:"_key"`
	Status     types.WorkflowStatus   `json:"status"`
	SharedData map[string]interface{} `json:"shared_data"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type taskDocument struct {
	Key        string          `json:"_key"`
	WorkflowID string          `json:"workflow_id"`
	Task       types.Task      `json:"task"`
}

// Hook persists workflow and task mutations to ArangoDB collections.
type Hook struct {
	db     driver.Database
	logger *logrus.Logger
	ctx    context.Context
}

// New creates an arangohook.Hook, ensuring its collections exist.
func New(ctx context.Context, db driver.Database, logger *logrus.Logger) (*Hook, error) {
	h := &Hook{db: db, logger: logger, ctx: ctx}
	if err := h.ensureCollection(ctx, workflowsCollection); err != nil {
		return nil, fmt.Errorf("failed to ensure workflows collection: %w", err)
	}
	if err := h.ensureCollection(ctx, tasksCollection); err != nil {
		return nil, fmt.Errorf("failed to ensure tasks collection: %w", err)
	}
	return h, nil
}

func (h *Hook) ensureCollection(ctx context.Context, name string) error {
	exists, err := h.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		if _, err := h.db.CreateCollection(ctx, name, nil); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		h.logger.Infof("arangohook: created collection %s", name)
	}
	return nil
}

// OnWorkflowMutated upserts the workflow document and every task document.
// Errors are logged rather than propagated: the persistence hook is a
// best-effort mirror, never a gate on the in-memory core's correctness.
func (h *Hook) OnWorkflowMutated(wf types.WorkflowState) {
	col, err := h.db.Collection(h.ctx, workflowsCollection)
	if err != nil {
		h.logger.WithError(err).Error("arangohook: failed to get workflows collection")
		return
	}

	doc := workflowDocument{
		Key:        wf.ID,
		Status:     wf.Status,
		SharedData: wf.SharedData,
		CreatedAt:  wf.Metadata.CreatedAt,
		UpdatedAt:  wf.Metadata.UpdatedAt,
	}

	if exists, _ := col.DocumentExists(h.ctx, wf.ID); exists {
		if _, err := col.UpdateDocument(h.ctx, wf.ID, doc); err != nil {
			h.logger.WithError(err).WithField("workflow_id", wf.ID).Error("arangohook: failed to update workflow document")
		}
	} else if _, err := col.CreateDocument(h.ctx, doc); err != nil {
		h.logger.WithError(err).WithField("workflow_id", wf.ID).Error("arangohook: failed to create workflow document")
	}

	tasksCol, err := h.db.Collection(h.ctx, tasksCollection)
	if err != nil {
		h.logger.WithError(err).Error("arangohook: failed to get tasks collection")
		return
	}
	for _, task := range wf.Tasks {
		tdoc := taskDocument{Key: wf.ID + "__" + task.ID, WorkflowID: wf.ID, Task: task}
		if exists, _ := tasksCol.DocumentExists(h.ctx, tdoc.Key); exists {
			if _, err := tasksCol.UpdateDocument(h.ctx, tdoc.Key, tdoc); err != nil {
				h.logger.WithError(err).WithField("task_id", task.ID).Error("arangohook: failed to update task document")
			}
		} else if _, err := tasksCol.CreateDocument(h.ctx, tdoc); err != nil {
			h.logger.WithError(err).WithField("task_id", task.ID).Error("arangohook: failed to create task document")
		}
	}
}

// OnWorkflowDeleted removes the workflow document; task documents are left
// for audit purposes, mirroring the teacher's soft-delete convention.
func (h *Hook) OnWorkflowDeleted(workflowID string) {
	col, err := h.db.Collection(h.ctx, workflowsCollection)
	if err != nil {
		h.logger.WithError(err).Error("arangohook: failed to get workflows collection")
		return
	}
	if _, err := col.RemoveDocument(h.ctx, workflowID); err != nil {
		h.logger.WithError(err).WithField("workflow_id", workflowID).Warn("arangohook: failed to remove workflow document")
	}
}
