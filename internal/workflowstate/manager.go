// Package workflowstate implements the Workflow State Manager: the
// exclusive owner of workflow records, their task trees, and shared
// scratch data (spec.md §4.2).
package workflowstate

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentruntime/internal/persistence"
	"github.com/aosanya/agentruntime/internal/types"
)

// WorkflowPartial describes the fields UpdateWorkflow may merge in.
// Nil fields are left untouched; SharedData is merged shallowly.
type WorkflowPartial struct {
	Status     *types.WorkflowStatus
	SharedData map[string]interface{}
}

// TaskData is the set of fields CreateTask accepts for a new task.
type TaskData struct {
	AgentID      string
	Input        map[string]interface{}
	ParentTaskID string
}

// TaskPartial describes the fields UpdateTask may merge in.
type TaskPartial struct {
	Status      *types.TaskStatus
	Output      map[string]interface{}
	Error       *string
	RetryCount  *int
	CompletedAt *time.Time
}

// Manager owns every WorkflowState in the process.
type Manager struct {
	mu        sync.RWMutex
	workflows map[string]*types.WorkflowState

	persist persistence.Hook
	logger  *logrus.Logger
	nowFn   func() time.Time
	idFn    func() string
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithPersistenceHook wires the pluggable persistence seam named in spec.md §1.
func WithPersistenceHook(hook persistence.Hook) Option {
	return func(m *Manager) { m.persist = hook }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(nowFn func() time.Time) Option {
	return func(m *Manager) { m.nowFn = nowFn }
}

// WithIDGenerator overrides task ID generation, for deterministic tests.
func WithIDGenerator(idFn func() string) Option {
	return func(m *Manager) { m.idFn = idFn }
}

// NewManager creates an empty Workflow State Manager.
func NewManager(logger *logrus.Logger, opts ...Option) *Manager {
	m := &Manager{
		workflows: make(map[string]*types.WorkflowState),
		persist:   persistence.NoopHook{},
		logger:    logger,
		nowFn:     time.Now,
		idFn:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateWorkflow creates a new workflow. Fails if id is empty or already exists.
// When initial is nil or names no initiator, the initiator is "system".
func (m *Manager) CreateWorkflow(id string, initial *types.WorkflowState) (types.WorkflowState, error) {
	if id == "" {
		return types.WorkflowState{}, &types.ValidationError{Fields: []string{"id must not be empty"}}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workflows[id]; exists {
		return types.WorkflowState{}, &types.ValidationError{Fields: []string{"workflow id already exists: " + id}}
	}

	now := m.nowFn()
	wf := types.WorkflowState{
		ID:         id,
		Status:     types.WorkflowStatusPending,
		Tasks:      make(map[string]types.Task),
		SharedData: make(map[string]interface{}),
		Metadata:   types.WorkflowMetadata{CreatedAt: now, UpdatedAt: now},
	}
	if initial != nil {
		if initial.Status != "" {
			wf.Status = initial.Status
		}
		if initial.SharedData != nil {
			for k, v := range initial.SharedData {
				wf.SharedData[k] = v
			}
		}
		if initial.Metadata.InitiatorID != "" {
			wf.Metadata.InitiatorID = initial.Metadata.InitiatorID
		}
	}
	if wf.Metadata.InitiatorID == "" {
		wf.Metadata.InitiatorID = "system"
	}

	if err := wf.Validate(); err != nil {
		return types.WorkflowState{}, err
	}

	m.workflows[id] = &wf
	m.persist.OnWorkflowMutated(wf)
	if m.logger != nil {
		m.logger.WithField("workflow_id", id).Debug("workflow created")
	}
	return wf.Clone(), nil
}

// GetWorkflow returns a deep copy of the workflow, or a lookup error.
func (m *Manager) GetWorkflow(id string) (types.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[id]
	if !ok {
		return types.WorkflowState{}, types.NewLookupError("workflow", id)
	}
	return wf.Clone(), nil
}

// UpdateWorkflow merges status and shared-data into an existing workflow.
func (m *Manager) UpdateWorkflow(id string, partial WorkflowPartial) (types.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[id]
	if !ok {
		return types.WorkflowState{}, types.NewLookupError("workflow", id)
	}

	if partial.Status != nil {
		wf.Status = *partial.Status
	}
	if partial.SharedData != nil {
		if wf.SharedData == nil {
			wf.SharedData = make(map[string]interface{})
		}
		for k, v := range partial.SharedData {
			wf.SharedData[k] = v
		}
	}
	wf.Metadata.UpdatedAt = m.nowFn()

	if err := wf.Validate(); err != nil {
		return types.WorkflowState{}, err
	}

	m.persist.OnWorkflowMutated(*wf)
	return wf.Clone(), nil
}

// DeleteWorkflow removes a workflow and all tasks it owns.
func (m *Manager) DeleteWorkflow(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[id]; !ok {
		return types.NewLookupError("workflow", id)
	}
	delete(m.workflows, id)
	m.persist.OnWorkflowDeleted(id)
	return nil
}

// CreateTask inserts a new task into the named workflow, assigning a fresh
// task id. If parentTaskID is set and the parent exists in the same
// workflow, the parent's child list is updated atomically with the insert
// (spec.md §4.2, §8 invariant 2). A dangling parent reference is tolerated
// (spec.md §9 open question).
func (m *Manager) CreateTask(workflowID string, data TaskData) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[workflowID]
	if !ok {
		return types.Task{}, types.NewLookupError("workflow", workflowID)
	}

	now := m.nowFn()
	task := types.Task{
		ID:           m.idFn(),
		AgentID:      data.AgentID,
		Status:       types.TaskStatusPending,
		Input:        data.Input,
		ParentTaskID: data.ParentTaskID,
		ChildTaskIDs: []string{},
		CreatedAt:    now,
	}
	if err := task.Validate(); err != nil {
		return types.Task{}, err
	}

	wf.Tasks[task.ID] = task
	if data.ParentTaskID != "" {
		if parent, exists := wf.Tasks[data.ParentTaskID]; exists {
			parent.ChildTaskIDs = append(parent.ChildTaskIDs, task.ID)
			wf.Tasks[data.ParentTaskID] = parent
		}
	}
	wf.Metadata.UpdatedAt = now

	m.persist.OnWorkflowMutated(*wf)
	return task.Clone(), nil
}

// GetTask returns a copy of a task from the named workflow.
func (m *Manager) GetTask(workflowID, taskID string) (types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[workflowID]
	if !ok {
		return types.Task{}, types.NewLookupError("workflow", workflowID)
	}
	task, ok := wf.Tasks[taskID]
	if !ok {
		return types.Task{}, types.NewLookupError("task", taskID)
	}
	return task.Clone(), nil
}

// UpdateTask merges status/output/error/retryCount/completedAt into a task.
func (m *Manager) UpdateTask(workflowID, taskID string, partial TaskPartial) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[workflowID]
	if !ok {
		return types.Task{}, types.NewLookupError("workflow", workflowID)
	}
	task, ok := wf.Tasks[taskID]
	if !ok {
		return types.Task{}, types.NewLookupError("task", taskID)
	}

	if partial.Status != nil {
		task.Status = *partial.Status
	}
	if partial.Output != nil {
		task.Output = partial.Output
	}
	if partial.Error != nil {
		task.Error = *partial.Error
	}
	if partial.RetryCount != nil {
		task.RetryCount = *partial.RetryCount
	}
	if partial.CompletedAt != nil {
		task.CompletedAt = partial.CompletedAt
	}

	if err := task.Validate(); err != nil {
		return types.Task{}, err
	}

	wf.Tasks[taskID] = task
	wf.Metadata.UpdatedAt = m.nowFn()
	m.persist.OnWorkflowMutated(*wf)
	return task.Clone(), nil
}

// GetChildTasks returns the tasks listed in a parent's child list, skipping
// any dangling ids defensively (spec.md §4.2).
func (m *Manager) GetChildTasks(workflowID, parentTaskID string) ([]types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[workflowID]
	if !ok {
		return nil, types.NewLookupError("workflow", workflowID)
	}
	parent, ok := wf.Tasks[parentTaskID]
	if !ok {
		return nil, types.NewLookupError("task", parentTaskID)
	}

	children := make([]types.Task, 0, len(parent.ChildTaskIDs))
	for _, childID := range parent.ChildTaskIDs {
		if child, exists := wf.Tasks[childID]; exists {
			children = append(children, child.Clone())
		}
	}
	return children, nil
}
