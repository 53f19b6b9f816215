package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	base := Message{
		ID:         "m1",
		Kind:       MessageKindTaskRequest,
		WorkflowID: "w1",
		SourceID:   "s1",
		Metadata:   MessageMetadata{CreatedAt: time.Now(), Priority: PriorityNormal},
	}
	require.NoError(t, base.Validate())

	cases := []struct {
		name string
		mut  func(m Message) Message
	}{
		{"empty id", func(m Message) Message { m.ID = ""; return m }},
		{"empty workflow", func(m Message) Message { m.WorkflowID = ""; return m }},
		{"empty source", func(m Message) Message { m.SourceID = ""; return m }},
		{"bad kind", func(m Message) Message { m.Kind = "bogus"; return m }},
		{"negative retry", func(m Message) Message { m.Metadata.RetryCount = -1; return m }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.mut(base).Validate()
			assert.Error(t, err)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestMessageCloneIsIndependent(t *testing.T) {
	m := Message{Payload: map[string]interface{}{"x": 1}}
	clone := m.Clone()
	clone.Payload["x"] = 2
	assert.Equal(t, 1, m.Payload["x"])
	assert.Equal(t, 2, clone.Payload["x"])
}

func TestPriorityRank(t *testing.T) {
	assert.True(t, PriorityCritical.Rank() > PriorityHigh.Rank())
	assert.True(t, PriorityHigh.Rank() > PriorityNormal.Rank())
	assert.True(t, PriorityNormal.Rank() > PriorityLow.Rank())
	assert.Equal(t, PriorityNormal.Rank(), Priority("unknown").Rank())
}

func TestTaskValidate(t *testing.T) {
	valid := Task{ID: "t1", AgentID: "a1", Status: TaskStatusPending, CreatedAt: time.Now()}
	require.NoError(t, valid.Validate())

	invalid := Task{ID: "", AgentID: "", Status: "bogus", CreatedAt: time.Time{}, RetryCount: -1}
	err := invalid.Validate()
	require.Error(t, err)
	ve := err.(*ValidationError)
	assert.Len(t, ve.Fields, 5)
}

func TestTaskCloneDeepCopiesChildren(t *testing.T) {
	task := Task{ChildTaskIDs: []string{"a", "b"}}
	clone := task.Clone()
	clone.ChildTaskIDs[0] = "mutated"
	assert.Equal(t, "a", task.ChildTaskIDs[0])
}

func TestWorkflowStateValidate(t *testing.T) {
	valid := WorkflowState{ID: "w1", Status: WorkflowStatusPending, Tasks: map[string]Task{}, Metadata: WorkflowMetadata{InitiatorID: "init"}}
	require.NoError(t, valid.Validate())

	invalid := WorkflowState{}
	err := invalid.Validate()
	require.Error(t, err)
}

func TestWorkflowStatusTerminal(t *testing.T) {
	assert.True(t, WorkflowStatusCompleted.Terminal())
	assert.True(t, WorkflowStatusFailed.Terminal())
	assert.True(t, WorkflowStatusCancelled.Terminal())
	assert.False(t, WorkflowStatusPending.Terminal())
	assert.False(t, WorkflowStatusInProgress.Terminal())
}

func TestAgentSpecValidate(t *testing.T) {
	valid := AgentSpec{ID: "a", Name: "Agent", Capabilities: []string{"x"}, MessageTypes: []string{"task-request"}}
	require.NoError(t, valid.Validate())

	invalid := AgentSpec{}
	assert.Error(t, invalid.Validate())
}

func TestRetryPolicyDefaultsAndTable(t *testing.T) {
	def := DefaultRetryPolicy()
	require.NoError(t, def.Validate())
	assert.True(t, def.IsRetryable(ErrorCategoryTransient))
	assert.False(t, def.IsRetryable(ErrorCategorySystem))

	p, ok := RetryPolicyFor(ErrorCategoryTransient)
	require.True(t, ok)
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, BackoffExponential, p.Backoff)

	p, ok = RetryPolicyFor(ErrorCategoryBusinessLogic)
	require.True(t, ok)
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, BackoffLinear, p.Backoff)

	_, ok = RetryPolicyFor(ErrorCategoryValidation)
	assert.False(t, ok)

	_, ok = RetryPolicyFor(ErrorCategorySystem)
	assert.False(t, ok)
}
