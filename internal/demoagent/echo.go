// Package demoagent provides a minimal echo-style agent fixture: it
// acknowledges every task-request it can handle by echoing the payload
// back as output. It exists to exercise the orchestrator end to end, the
// way the teacher's own fixtures exercise its worker pool.
package demoagent

import (
	"context"
	"time"

	"github.com/aosanya/agentruntime/internal/agent"
	"github.com/aosanya/agentruntime/internal/types"
)

// Echo is the demo fixture agent: it handles task-request messages and
// responds with a copy of the request payload.
type Echo struct {
	*agent.Base
}

// New creates an Echo agent with the given id and name.
func New(id, name string) *Echo {
	return &Echo{
		Base: agent.NewBase(id, name, []string{"echo"}, nil),
	}
}

// Initialize transitions the agent to ready.
func (e *Echo) Initialize(ctx context.Context) error {
	ready := types.AgentStatusReady
	e.SetState(agent.StatePartial{Status: &ready})
	return nil
}

// Shutdown transitions the agent to shutdown.
func (e *Echo) Shutdown(ctx context.Context) error {
	shutdown := types.AgentStatusShutdown
	e.SetState(agent.StatePartial{Status: &shutdown})
	return nil
}

// CanHandle accepts task-request messages only.
func (e *Echo) CanHandle(msg types.Message) bool {
	return msg.Kind == types.MessageKindTaskRequest
}

// HandleMessage echoes the incoming payload back as the result data.
func (e *Echo) HandleMessage(ctx context.Context, msg types.Message) agent.HandleResult {
	if !e.CanHandle(msg) {
		return agent.HandleResult{Success: false, Err: errUnsupportedKind(msg.Kind)}
	}
	return agent.HandleResult{Success: true, Data: map[string]interface{}{"echo": msg.Payload}}
}

// HealthCheck always reports healthy; the fixture has no external
// dependencies that could fail.
func (e *Echo) HealthCheck(ctx context.Context) agent.HealthResult {
	return agent.HealthResult{Healthy: true, Timestamp: time.Now()}
}

func errUnsupportedKind(kind types.MessageKind) error {
	return &unsupportedKindError{kind: kind}
}

type unsupportedKindError struct {
	kind types.MessageKind
}

func (e *unsupportedKindError) Error() string {
	return "demoagent: unsupported message kind: " + string(e.kind)
}
