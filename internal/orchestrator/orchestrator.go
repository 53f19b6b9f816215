// Package orchestrator wires the Message Bus, Workflow State Manager,
// Error Handler, Resource Allocator, Debug Manager, and Performance
// Monitor behind the single surface external callers use (spec.md §6).
//
// The wiring style — a central struct holding every subsystem, a
// registry of managed units guarded by one mutex, and parallel
// lifecycle fan-out collecting every error instead of stopping at the
// first — follows the teacher's pool.Manager (internal/pool/manager.go)
// and orchestration.Coordinator (internal/orchestration/coordinator.go).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aosanya/agentruntime/internal/agent"
	"github.com/aosanya/agentruntime/internal/allocator"
	"github.com/aosanya/agentruntime/internal/bus"
	"github.com/aosanya/agentruntime/internal/debugmgr"
	"github.com/aosanya/agentruntime/internal/errorhandler"
	"github.com/aosanya/agentruntime/internal/perfmon"
	"github.com/aosanya/agentruntime/internal/pubsub"
	"github.com/aosanya/agentruntime/internal/types"
	"github.com/aosanya/agentruntime/internal/workflowstate"
)

// Config configures the Orchestrator's subsystems and default retry
// policy (spec.md §6, "Recognized configuration keys").
type Config struct {
	Allocator   allocator.Config
	DebugMgr    debugmgr.Config
	PerfMon     perfmon.Config
	RetryPolicy types.RetryPolicy
	BaseDelay   time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Allocator: allocator.DefaultConfig(),
		DebugMgr:  debugmgr.DefaultConfig(),
		PerfMon:   perfmon.DefaultConfig(),
		RetryPolicy: types.RetryPolicy{
			MaxRetries: 3,
			Backoff:    types.BackoffExponential,
			RetryableErrors: map[types.ErrorCategory]struct{}{
				types.ErrorCategoryTransient: {},
			},
			Timeout: 5000 * time.Millisecond,
		},
		BaseDelay: 10 * time.Millisecond,
	}
}

// registeredAgent pairs an agent with the message kinds it accepted
// during registration, discovered by probing CanHandle.
type registeredAgent struct {
	agent agent.Agent
	kinds []types.MessageKind
}

// Orchestrator is the single surface external callers use (spec.md §6).
type Orchestrator struct {
	mu          sync.RWMutex
	agents      map[string]*registeredAgent
	initialized bool

	bus       *bus.Bus
	workflows *workflowstate.Manager
	errors    *errorhandler.Handler
	alloc     *allocator.Allocator
	debug     *debugmgr.Manager
	perf      *perfmon.Monitor
	events    *pubsub.Hub

	retryPolicy types.RetryPolicy
	baseDelay   time.Duration

	logger *logrus.Logger
	nowFn  func() time.Time
	idFn   func() string
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithClock overrides the time source, for deterministic tests.
func WithClock(nowFn func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFn = nowFn }
}

// WithIDGenerator overrides message ID generation, for deterministic tests.
func WithIDGenerator(idFn func() string) Option {
	return func(o *Orchestrator) { o.idFn = idFn }
}

// New wires a fresh Orchestrator and its subsystems.
func New(cfg Config, logger *logrus.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents:      make(map[string]*registeredAgent),
		bus:         bus.New(logger),
		workflows:   workflowstate.NewManager(logger),
		errors:      errorhandler.New(logger),
		alloc:       allocator.New(cfg.Allocator, logger),
		debug:       debugmgr.New(cfg.DebugMgr, logger),
		perf:        perfmon.New(cfg.PerfMon),
		events:      pubsub.New(logger),
		retryPolicy: cfg.RetryPolicy,
		baseDelay:   cfg.BaseDelay,
		logger:      logger,
		nowFn:       time.Now,
		idFn:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events returns the pubsub hub agents and callers can subscribe
// lifecycle/error notifications on.
func (o *Orchestrator) Events() *pubsub.Hub { return o.events }

// Debug returns the Debug Manager, for callers that need direct access to
// its recorded streams (e.g. an HTTP debug endpoint).
func (o *Orchestrator) Debug() *debugmgr.Manager { return o.debug }

// RegisterAgent adds an agent to the runtime, discovering which message
// kinds it accepts by probing CanHandle. Registering the same id twice
// fails. Before the orchestrator has been Initialize'd, subscription is
// deferred to Initialize; afterward, registration subscribes the agent on
// the bus and initializes it immediately ("on the fly", spec.md §4.7).
//
// RegisterAgent takes no caller context because registration is a
// management-plane call in this in-process runtime, the same as the
// teacher's registry services; the on-the-fly initialize path uses
// context.Background() rather than threading one through.
func (o *Orchestrator) RegisterAgent(a agent.Agent) error {
	o.mu.Lock()

	id := a.ID()
	if _, exists := o.agents[id]; exists {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: agent %q already registered", id)
	}

	var kinds []types.MessageKind
	for _, kind := range types.ValidMessageKinds {
		if a.CanHandle(types.Message{Kind: kind}) {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: agent %q does not accept any recognized message kind", id)
	}

	ra := &registeredAgent{agent: a, kinds: kinds}
	o.agents[id] = ra
	initialized := o.initialized
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{"agent_id": id, "kinds": kinds}).Info("agent registered")

	if !initialized {
		return nil
	}

	if err := o.subscribeAndInitialize(context.Background(), id, ra); err != nil {
		o.errors.Handle(context.Background(), err, errorhandler.Context{AgentID: id, Operation: "initialize", Timestamp: o.nowFn()})
		return fmt.Errorf("orchestrator: agent %q registered but failed to initialize: %w", id, err)
	}
	return nil
}

// DeregisterAgent removes an agent from the bus and allocator.
func (o *Orchestrator) DeregisterAgent(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.agents, id)
	o.bus.Unsubscribe(id)
	o.alloc.DeregisterAgent(id)
}

// RegisterDependency records that dependentAgentID depends on
// sourceAgentID for Error Handler dependent-notification fan-out.
func (o *Orchestrator) RegisterDependency(dependentAgentID, sourceAgentID string) {
	o.errors.RegisterDependency(dependentAgentID, sourceAgentID)
}

// RegisterNotificationHandler wires an agent's dependent-failure
// notification handler.
func (o *Orchestrator) RegisterNotificationHandler(agentID string, handler errorhandler.NotificationHandler) {
	o.errors.RegisterNotificationHandler(agentID, handler)
}

// subscribeAndInitialize subscribes a registered agent on the bus, enrolls
// it with the Resource Allocator, and runs its Initialize hook. Subscription
// is rolled back if allocator registration fails.
func (o *Orchestrator) subscribeAndInitialize(ctx context.Context, id string, ra *registeredAgent) error {
	if err := o.bus.Subscribe(id, ra.kinds, o.wrapHandler(id, ra.agent)); err != nil {
		return fmt.Errorf("subscribe agent %q: %w", id, err)
	}
	if err := o.alloc.RegisterAgent(id); err != nil {
		o.bus.Unsubscribe(id)
		return fmt.Errorf("register agent %q with allocator: %w", id, err)
	}
	if err := ra.agent.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize agent %q: %w", id, err)
	}
	return nil
}

// Initialize transitions the orchestrator into the initialized state: every
// currently registered agent is subscribed on the Message Bus and
// initialized concurrently. A second call on an already-initialized
// instance fails (spec.md §4.7). Once initialized, agents registered
// afterward are subscribed and initialized on the fly by RegisterAgent.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	if o.initialized {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already initialized")
	}
	o.initialized = true
	snapshot := make(map[string]*registeredAgent, len(o.agents))
	for id, ra := range o.agents {
		snapshot[id] = ra
	}
	o.mu.Unlock()

	var mu sync.Mutex
	failures := make(map[string]error)

	var g errgroup.Group
	for id, ra := range snapshot {
		id, ra := id, ra
		g.Go(func() error {
			if err := o.subscribeAndInitialize(ctx, id, ra); err != nil {
				o.errors.Handle(ctx, err, errorhandler.Context{AgentID: id, Operation: "initialize", Timestamp: o.nowFn()})
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	o.events.Publish(pubsub.Event{Topic: pubsub.TopicSystemReady, Payload: failures})

	if len(failures) > 0 {
		return fmt.Errorf("orchestrator: %d agent(s) failed to initialize", len(failures))
	}
	return nil
}

// Shutdown deinitializes every agent, unsubscribes it from the bus and
// allocator, and returns the orchestrator to the uninitialized state.
// Shutting down an instance that was never initialized fails.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.initialized {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: not initialized")
	}
	snapshot := make(map[string]agent.Agent, len(o.agents))
	for id, ra := range o.agents {
		snapshot[id] = ra.agent
	}
	o.mu.Unlock()

	var mu sync.Mutex
	failures := make(map[string]error)

	var g errgroup.Group
	for id, a := range snapshot {
		id, a := id, a
		g.Go(func() error {
			err := a.Shutdown(ctx)
			o.bus.Unsubscribe(id)
			o.alloc.DeregisterAgent(id)
			if err != nil {
				o.errors.Handle(ctx, err, errorhandler.Context{AgentID: id, Operation: "shutdown", Timestamp: o.nowFn()})
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	o.initialized = false
	o.mu.Unlock()

	o.events.Publish(pubsub.Event{Topic: pubsub.TopicSystemShutdown, Payload: failures})

	if len(failures) > 0 {
		return fmt.Errorf("orchestrator: %d agent(s) failed to shut down cleanly", len(failures))
	}
	return nil
}

// SendResult is the outcome SendMessage reports to external callers
// (spec.md §7, "user-visible failure behavior").
type SendResult struct {
	Success  bool
	Category types.ErrorCategory
	Err      error
}

// SendMessage stamps a created-at timestamp and id when unset, validates
// the message, routes it via the Message Bus, and records the delivered/
// failed outcome with the Debug Manager — one log entry per message, so
// the recorded log doubles as the sequence Replay re-routes. On success it
// also records the routing latency with the Performance Monitor. Failures
// are classified and logged through the Error Handler (spec.md §6, §4.7).
func (o *Orchestrator) SendMessage(ctx context.Context, msg types.Message) SendResult {
	msg = o.prepare(msg)
	if err := msg.Validate(); err != nil {
		return SendResult{Success: false, Category: types.ErrorCategoryValidation, Err: err}
	}

	start := o.nowFn()
	err := o.bus.Route(ctx, msg)
	end := o.nowFn()
	if err != nil {
		o.debug.RecordMessage(msg.WorkflowID, msg, debugmgr.DeliveryFailed, err)
		cat, _ := o.errors.Handle(ctx, err, errorhandler.Context{WorkflowID: msg.WorkflowID, AgentID: msg.TargetID, Operation: "sendMessage", Timestamp: o.nowFn()})
		return SendResult{Success: false, Category: cat, Err: err}
	}

	o.debug.RecordMessage(msg.WorkflowID, msg, debugmgr.DeliveryDelivered, nil)
	o.perf.RecordRouting(perfmon.RoutingRecord{
		SourceID: msg.SourceID,
		TargetID: msg.TargetID,
		Start:    start,
		End:      end,
	})
	return SendResult{Success: true}
}

// Broadcast sends msg to every agent subscribed to its kind. The target
// id is cleared, since a directed target would make this a directed send.
func (o *Orchestrator) Broadcast(ctx context.Context, msg types.Message) SendResult {
	msg.TargetID = ""
	return o.SendMessage(ctx, msg)
}

// SendWithRetry attempts directed delivery under policy (or the
// Orchestrator's configured default policy when nil), asking the Error
// Handler's classification to decide retryability. As with SendMessage,
// exactly one Debug Manager log entry is recorded per message — the
// final outcome once retries are exhausted or delivery succeeds.
func (o *Orchestrator) SendWithRetry(ctx context.Context, msg types.Message, policy *types.RetryPolicy) bus.Result {
	msg = o.prepare(msg)
	effective := o.retryPolicy
	if policy != nil {
		effective = *policy
	}

	result := o.bus.SendWithRetry(ctx, msg, effective, o.baseDelay, func(err error, p types.RetryPolicy) bool {
		return p.IsRetryable(errorhandler.Classify(err))
	})

	if result.Success {
		o.debug.RecordMessage(msg.WorkflowID, msg, debugmgr.DeliveryDelivered, nil)
		return result
	}

	o.debug.RecordMessage(msg.WorkflowID, msg, debugmgr.DeliveryFailed, result.LastErr)
	o.errors.Handle(ctx, result.LastErr, errorhandler.Context{
		WorkflowID: msg.WorkflowID,
		AgentID:    msg.TargetID,
		Operation:  "sendWithRetry",
		Timestamp:  o.nowFn(),
		Data:       map[string]interface{}{"attempts": result.Attempts},
	})
	return result
}

func (o *Orchestrator) prepare(msg types.Message) types.Message {
	if msg.ID == "" {
		msg.ID = o.idFn()
	}
	if msg.Metadata.CreatedAt.IsZero() {
		msg.Metadata.CreatedAt = o.nowFn()
	}
	return msg
}

// wrapHandler adapts an Agent into a bus.Handler: it snapshots
// pre/post agent state for the Debug Manager, times the call for the
// Performance Monitor and Resource Allocator, and escalates handler
// failures through the Error Handler — marking the agent's status as
// error on a system-category failure and publishing an agent-error event
// (spec.md §7).
func (o *Orchestrator) wrapHandler(agentID string, a agent.Agent) bus.Handler {
	return func(ctx context.Context, msg types.Message) error {
		o.debug.RecordAgentSnapshot(msg.WorkflowID, a.GetState())

		start := o.nowFn()
		result := a.HandleMessage(ctx, msg)
		end := o.nowFn()
		elapsed := end.Sub(start)

		o.perf.RecordAgentProcessing(perfmon.AgentProcessingRecord{
			AgentID:   agentID,
			MessageID: msg.ID,
			Start:     start,
			End:       end,
			Success:   result.Success,
			Err:       errString(result.Err),
		})
		o.alloc.RecordProcessing(agentID, elapsed)
		o.debug.RecordAgentSnapshot(msg.WorkflowID, a.GetState())

		if result.Success {
			return nil
		}

		cat, _ := o.errors.Handle(ctx, result.Err, errorhandler.Context{
			WorkflowID: msg.WorkflowID,
			AgentID:    agentID,
			Operation:  "handleMessage",
			Timestamp:  o.nowFn(),
		})
		if cat == types.ErrorCategorySystem {
			errStatus := types.AgentStatusError
			a.SetState(agent.StatePartial{Status: &errStatus})
		}
		o.events.Publish(pubsub.Event{Topic: pubsub.TopicAgentError, Payload: map[string]interface{}{
			"agent_id": agentID,
			"category": cat,
			"err":      errString(result.Err),
		}})
		return result.Err
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// --- Workflow and task passthroughs (spec.md §6) ---

func (o *Orchestrator) CreateWorkflow(id string, initial *types.WorkflowState) (types.WorkflowState, error) {
	wf, err := o.workflows.CreateWorkflow(id, initial)
	if err == nil {
		o.debug.RecordWorkflowSnapshot(id, wf)
	}
	return wf, err
}

func (o *Orchestrator) GetWorkflow(id string) (types.WorkflowState, error) {
	return o.workflows.GetWorkflow(id)
}

func (o *Orchestrator) UpdateWorkflow(id string, partial workflowstate.WorkflowPartial) (types.WorkflowState, error) {
	wf, err := o.workflows.UpdateWorkflow(id, partial)
	if err == nil {
		o.debug.RecordWorkflowSnapshot(id, wf)
	}
	return wf, err
}

func (o *Orchestrator) CreateTask(workflowID string, data workflowstate.TaskData) (types.Task, error) {
	task, err := o.workflows.CreateTask(workflowID, data)
	if err == nil {
		o.recordWorkflowSnapshot(workflowID)
	}
	return task, err
}

func (o *Orchestrator) GetTask(workflowID, taskID string) (types.Task, error) {
	return o.workflows.GetTask(workflowID, taskID)
}

func (o *Orchestrator) UpdateTask(workflowID, taskID string, partial workflowstate.TaskPartial) (types.Task, error) {
	task, err := o.workflows.UpdateTask(workflowID, taskID, partial)
	if err == nil {
		o.recordWorkflowSnapshot(workflowID)
	}
	return task, err
}

func (o *Orchestrator) GetChildTasks(workflowID, parentTaskID string) ([]types.Task, error) {
	return o.workflows.GetChildTasks(workflowID, parentTaskID)
}

// recordWorkflowSnapshot re-reads workflowID's current state and records it
// with the Debug Manager, so a task mutation's effect on the owning
// workflow is captured the same way a direct workflow mutation is.
func (o *Orchestrator) recordWorkflowSnapshot(workflowID string) {
	if wf, err := o.workflows.GetWorkflow(workflowID); err == nil {
		o.debug.RecordWorkflowSnapshot(workflowID, wf)
	}
}

func (o *Orchestrator) MessageHistory(workflowID string) []types.Message {
	return o.bus.MessageHistory(workflowID)
}

// --- Debug Manager and Performance Monitor surface (spec.md §6) ---

// EnableDebug turns on the Debug Manager's recording streams.
func (o *Orchestrator) EnableDebug() { o.debug.SetEnabled(true) }

// DisableDebug turns off the Debug Manager's recording streams.
func (o *Orchestrator) DisableDebug() { o.debug.SetEnabled(false) }

// Replay replays a recorded workflow's messages into a fresh workflow.
func (o *Orchestrator) Replay(ctx context.Context, workflowID string) (debugmgr.ReplayResult, error) {
	return o.debug.Replay(ctx, workflowID, o.bus, o.workflows)
}

// PerformanceSnapshot returns the Performance Monitor's current aggregate.
func (o *Orchestrator) PerformanceSnapshot() perfmon.Snapshot {
	return o.perf.Snapshot()
}
