package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agenthub/agent"
	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/internal/metrics"
	"github.com/BaSui01/agenthub/recovery"
	"github.com/BaSui01/agenthub/semstore"
	"github.com/BaSui01/agenthub/types"
)

// Engine errors
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowTerminal = errors.New("workflow already terminal")
	ErrEmptyWorkflow    = errors.New("workflow requires at least one capability")
	ErrDependencyCycle  = errors.New("dependency graph contains a cycle")
	ErrUnknownStep      = errors.New("dependency references unknown step")
)

// EngineConfig tunes execution bounds.
type EngineConfig struct {
	// StepTimeout bounds one step attempt.
	StepTimeout time.Duration `yaml:"step_timeout" json:"step_timeout"`
	// WorkflowTimeout bounds a whole workflow run.
	WorkflowTimeout time.Duration `yaml:"workflow_timeout" json:"workflow_timeout"`
	// PollInterval is the bounded wait between assignment attempts while no
	// capable agent is available. Never a busy spin.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// MaxConcurrentSteps bounds step parallelism per workflow.
	MaxConcurrentSteps int `yaml:"max_concurrent_steps" json:"max_concurrent_steps"`
	// EventBuffer is the per-subscriber event channel size.
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`
}

// DefaultEngineConfig returns the default execution bounds: short per-step,
// longer per-workflow.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StepTimeout:        30 * time.Second,
		WorkflowTimeout:    5 * time.Minute,
		PollInterval:       200 * time.Millisecond,
		MaxConcurrentSteps: 16,
		EventBuffer:        256,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	def := DefaultEngineConfig()
	if c.StepTimeout <= 0 {
		c.StepTimeout = def.StepTimeout
	}
	if c.WorkflowTimeout <= 0 {
		c.WorkflowTimeout = def.WorkflowTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxConcurrentSteps <= 0 {
		c.MaxConcurrentSteps = def.MaxConcurrentSteps
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

// SubmitRequest describes a workflow to execute. Each distinct required
// capability becomes one step whose id is the capability type. Dependencies
// map a step id to the step ids that must complete before it may start;
// steps with no declared dependency run concurrently.
type SubmitRequest struct {
	Name         string
	Capabilities []capability.Capability
	Dependencies map[string][]string
}

// run is the engine-private execution state of one workflow.
type run struct {
	mu        sync.Mutex
	wf        *Workflow
	steps     map[string]*Step
	triggered map[string]bool // idempotent trigger set
	acc       *resultAccumulator
	tx        *Transaction

	cancel       context.CancelFunc
	cancelReason string
	stepDone     chan string
	terminal     chan struct{} // closed exactly once, on finalize
}

// Engine executes workflows against the agent registry. It owns all
// Workflow and Step state exclusively; agents are referenced by id and
// mutated only through their own locked status API.
type Engine struct {
	registry  *agent.Registry
	selector  recovery.Selector
	breaker   *recovery.CircuitBreaker
	stream    *Stream
	mirror    *semstore.Mirror
	collector *metrics.Collector
	logger    *zap.Logger
	tracer    trace.Tracer
	cfg       EngineConfig

	mu   sync.RWMutex
	runs map[string]*run
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSelector overrides the recovery strategy selection.
func WithSelector(s recovery.Selector) EngineOption {
	return func(e *Engine) { e.selector = s }
}

// WithBreaker overrides the per-agent circuit breaker.
func WithBreaker(b *recovery.CircuitBreaker) EngineOption {
	return func(e *Engine) { e.breaker = b }
}

// WithMirror attaches the semantic store mirror for audit facts.
func WithMirror(m *semstore.Mirror) EngineOption {
	return func(e *Engine) { e.mirror = m }
}

// WithEngineCollector attaches a Prometheus collector. The engine records
// per-attempt agent message outcomes and recovery strategy outcomes.
func WithEngineCollector(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.collector = c }
}

// NewEngine creates a workflow engine.
func NewEngine(registry *agent.Registry, cfg EngineConfig, logger *zap.Logger, opts ...EngineOption) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "workflow_engine")),
		tracer:   otel.Tracer("agenthub/workflow"),
		stream:   NewStream(cfg.EventBuffer),
		runs:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breaker == nil {
		e.breaker = recovery.NewCircuitBreaker(recovery.DefaultCircuitBreakerConfig(), logger)
	}
	if e.selector.Retry == nil {
		e.selector.Retry = recovery.NewRetryStrategy(recovery.DefaultRetryConfig(), logger)
	}
	if e.selector.Restore == nil {
		e.selector.Restore = recovery.NewStateRestoreStrategy(logger)
	}
	if e.selector.Default == nil {
		e.selector.Default = recovery.NewDefaultStrategy(logger)
	}
	return e
}

// Events returns the execution event stream.
func (e *Engine) Events() *Stream { return e.stream }

// Submit validates the request, derives the step graph, and starts
// execution. It returns the workflow id immediately.
func (e *Engine) Submit(req SubmitRequest) (string, error) {
	if len(req.Capabilities) == 0 {
		return "", ErrEmptyWorkflow
	}

	// One step per distinct capability; later duplicates of a type are
	// conflict-resolved into the step requirement.
	steps := make(map[string]*Step, len(req.Capabilities))
	var ordered []*Step
	for _, c := range req.Capabilities {
		validated, err := capability.Declare(c.Type, c.Version)
		if err != nil {
			return "", err
		}
		sid := string(validated.Type)
		if existing, ok := steps[sid]; ok {
			winner, err := capability.ConflictPolicy{}.ResolveConflict(existing.Requirement, validated)
			if err != nil {
				return "", err
			}
			existing.Requirement = winner
			continue
		}
		s := &Step{ID: sid, Requirement: validated, Status: StepPending}
		steps[sid] = s
		ordered = append(ordered, s)
	}

	for sid, deps := range req.Dependencies {
		s, ok := steps[sid]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownStep, sid)
		}
		for _, dep := range deps {
			if _, ok := steps[dep]; !ok {
				return "", fmt.Errorf("%w: %s -> %s", ErrUnknownStep, sid, dep)
			}
			s.DependsOn = append(s.DependsOn, dep)
		}
	}
	if hasCycle(steps) {
		return "", ErrDependencyCycle
	}

	id := uuid.New().String()
	name := req.Name
	if name == "" {
		name = "workflow-" + id[:8]
	}
	wf := &Workflow{
		ID:        id,
		Name:      name,
		Steps:     ordered,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	for _, s := range ordered {
		wf.RequiredCapabilities = append(wf.RequiredCapabilities, s.Requirement)
	}

	stepIDs := make([]string, 0, len(ordered))
	for _, s := range ordered {
		stepIDs = append(stepIDs, s.ID)
	}
	r := &run{
		wf:        wf,
		steps:     steps,
		triggered: make(map[string]bool, len(steps)),
		acc:       newResultAccumulator(),
		tx:        NewTransaction(id, stepIDs, e.logger),
		stepDone:  make(chan string, len(steps)),
		terminal:  make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WorkflowTimeout)
	r.cancel = cancel

	e.mu.Lock()
	e.runs[id] = r
	e.mu.Unlock()

	e.logger.Info("workflow submitted",
		zap.String("workflow_id", id),
		zap.String("name", name),
		zap.Int("steps", len(ordered)),
	)
	go e.execute(ctx, r)
	return id, nil
}

// Status returns the caller-facing snapshot. Partial results of completed
// steps remain queryable after a workflow fails.
func (e *Engine) Status(workflowID string) (StatusView, error) {
	r, err := e.run(workflowID)
	if err != nil {
		return StatusView{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	view := StatusView{
		WorkflowID:     r.wf.ID,
		Name:           r.wf.Name,
		WorkflowStatus: r.wf.Status,
		PublicStatus:   r.wf.Status.Public(),
		Reason:         r.wf.Reason,
		Results:        r.acc.snapshot(),
	}
	for _, s := range r.wf.Steps {
		view.Steps = append(view.Steps, StepView{
			ID:            s.ID,
			Capability:    s.Requirement.String(),
			AssignedAgent: s.AssignedAgent,
			Status:        s.Status,
			Reason:        s.Reason,
			AttemptCount:  s.AttemptCount,
			StartedAt:     s.StartedAt,
			CompletedAt:   s.CompletedAt,
		})
	}
	return view, nil
}

// Cancel aborts a Pending or Running workflow. The workflow is marked
// failed with reason "cancelled"; no further step is scheduled, but an
// already-running step is allowed to finish and its result is discarded.
func (e *Engine) Cancel(workflowID string) error {
	r, err := e.run(workflowID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWorkflowTerminal, workflowID)
	}
	r.cancelReason = "cancelled"
	r.mu.Unlock()

	r.cancel()
	e.logger.Info("workflow cancelled", zap.String("workflow_id", workflowID))
	return nil
}

// Wait blocks until the workflow reaches a terminal status or the context
// expires.
func (e *Engine) Wait(ctx context.Context, workflowID string) error {
	r, err := e.run(workflowID)
	if err != nil {
		return err
	}
	select {
	case <-r.terminal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every non-terminal workflow and closes the event stream.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		_ = e.Cancel(id)
	}
	e.stream.Close()
}

func (e *Engine) run(workflowID string) (*run, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	return r, nil
}

// execute drives one workflow to a terminal status.
func (e *Engine) execute(ctx context.Context, r *run) {
	defer r.cancel()

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.id", r.wf.ID),
			attribute.String("workflow.name", r.wf.Name),
		))
	defer span.End()

	r.mu.Lock()
	r.wf.Status = StatusRunning
	r.mu.Unlock()
	e.publishWorkflowFact(r.wf.ID, string(StatusRunning))
	e.stream.Publish(Event{Type: EventWorkflowStarted, WorkflowID: r.wf.ID})

	g := &errgroup.Group{}
	g.SetLimit(e.cfg.MaxConcurrentSteps)

	e.scheduleReady(ctx, r, g)

	for {
		if done := e.checkProgress(ctx, r, g); done {
			break
		}
		select {
		case <-r.stepDone:
			e.scheduleReady(ctx, r, g)
		case <-ctx.Done():
			e.finalizeInterrupted(r)
			// Running steps are not interrupted; stragglers observe the
			// terminal status and discard their results.
			_ = g.Wait()
			return
		}
	}
	_ = g.Wait()
}

// checkProgress finalizes the workflow if it reached a terminal condition.
func (e *Engine) checkProgress(ctx context.Context, r *run, g *errgroup.Group) bool {
	r.mu.Lock()
	completed := 0
	var failing *Step
	for _, s := range r.wf.Steps {
		switch s.Status {
		case StepCompleted:
			completed++
		case StepFailed:
			if failing == nil {
				failing = s
			}
		}
	}
	total := len(r.wf.Steps)
	r.mu.Unlock()

	switch {
	case failing != nil:
		e.finalizeFailed(r, failing)
		return true
	case completed == total:
		e.finalizeCompleted(r)
		return true
	default:
		return false
	}
}

// scheduleReady triggers every untriggered step whose declared dependencies
// are all completed. The triggered set guarantees each dependent is
// scheduled at most once per predecessor completion, even under concurrent
// completion notifications.
func (e *Engine) scheduleReady(ctx context.Context, r *run, g *errgroup.Group) {
	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	var ready []*Step
	for _, s := range r.wf.Steps {
		if r.triggered[s.ID] {
			continue
		}
		if !e.depsCompletedLocked(r, s) {
			continue
		}
		r.triggered[s.ID] = true
		ready = append(ready, s)
	}
	r.mu.Unlock()

	for _, s := range ready {
		step := s
		g.Go(func() error {
			e.executeStep(ctx, r, step)
			r.stepDone <- step.ID
			return nil
		})
	}
}

func (e *Engine) depsCompletedLocked(r *run, s *Step) bool {
	for _, dep := range s.DependsOn {
		if d, ok := r.steps[dep]; !ok || d.Status != StepCompleted {
			return false
		}
	}
	return true
}

// executeStep runs one step to a terminal step status: assignment via the
// registry (bounded polling while no capable agent is idle), execution
// inside the step timeout with the per-agent circuit breaker, and recovery
// per strategy on failure.
func (e *Engine) executeStep(ctx context.Context, r *run, step *Step) {
	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.id", r.wf.ID),
			attribute.String("step.id", step.ID),
		))
	defer span.End()

	// Wait for a capable idle agent; the step stays Pending on a bounded
	// poll interval rather than failing or busy-spinning.
	if !e.awaitAssignable(ctx, r, step) {
		return
	}

	var (
		lastAgent     agent.Agent
		attemptResult map[string]any
	)

	op := func(opCtx context.Context) error {
		a, err := e.registry.Select(step.Requirement)
		if err != nil {
			return types.NewError(types.ErrCodeNoCapableAgent, "no idle agent for step").
				WithStep(step.ID).WithCause(err).AsRetryable()
		}
		lastAgent = a

		r.mu.Lock()
		if r.wf.Status.Terminal() {
			r.mu.Unlock()
			return types.NewError(types.ErrCodeCancelled, "workflow is terminal").WithStep(step.ID)
		}
		// Assignment happens exactly once per attempt; a retry may pick a
		// different agent.
		step.AssignedAgent = a.ID()
		step.Status = StepRunning
		step.AttemptCount++
		attempt := step.AttemptCount
		if step.StartedAt.IsZero() {
			step.StartedAt = time.Now()
		}
		r.mu.Unlock()

		evType := EventStepStarted
		if attempt > 1 {
			evType = EventStepRetried
		}
		e.stream.Publish(Event{
			Type:       evType,
			WorkflowID: r.wf.ID,
			StepID:     step.ID,
			AgentID:    a.ID(),
			Attempt:    attempt,
		})
		if e.mirror != nil {
			e.mirror.Publish(semstore.Fact{
				Subject:   "workflow/" + r.wf.ID + "/step/" + step.ID,
				Predicate: semstore.PredAssignedAgent,
				Object:    a.ID(),
				Source:    "engine",
			})
		}

		msg := types.NewRequest("engine", a.ID(), string(step.Requirement.Type))
		msg.Payload = map[string]any{
			"workflow_id": r.wf.ID,
			"step_id":     step.ID,
		}

		// An attempt is bounded by the step timeout but deliberately not by
		// workflow cancellation: a running step is allowed to finish and
		// its result discarded.
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(opCtx), e.cfg.StepTimeout)
		defer cancel()

		guarded := e.breaker.Wrap(a.ID(), func(c context.Context) error {
			resp, perr := a.ProcessMessage(c, msg)
			if e.collector != nil {
				status := "success"
				if perr != nil {
					status = "failure"
				}
				e.collector.RecordAgentMessage(a.ID(), status)
			}
			if perr != nil {
				return perr
			}
			attemptResult = resp.Payload
			return nil
		})
		return guarded(attemptCtx)
	}

	err := op(ctx)
	if err != nil {
		strat := e.selector.For(err)
		e.logger.Warn("step failed, invoking recovery",
			zap.String("workflow_id", r.wf.ID),
			zap.String("step_id", step.ID),
			zap.String("strategy", strat.Name()),
			zap.Error(err),
		)
		err = strat.Execute(ctx, e.recoverable(lastAgent), op, err)
		if e.collector != nil {
			outcome := "recovered"
			if err != nil {
				outcome = "exhausted"
			}
			e.collector.RecordRecovery(strat.Name(), outcome)
		}
	}

	if err != nil {
		e.markStepFailed(r, step, err)
		return
	}
	e.markStepCompleted(r, step, attemptResult, lastAgent)
}

// awaitAssignable blocks until at least one capable idle agent exists,
// marking the step Scheduled, or returns false when the workflow ends
// first. Polling is bounded by the configured interval.
func (e *Engine) awaitAssignable(ctx context.Context, r *run, step *Step) bool {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.mu.Lock()
		terminal := r.wf.Status.Terminal()
		r.mu.Unlock()
		if terminal {
			return false
		}

		a, err := e.registry.Select(step.Requirement)
		if err == nil {
			r.mu.Lock()
			step.Status = StepScheduled
			step.AssignedAgent = a.ID()
			r.mu.Unlock()
			e.stream.Publish(Event{
				Type:       EventStepScheduled,
				WorkflowID: r.wf.ID,
				StepID:     step.ID,
				AgentID:    a.ID(),
			})
			return true
		}
		if !errors.Is(err, agent.ErrNoCapableAgent) {
			e.markStepFailed(r, step, err)
			return false
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}

func (e *Engine) markStepCompleted(r *run, step *Step, result map[string]any, a agent.Agent) {
	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		// Cancellation or timeout won the race; the result is discarded.
		e.stream.Publish(Event{
			Type:       EventStepDiscarded,
			WorkflowID: r.wf.ID,
			StepID:     step.ID,
			Reason:     r.wf.Reason,
		})
		return
	}
	step.Status = StepCompleted
	step.CompletedAt = time.Now()
	step.Result = result
	if result != nil {
		r.acc.add(result)
	}
	duration := step.CompletedAt.Sub(step.StartedAt)
	r.mu.Unlock()

	var comp *Compensation
	if a != nil {
		agentID := a.ID()
		stepID := step.ID
		comp = &Compensation{
			StepID: stepID,
			Run: func(cctx context.Context) error {
				ag, err := e.registry.Get(agentID)
				if err != nil {
					return err
				}
				m := types.NewRequest("engine", agentID, "compensate:"+stepID)
				_, err = ag.ProcessMessage(cctx, m)
				return err
			},
		}
	}
	r.tx.RecordCompletion(step.ID, comp)

	e.stream.Publish(Event{
		Type:       EventStepCompleted,
		WorkflowID: r.wf.ID,
		StepID:     step.ID,
		AgentID:    step.AssignedAgent,
		Attempt:    step.AttemptCount,
		Duration:   duration,
	})
}

func (e *Engine) markStepFailed(r *run, step *Step, err error) {
	reason := reasonCode(err)

	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	step.Status = StepFailed
	step.CompletedAt = time.Now()
	step.Reason = reason
	r.mu.Unlock()

	e.stream.Publish(Event{
		Type:       EventStepFailed,
		WorkflowID: r.wf.ID,
		StepID:     step.ID,
		AgentID:    step.AssignedAgent,
		Attempt:    step.AttemptCount,
		Reason:     reason,
	})
}

// finalizeCompleted commits the transaction and seals the workflow.
func (e *Engine) finalizeCompleted(r *run) {
	r.tx.Commit()

	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.wf.Status = StatusCompleted
	r.wf.CompletedAt = time.Now()
	r.mu.Unlock()

	e.sealWorkflow(r, EventWorkflowCompleted, "")
}

// finalizeFailed rolls back the transaction's side effects and seals the
// workflow. When any compensation ran the workflow reports RolledBack;
// otherwise it reports Failed with the originating step's reason.
func (e *Engine) finalizeFailed(r *run, failing *Step) {
	rollbackCtx, cancel := context.WithTimeout(context.Background(), e.cfg.StepTimeout)
	defer cancel()
	compensated := r.tx.Rollback(rollbackCtx)

	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	reason := failing.Reason
	if reason == "" {
		reason = string(types.ErrCodeStepFailed)
	}
	r.wf.Reason = fmt.Sprintf("step %s: %s", failing.ID, reason)
	evType := EventWorkflowFailed
	if len(compensated) > 0 {
		r.wf.Status = StatusRolledBack
		evType = EventWorkflowRolledBack
	} else {
		r.wf.Status = StatusFailed
	}
	r.wf.CompletedAt = time.Now()
	reasonOut := r.wf.Reason
	r.mu.Unlock()

	e.sealWorkflow(r, evType, reasonOut)
}

// finalizeInterrupted handles cancellation and timeout. A timed-out
// workflow whose unstarted steps had no capable agent reports
// NO_CAPABLE_AGENT; cancellation reports "cancelled".
func (e *Engine) finalizeInterrupted(r *run) {
	r.mu.Lock()
	if r.wf.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	reason := r.cancelReason
	if reason == "" {
		reason = string(types.ErrCodeTimeout)
		for _, s := range r.wf.Steps {
			if s.Status == StepPending && len(e.registry.FindByCapability(s.Requirement)) == 0 {
				reason = string(types.ErrCodeNoCapableAgent)
				break
			}
		}
	}
	r.wf.Status = StatusFailed
	r.wf.Reason = reason
	r.wf.CompletedAt = time.Now()
	r.mu.Unlock()

	e.sealWorkflow(r, EventWorkflowFailed, reason)
}

// sealWorkflow emits the terminal event, mirror fact and log line, and
// releases waiters. Runs exactly once per workflow.
func (e *Engine) sealWorkflow(r *run, evType EventType, reason string) {
	r.mu.Lock()
	status := r.wf.Status
	duration := r.wf.CompletedAt.Sub(r.wf.CreatedAt)
	r.mu.Unlock()

	e.publishWorkflowFact(r.wf.ID, string(status))
	if reason != "" && e.mirror != nil {
		e.mirror.Publish(semstore.Fact{
			Subject:   "workflow/" + r.wf.ID,
			Predicate: semstore.PredFailureReason,
			Object:    reason,
			Source:    "engine",
		})
	}
	e.stream.Publish(Event{
		Type:       evType,
		WorkflowID: r.wf.ID,
		Reason:     reason,
		Duration:   duration,
	})
	e.logger.Info("workflow finished",
		zap.String("workflow_id", r.wf.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Duration("duration", duration),
	)
	close(r.terminal)
}

func (e *Engine) publishWorkflowFact(workflowID, status string) {
	if e.mirror == nil {
		return
	}
	e.mirror.Publish(semstore.Fact{
		Subject:   "workflow/" + workflowID,
		Predicate: semstore.PredStatus,
		Object:    status,
		Source:    "engine",
	})
}

// recoverable adapts an agent for the recovery package. Agents that do not
// expose the recoverable surface get a stub so strategies still bound their
// attempts.
func (e *Engine) recoverable(a agent.Agent) recovery.Recoverable {
	if rec, ok := a.(recovery.Recoverable); ok && a != nil {
		return rec
	}
	return noopRecoverable{}
}

type noopRecoverable struct{}

func (noopRecoverable) ID() string                      { return "unassigned" }
func (noopRecoverable) Status() agent.Status            { return agent.StatusIdle }
func (noopRecoverable) TransitionTo(agent.Status) error { return nil }
func (noopRecoverable) RecordRecoveryAttempt()          {}
func (noopRecoverable) SnapshotState() map[string]any   { return nil }
func (noopRecoverable) RestoreState(map[string]any)     {}
func (noopRecoverable) LastGoodSnapshot() map[string]any {
	return nil
}

// reasonCode extracts the stable reason for a terminal failure.
func reasonCode(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		return string(te.Code)
	}
	if errors.Is(err, recovery.ErrRecoveryExhausted) {
		return string(types.ErrCodeStepFailed)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(types.ErrCodeTimeout)
	}
	return err.Error()
}

// hasCycle runs Kahn's algorithm over the step graph.
func hasCycle(steps map[string]*Step) bool {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for id, s := range steps {
		indegree[id] += 0
		for _, dep := range s.DependsOn {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}
	queue := make([]string, 0, len(steps))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return visited != len(steps)
}
