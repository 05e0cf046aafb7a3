// Package agent provides the autonomous worker unit of the orchestration
// engine: a stateful agent advertising typed capabilities, the registry that
// indexes and routes to live agents, and the factory that builds agents from
// registered templates.
package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/semstore"
	"github.com/BaSui01/agenthub/types"
)

// Agent defines the core behavior contract. Implementations must be safe
// for concurrent use: the registry and the workflow engine only ever hold
// agent ids and call through this interface.
type Agent interface {
	// Identity
	ID() string
	Type() string

	// Lifecycle
	Status() Status
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error

	// Execution
	ProcessMessage(ctx context.Context, msg types.Message) (types.Message, error)

	// Capabilities returns an authoritative, concurrency-safe snapshot of
	// the advertised capability set. Never raw field access.
	Capabilities() []capability.Capability

	// Can reports whether the agent can serve the requirement at an active,
	// non-superseded capability version.
	Can(req capability.Capability) bool

	// Health returns the current health record.
	Health() Health
}

// Health tracks an agent's operational record.
type Health struct {
	LastHeartbeat    time.Time `json:"last_heartbeat"`
	ErrorCount       int       `json:"error_count"`
	RecoveryAttempts int       `json:"recovery_attempts"`
	IdleSince        time.Time `json:"idle_since"`
}

// Handler implements the agent's message processing logic. A handler error
// never reaches the caller raw: ProcessMessage converts it into a typed
// error response so every request yields exactly one response.
type Handler func(ctx context.Context, msg types.Message) (types.Message, error)

// BaseAgent provides reusable status management, bounded message history,
// health tracking and best-effort state mirroring. Concrete agents embed it
// or are constructed directly with a Handler.
//
// Lock ordering (strict, engine-wide): metricsMu -> statusMu -> mu. A lock
// may only be acquired when no lower-priority lock is already held, and
// locks are released in reverse order.
type BaseAgent struct {
	id             string
	agentType      string
	caps           *capability.Set
	handler        Handler
	logger         *zap.Logger
	mirror         *semstore.Mirror
	transitionHook func(agentID, from, to string)

	// metricsMu guards the processing counters.
	metricsMu sync.Mutex
	processed int64
	failures  int64

	// statusMu guards status and health. Every transition validates against
	// the status table inside this lock.
	statusMu sync.RWMutex
	status   Status
	health   Health

	// mu is the main lock guarding message history and restorable state.
	mu           sync.Mutex
	history      []types.Message
	historyLimit int
	state        map[string]any
	lastGood     map[string]any
}

// Option configures a BaseAgent.
type Option func(*BaseAgent)

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *BaseAgent) { a.logger = l }
}

// WithMirror attaches the semantic store mirror. Status transitions publish
// facts through it; Cleanup awaits pending writes before returning.
func WithMirror(m *semstore.Mirror) Option {
	return func(a *BaseAgent) { a.mirror = m }
}

// WithHistoryLimit bounds the retained message history.
func WithHistoryLimit(n int) Option {
	return func(a *BaseAgent) {
		if n > 0 {
			a.historyLimit = n
		}
	}
}

// WithTransitionHook installs a callback invoked after every successful
// status transition, outside the status lock. Used to feed metrics.
func WithTransitionHook(hook func(agentID, from, to string)) Option {
	return func(a *BaseAgent) { a.transitionHook = hook }
}

// NewBaseAgent creates an agent in the Initializing state.
func NewBaseAgent(id, agentType string, caps *capability.Set, handler Handler, opts ...Option) *BaseAgent {
	a := &BaseAgent{
		id:           id,
		agentType:    agentType,
		caps:         caps,
		handler:      handler,
		logger:       zap.NewNop(),
		status:       StatusInitializing,
		historyLimit: 100,
		state:        make(map[string]any),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(
		zap.String("agent_id", id),
		zap.String("agent_type", agentType),
	)
	return a
}

// ID returns the agent id.
func (a *BaseAgent) ID() string { return a.id }

// Type returns the agent type name.
func (a *BaseAgent) Type() string { return a.agentType }

// Status returns the current lifecycle status.
func (a *BaseAgent) Status() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

// Health returns a copy of the health record.
func (a *BaseAgent) Health() Health {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.health
}

// Capabilities returns the authoritative capability snapshot.
func (a *BaseAgent) Capabilities() []capability.Capability {
	return a.caps.Snapshot()
}

// Can reports whether the agent satisfies the requirement.
func (a *BaseAgent) Can(req capability.Capability) bool {
	return a.caps.Satisfies(req)
}

// Initialize moves the agent from Initializing to Idle.
func (a *BaseAgent) Initialize(_ context.Context) error {
	if err := a.TransitionTo(StatusIdle); err != nil {
		return err
	}
	a.logger.Info("agent initialized")
	return nil
}

// TransitionTo applies a status transition atomically: the current status is
// validated against the transition table, the new status and health record
// are applied, and a mirrored fact is scheduled, all under the status lock.
func (a *BaseAgent) TransitionTo(to Status) error {
	a.statusMu.Lock()

	if !CanTransition(a.status, to) {
		a.statusMu.Unlock()
		return ErrInvalidTransition{From: a.status, To: to}
	}
	from := a.status
	a.status = to
	now := time.Now()
	a.health.LastHeartbeat = now
	if to == StatusIdle {
		a.health.IdleSince = now
	}

	// Non-blocking; completion is awaited in Cleanup via mirror.Flush.
	if a.mirror != nil {
		a.mirror.Publish(semstore.Fact{
			Subject:   "agent/" + a.id,
			Predicate: semstore.PredStatus,
			Object:    string(to),
			Source:    "agent",
		})
	}

	a.statusMu.Unlock()

	if a.transitionHook != nil {
		a.transitionHook(a.id, string(from), string(to))
	}
	a.logger.Debug("status transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// ProcessMessage executes the handler for one message. The agent is Busy for
// the duration and returns to Idle on every path. A handler failure is
// converted into a typed error response plus a PROCESSING_ERROR; the raw
// failure never propagates to the caller.
func (a *BaseAgent) ProcessMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	if a.Status() == StatusStopped {
		return msg.ErrorReply("agent is stopped"), types.NewError(types.ErrCodeProcessing, "agent is stopped").
			WithAgent(a.id).WithCause(ErrAgentStopped)
	}
	if err := a.TransitionTo(StatusBusy); err != nil {
		return msg.ErrorReply(err.Error()), types.NewError(types.ErrCodeProcessing, "agent not available").
			WithAgent(a.id).WithCause(err).AsRetryable()
	}
	defer func() {
		// The exit transition may race with an external move to Recovering
		// or Stopped; that is not an error on this path.
		if err := a.TransitionTo(StatusIdle); err != nil {
			a.logger.Debug("exit transition skipped", zap.Error(err))
		}
	}()

	a.recordMessage(msg)

	// Snapshot-before-mutate: the handler may change restorable state, and
	// the state-restore recovery strategy rolls back to this snapshot.
	a.mu.Lock()
	a.lastGood = copyState(a.state)
	a.mu.Unlock()

	reply, err := a.handler(ctx, msg)
	if err != nil {
		a.recordFailure()
		a.logger.Warn("message processing failed",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		resp := msg.ErrorReply(err.Error())
		a.recordMessage(resp)
		return resp, types.NewError(types.ErrCodeProcessing, "message processing failed").
			WithAgent(a.id).WithCause(err).AsRetryable()
	}

	a.recordSuccess()
	a.recordMessage(reply)
	return reply, nil
}

// SnapshotState returns a copy of the agent's current restorable state.
func (a *BaseAgent) SnapshotState() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyState(a.state)
}

// LastGoodSnapshot returns the state captured before the most recent
// handler invocation began. Used by the state-restore recovery strategy.
func (a *BaseAgent) LastGoodSnapshot() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyState(a.lastGood)
}

// RestoreState replaces the current state with a snapshot.
func (a *BaseAgent) RestoreState(snap map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = copyState(snap)
}

func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

// SetState stores one state entry.
func (a *BaseAgent) SetState(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state[key] = value
}

// GetState reads one state entry.
func (a *BaseAgent) GetState(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.state[key]
	return v, ok
}

// RecordRecoveryAttempt increments the recovery counter.
func (a *BaseAgent) RecordRecoveryAttempt() {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.health.RecoveryAttempts++
}

// History returns a copy of the bounded message history.
func (a *BaseAgent) History() []types.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Message, len(a.history))
	copy(out, a.history)
	return out
}

// Cleanup releases the agent's resources and awaits any scheduled mirror
// writes. It is idempotent and must run on every exit path; the registry
// invokes it via defer on deregistration and shutdown.
func (a *BaseAgent) Cleanup(ctx context.Context) error {
	if a.Status() == StatusStopped {
		return nil
	}
	if err := a.TransitionTo(StatusStopped); err != nil {
		return err
	}

	a.mu.Lock()
	a.history = nil
	a.state = nil
	a.mu.Unlock()

	// Dangling mirror writes would outlive the agent; wait for the queue.
	if a.mirror != nil {
		if err := a.mirror.Flush(ctx); err != nil {
			a.logger.Warn("mirror flush interrupted during cleanup", zap.Error(err))
			return err
		}
	}
	a.logger.Info("agent cleaned up")
	return nil
}

func (a *BaseAgent) recordMessage(msg types.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.history) >= a.historyLimit {
		a.history = a.history[1:]
	}
	a.history = append(a.history, msg)
}

func (a *BaseAgent) recordSuccess() {
	a.metricsMu.Lock()
	a.processed++
	a.metricsMu.Unlock()
}

func (a *BaseAgent) recordFailure() {
	// Lock ordering: metricsMu before statusMu.
	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	a.failures++

	a.statusMu.Lock()
	a.health.ErrorCount++
	a.statusMu.Unlock()
}

// Processed returns the number of successfully processed messages.
func (a *BaseAgent) Processed() int64 {
	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	return a.processed
}
