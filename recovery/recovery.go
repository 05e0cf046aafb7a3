// Package recovery provides the pluggable fault-handling policies invoked
// when an agent or workflow step fails: retry with exponential backoff, a
// per-agent circuit breaker, snapshot-based state restoration, and a
// default escalation policy. Strategies are selected by failure
// classification and operate through the agent's own locked status API, so
// every invocation respects the engine-wide lock ordering.
package recovery

import (
	"context"
	"errors"

	"github.com/BaSui01/agenthub/agent"
	"github.com/BaSui01/agenthub/types"
)

// ErrStateCorruption marks a failure whose root cause is corrupted agent
// state. Handlers wrap their errors with it to request state restoration.
var ErrStateCorruption = errors.New("agent state corruption")

// ErrRecoveryExhausted is returned when a strategy has spent its attempt
// budget without a successful outcome.
var ErrRecoveryExhausted = errors.New("recovery attempts exhausted")

// Operation is the unit of work a strategy supervises. Strategies may
// invoke it more than once.
type Operation func(ctx context.Context) error

// Recoverable is the slice of the agent surface recovery needs. Every
// transition goes through the agent's own status lock.
type Recoverable interface {
	ID() string
	Status() agent.Status
	TransitionTo(agent.Status) error
	RecordRecoveryAttempt()
	SnapshotState() map[string]any
	RestoreState(map[string]any)

	// LastGoodSnapshot returns the state captured before the most recent
	// mutating operation began (snapshot-before-mutate).
	LastGoodSnapshot() map[string]any
}

// Strategy is a polymorphic fault-handling policy. Execute is invoked
// after an operation has already failed once with cause; it applies the
// policy (which may re-run the operation) and returns nil once the
// operation succeeds, or the terminal error after the policy is exhausted.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, ag Recoverable, op Operation, cause error) error
}

// FailureClass is the coarse classification recovery selection keys on.
type FailureClass string

const (
	FailureTimeout         FailureClass = "timeout"
	FailureTransient       FailureClass = "transient"
	FailureStateCorruption FailureClass = "state_corruption"
	FailureUnknown         FailureClass = "unknown"
)

// Classify maps an error to its failure class.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrStateCorruption):
		return FailureStateCorruption
	}
	var te *types.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == types.ErrCodeTimeout:
			return FailureTimeout
		case te.Retryable:
			return FailureTransient
		}
	}
	return FailureUnknown
}

// Selector maps failure classes to strategies. Zero-value fields fall back
// to the default strategy.
type Selector struct {
	Retry   Strategy
	Restore Strategy
	Default Strategy
}

// For returns the strategy for the given failure.
func (s Selector) For(err error) Strategy {
	var chosen Strategy
	switch Classify(err) {
	case FailureTimeout, FailureTransient:
		chosen = s.Retry
	case FailureStateCorruption:
		chosen = s.Restore
	default:
		chosen = s.Default
	}
	if chosen == nil {
		chosen = s.Default
	}
	if chosen == nil {
		chosen = NewDefaultStrategy(nil)
	}
	return chosen
}

// markRecovering moves the agent into Recovering and counts the attempt.
// Recovery of an already-recovering agent is a no-op transition.
func markRecovering(ag Recoverable) {
	if ag.Status() != agent.StatusRecovering {
		_ = ag.TransitionTo(agent.StatusRecovering)
	}
	ag.RecordRecoveryAttempt()
}

// markRecovered returns the agent to Idle after a successful recovery.
func markRecovered(ag Recoverable) {
	if ag.Status() == agent.StatusRecovering {
		_ = ag.TransitionTo(agent.StatusIdle)
	}
}

// escalate moves the agent to Error after recovery exhaustion.
func escalate(ag Recoverable) {
	_ = ag.TransitionTo(agent.StatusError)
}
