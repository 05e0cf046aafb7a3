package recovery

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

// StateRestoreStrategy handles state-corruption failures: it snapshots the
// agent's restorable state before the operation runs, and on failure
// replaces the current state with the last-known-good snapshot and retries
// exactly once.
type StateRestoreStrategy struct {
	logger      *zap.Logger
	invocations atomic.Int64
}

// NewStateRestoreStrategy creates a state-restore strategy.
func NewStateRestoreStrategy(logger *zap.Logger) *StateRestoreStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateRestoreStrategy{logger: logger.With(zap.String("strategy", "state_restore"))}
}

// Name returns the strategy name.
func (s *StateRestoreStrategy) Name() string { return "state_restore" }

// Invocations returns how many times Execute has run.
func (s *StateRestoreStrategy) Invocations() int64 { return s.invocations.Load() }

// Execute replaces the agent's current state with the last-known-good
// snapshot captured before the failed mutation, then retries exactly once.
func (s *StateRestoreStrategy) Execute(ctx context.Context, ag Recoverable, op Operation, cause error) error {
	s.invocations.Add(1)

	markRecovering(ag)
	ag.RestoreState(ag.LastGoodSnapshot())
	s.logger.Info("state restored from snapshot, retrying once",
		zap.String("agent_id", ag.ID()),
		zap.Error(cause),
	)
	markRecovered(ag)

	retryErr := op(ctx)
	if retryErr == nil {
		return nil
	}
	escalate(ag)
	return errors.Join(ErrRecoveryExhausted, retryErr)
}

// DefaultStrategy is the fallback for unclassified failures: it does not
// retry; it records the recovery attempt and escalates the agent to Error.
type DefaultStrategy struct {
	logger      *zap.Logger
	invocations atomic.Int64
}

// NewDefaultStrategy creates the fallback strategy.
func NewDefaultStrategy(logger *zap.Logger) *DefaultStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultStrategy{logger: logger.With(zap.String("strategy", "default"))}
}

// Name returns the strategy name.
func (s *DefaultStrategy) Name() string { return "default" }

// Invocations returns how many times Execute has run.
func (s *DefaultStrategy) Invocations() int64 { return s.invocations.Load() }

// Execute does not retry: the unclassified failure is recorded and the
// agent escalates to Error.
func (s *DefaultStrategy) Execute(_ context.Context, ag Recoverable, _ Operation, cause error) error {
	s.invocations.Add(1)

	markRecovering(ag)
	s.logger.Warn("unclassified failure, escalating",
		zap.String("agent_id", ag.ID()),
		zap.Error(cause),
	)
	escalate(ag)
	return cause
}
