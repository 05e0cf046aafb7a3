package recovery

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RetryConfig defines the retry-with-backoff bounds.
type RetryConfig struct {
	// MaxAttempts is the total number of operation invocations allowed,
	// including the first.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`

	// MaxBackoff caps the backoff growth.
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default bounds: 3 attempts with
// exponential backoff 100ms/200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff returns the delay before the given retry (1-based).
func (c RetryConfig) Backoff(retry int) time.Duration {
	backoff := c.InitialBackoff
	for i := 1; i < retry; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
		if backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if backoff > c.MaxBackoff {
		return c.MaxBackoff
	}
	return backoff
}

// RetryStrategy re-runs the operation with exponential backoff up to the
// configured attempt bound, then escalates the agent to Error.
type RetryStrategy struct {
	cfg         RetryConfig
	logger      *zap.Logger
	invocations atomic.Int64
}

// NewRetryStrategy creates a retry strategy.
func NewRetryStrategy(cfg RetryConfig, logger *zap.Logger) *RetryStrategy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultRetryConfig().MaxBackoff
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = DefaultRetryConfig().BackoffMultiplier
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryStrategy{cfg: cfg, logger: logger.With(zap.String("strategy", "retry"))}
}

// Name returns the strategy name.
func (s *RetryStrategy) Name() string { return "retry" }

// Invocations returns how many times Execute has run.
func (s *RetryStrategy) Invocations() int64 { return s.invocations.Load() }

// Execute resumes after an initial failure: it re-runs the operation with
// exponential backoff until it succeeds or the total attempt budget
// (including the original failed attempt) is spent. The agent is held in
// Recovering while each backoff elapses; backoff waiting is a suspension
// point and honors context cancellation.
func (s *RetryStrategy) Execute(ctx context.Context, ag Recoverable, op Operation, cause error) error {
	s.invocations.Add(1)

	lastErr := cause
	for attempt := 2; attempt <= s.cfg.MaxAttempts; attempt++ {
		markRecovering(ag)
		delay := s.cfg.Backoff(attempt - 1)
		s.logger.Debug("retrying after backoff",
			zap.String("agent_id", ag.ID()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		markRecovered(ag)

		lastErr = op(ctx)
		if lastErr == nil {
			markRecovered(ag)
			return nil
		}
	}

	s.logger.Warn("retry budget exhausted",
		zap.String("agent_id", ag.ID()),
		zap.Int("max_attempts", s.cfg.MaxAttempts),
		zap.Error(lastErr),
	)
	escalate(ag)
	return errors.Join(ErrRecoveryExhausted, lastErr)
}
