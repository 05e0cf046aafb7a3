package recovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/types"
)

// CircuitState is the breaker state.
type CircuitState int

const (
	// CircuitClosed allows requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects all requests until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen allows probe requests after the cooldown.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes the breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// FailureWindow bounds how far apart consecutive failures may be and
	// still count toward the threshold.
	FailureWindow time.Duration `yaml:"failure_window" json:"failure_window"`
	// Cooldown is how long an open circuit rejects before allowing probes.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`
	// HalfOpenSuccesses is the consecutive probe successes that close the
	// circuit again.
	HalfOpenSuccesses int `yaml:"half_open_successes" json:"half_open_successes"`
}

// DefaultCircuitBreakerConfig returns the default breaker tuning.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		FailureWindow:     time.Minute,
		Cooldown:          30 * time.Second,
		HalfOpenSuccesses: 2,
	}
}

// breaker is the per-key breaker state. All fields are guarded by mu.
type breaker struct {
	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	openedAt    time.Time
}

// CircuitBreaker short-circuits operations against agents that keep
// failing: after the configured number of consecutive failures within the
// window it rejects immediately with a CIRCUIT_OPEN error for the cooldown
// period, then probes in half-open state. Breakers are tracked per key
// (one per agent id).
type CircuitBreaker struct {
	cfg           CircuitBreakerConfig
	logger        *zap.Logger
	onStateChange func(key string, state CircuitState)

	mu       sync.Mutex
	breakers map[string]*breaker

	invocations atomic.Int64
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithStateChangeHook installs a callback invoked on every breaker state
// change. The hook runs while the breaker entry is locked and must not call
// back into the breaker; keep it cheap. Used to feed metrics.
func WithStateChangeHook(hook func(key string, state CircuitState)) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.onStateChange = hook }
}

// NewCircuitBreaker creates a breaker set.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger *zap.Logger, opts ...CircuitBreakerOption) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = def.FailureWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = def.HalfOpenSuccesses
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{
		cfg:      cfg,
		logger:   logger.With(zap.String("strategy", "circuit_breaker")),
		breakers: make(map[string]*breaker),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the strategy name.
func (cb *CircuitBreaker) Name() string { return "circuit_breaker" }

// Invocations returns how many times Execute has run.
func (cb *CircuitBreaker) Invocations() int64 { return cb.invocations.Load() }

func (cb *CircuitBreaker) forKey(key string) *breaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b, ok := cb.breakers[key]
	if !ok {
		b = &breaker{state: CircuitClosed}
		cb.breakers[key] = b
	}
	return b
}

// Allow reports whether a request for the key may proceed. An open circuit
// returns a typed CIRCUIT_OPEN error immediately.
func (cb *CircuitBreaker) Allow(key string) error {
	b := cb.forKey(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(b.openedAt) >= cb.cfg.Cooldown {
			cb.transition(key, b, CircuitHalfOpen, "cooldown elapsed")
			b.successes = 0
			return nil
		}
		remaining := cb.cfg.Cooldown - time.Since(b.openedAt)
		return types.NewError(types.ErrCodeCircuitOpen,
			fmt.Sprintf("circuit open for %s, retry after %v", key, remaining.Round(time.Millisecond))).
			WithAgent(key)
	case CircuitHalfOpen:
		return nil
	default:
		return types.NewError(types.ErrCodeCircuitOpen, "unknown circuit state").WithAgent(key)
	}
}

// RecordSuccess feeds a successful outcome for the key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	b := cb.forKey(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		b.failures = 0
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= cb.cfg.HalfOpenSuccesses {
			cb.transition(key, b, CircuitClosed,
				fmt.Sprintf("%d consecutive successes in half-open", b.successes))
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure feeds a failed outcome for the key.
func (cb *CircuitBreaker) RecordFailure(key string) {
	b := cb.forKey(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	// A failure outside the window starts a fresh consecutive run.
	if b.failures > 0 && now.Sub(b.lastFailure) > cb.cfg.FailureWindow {
		b.failures = 0
	}
	b.failures++
	b.lastFailure = now

	switch b.state {
	case CircuitClosed:
		if b.failures >= cb.cfg.FailureThreshold {
			cb.transition(key, b, CircuitOpen,
				fmt.Sprintf("%d consecutive failures", b.failures))
			b.openedAt = now
		}
	case CircuitHalfOpen:
		b.successes = 0
		cb.transition(key, b, CircuitOpen, "failure in half-open state")
		b.openedAt = now
	}
}

// State returns the current breaker state for the key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	b := cb.forKey(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker for the key.
func (cb *CircuitBreaker) Reset(key string) {
	b := cb.forKey(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitClosed {
		cb.transition(key, b, CircuitClosed, "manual reset")
	}
	b.failures = 0
	b.successes = 0
}

// Execute re-runs the operation once under breaker control, keyed by the
// agent id. While the circuit is open the operation is not invoked at all
// and the typed CIRCUIT_OPEN error is returned immediately.
func (cb *CircuitBreaker) Execute(ctx context.Context, ag Recoverable, op Operation, _ error) error {
	cb.invocations.Add(1)

	cb.RecordFailure(ag.ID())
	if err := cb.Allow(ag.ID()); err != nil {
		return err
	}
	err := op(ctx)
	if err != nil {
		cb.RecordFailure(ag.ID())
		return err
	}
	cb.RecordSuccess(ag.ID())
	return nil
}

// Wrap returns an Operation guarded by the breaker for the key. Strategies
// that re-run operations compose with the breaker through this.
func (cb *CircuitBreaker) Wrap(key string, op Operation) Operation {
	return func(ctx context.Context) error {
		if err := cb.Allow(key); err != nil {
			return err
		}
		if err := op(ctx); err != nil {
			cb.RecordFailure(key)
			return err
		}
		cb.RecordSuccess(key)
		return nil
	}
}

// transition must be called with the breaker's own lock held.
func (cb *CircuitBreaker) transition(key string, b *breaker, to CircuitState, reason string) {
	from := b.state
	b.state = to
	cb.logger.Info("circuit breaker state change",
		zap.String("key", key),
		zap.String("old_state", from.String()),
		zap.String("new_state", to.String()),
		zap.String("reason", reason),
		zap.Int("failures", b.failures),
	)
	if cb.onStateChange != nil {
		cb.onStateChange(key, to)
	}
}
