package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agenthub/agent"
)

func fastRetryConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsOnFirstRetry(t *testing.T) {
	t.Parallel()

	ag := newMockAgent("agent-1")
	strat := NewRetryStrategy(fastRetryConfig(3), nil)

	calls := 0
	err := strat.Execute(context.Background(), ag, func(context.Context) error {
		calls++
		return nil
	}, errors.New("initial failure"))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, agent.StatusIdle, ag.Status())
	assert.Equal(t, 1, ag.recoveryAttempts())
}

func TestRetrySucceedsOnLastAttempt(t *testing.T) {
	t.Parallel()

	ag := newMockAgent("agent-1")
	strat := NewRetryStrategy(fastRetryConfig(3), nil)

	calls := 0
	err := strat.Execute(context.Background(), ag, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	}, errors.New("initial failure"))

	require.NoError(t, err)
	// Attempt 1 is the original failure; attempts 2 and 3 run here.
	assert.Equal(t, 2, calls)
	assert.Equal(t, agent.StatusIdle, ag.Status())
}

func TestRetryExhaustsBudgetAndEscalates(t *testing.T) {
	t.Parallel()

	ag := newMockAgent("agent-1")
	strat := NewRetryStrategy(fastRetryConfig(3), nil)

	cause := errors.New("permanent failure")
	calls := 0
	err := strat.Execute(context.Background(), ag, func(context.Context) error {
		calls++
		return cause
	}, cause)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecoveryExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, ag.recoveryAttempts())
	assert.Equal(t, agent.StatusError, ag.Status())
	assert.Equal(t, int64(1), strat.Invocations())
}

func TestRetryHonorsContextDuringBackoff(t *testing.T) {
	t.Parallel()

	ag := newMockAgent("agent-1")
	strat := NewRetryStrategy(RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Minute,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2.0,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := strat.Execute(ctx, ag, func(context.Context) error {
		calls++
		return nil
	}, errors.New("initial failure"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBackoffGrowthAndCap(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        300 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, cfg.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, cfg.Backoff(10))
}

func TestNewRetryStrategyAppliesDefaults(t *testing.T) {
	t.Parallel()

	strat := NewRetryStrategy(RetryConfig{}, nil)
	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, strat.cfg.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, strat.cfg.InitialBackoff)
	assert.Equal(t, def.MaxBackoff, strat.cfg.MaxBackoff)
	assert.Equal(t, def.BackoffMultiplier, strat.cfg.BackoffMultiplier)
}
