package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	e := NewError(ErrCodeStepFailed, "step blew up")
	assert.Equal(t, "[STEP_FAILED] step blew up", e.Error())

	cause := errors.New("root cause")
	e = e.WithCause(cause)
	assert.Equal(t, "[STEP_FAILED] step blew up: root cause", e.Error())
	assert.Same(t, cause, errors.Unwrap(e))
}

func TestErrorIsMatchesOnCode(t *testing.T) {
	t.Parallel()

	e := NewError(ErrCodeTimeout, "step deadline").WithStep("summarize")
	assert.ErrorIs(t, e, NewError(ErrCodeTimeout, "different message"))
	assert.NotErrorIs(t, e, NewError(ErrCodeCancelled, "step deadline"))

	// Matching survives wrapping.
	wrapped := fmt.Errorf("engine: %w", e)
	assert.ErrorIs(t, wrapped, NewError(ErrCodeTimeout, ""))
}

func TestErrorAsRecoversMetadata(t *testing.T) {
	t.Parallel()

	e := NewError(ErrCodeProcessing, "flaky").
		WithStep("translate").
		WithAgent("agent-7").
		AsRetryable()

	wrapped := fmt.Errorf("step: %w", e)
	var te *Error
	require.ErrorAs(t, wrapped, &te)
	assert.Equal(t, ErrCodeProcessing, te.Code)
	assert.Equal(t, "translate", te.StepID)
	assert.Equal(t, "agent-7", te.AgentID)
	assert.True(t, te.Retryable)
}

func TestErrorChainThroughCause(t *testing.T) {
	t.Parallel()

	root := NewError(ErrCodeNoCapableAgent, "no agent for ocr@1.0.0")
	outer := NewError(ErrCodeWorkflowFailed, "workflow halted").WithCause(root)

	assert.ErrorIs(t, outer, NewError(ErrCodeNoCapableAgent, ""))
}
