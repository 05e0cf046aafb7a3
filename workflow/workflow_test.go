package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusRolledBack.Terminal())
}

func TestStatusPublicMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status Status
		want   string
	}{
		{StatusCompleted, "success"},
		{StatusFailed, "failure"},
		{StatusRolledBack, "rolled_back"},
		{StatusRunning, "running"},
		{StatusPending, "pending"},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.status.Public())
		})
	}
}

func TestStepStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StepPending.Terminal())
	assert.False(t, StepScheduled.Terminal())
	assert.False(t, StepRunning.Terminal())
	assert.True(t, StepCompleted.Terminal())
	assert.True(t, StepFailed.Terminal())
}
