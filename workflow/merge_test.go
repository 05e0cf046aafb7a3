package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorScalarForSingleContributor(t *testing.T) {
	t.Parallel()

	acc := newResultAccumulator()
	acc.add(map[string]any{"summary": "short text"})
	acc.add(map[string]any{"translation": "texte court"})

	got := acc.snapshot()
	assert.Equal(t, map[string]any{
		"summary":     "short text",
		"translation": "texte court",
	}, got)
}

func TestAccumulatorListForMultipleContributors(t *testing.T) {
	t.Parallel()

	acc := newResultAccumulator()
	acc.add(map[string]any{"entities": "alpha"})
	acc.add(map[string]any{"entities": "beta"})
	acc.add(map[string]any{"entities": "gamma"})

	got := acc.snapshot()
	require.Len(t, got, 1)
	// Contributions are kept in completion order, never overwritten.
	assert.Equal(t, []any{"alpha", "beta", "gamma"}, got["entities"])
}

func TestAccumulatorMixedKeys(t *testing.T) {
	t.Parallel()

	acc := newResultAccumulator()
	acc.add(map[string]any{"score": 1, "label": "a"})
	acc.add(map[string]any{"score": 2})

	got := acc.snapshot()
	assert.Equal(t, "a", got["label"])
	assert.Equal(t, []any{1, 2}, got["score"])
}

func TestAccumulatorEmptySnapshotIsNil(t *testing.T) {
	t.Parallel()

	acc := newResultAccumulator()
	assert.Nil(t, acc.snapshot())

	acc.add(map[string]any{})
	assert.Nil(t, acc.snapshot())
}

func TestAccumulatorSnapshotIsStable(t *testing.T) {
	t.Parallel()

	acc := newResultAccumulator()
	acc.add(map[string]any{"k": "v1"})

	first := acc.snapshot()
	acc.add(map[string]any{"k": "v2"})
	second := acc.snapshot()

	assert.Equal(t, "v1", first["k"])
	assert.Equal(t, []any{"v1", "v2"}, second["k"])
}
