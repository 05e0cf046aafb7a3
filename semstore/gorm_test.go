package semstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStoreAddAndQuery(t *testing.T) {
	t.Parallel()

	s := newTestGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "idle", Source: "registry"}))
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "busy"}))
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "wf:1", Predicate: PredWorkflowStep, Object: "summarize"}))

	got, err := s.QueryFacts(ctx, Pattern{Subject: "agent:a1", Predicate: PredStatus})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Oldest first.
	assert.Equal(t, "idle", got[0].Object)
	assert.Equal(t, "busy", got[1].Object)
	assert.Equal(t, "registry", got[0].Source)

	got, err = s.QueryFacts(ctx, Pattern{Object: "summarize"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wf:1", got[0].Subject)
}

func TestGormStoreExportSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestGormStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "idle"}))

	data, err := s.ExportSnapshot(ctx, FormatJSON)
	require.NoError(t, err)

	var facts []Fact
	require.NoError(t, json.Unmarshal(data, &facts))
	require.Len(t, facts, 1)
	assert.False(t, facts[0].Timestamp.IsZero())
}

func TestNewGormStoreRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := NewGormStore(DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
