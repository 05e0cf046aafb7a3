package semstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatches(t *testing.T) {
	t.Parallel()

	f := Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "idle"}

	cases := []struct {
		name string
		p    Pattern
		want bool
	}{
		{"wildcard", Pattern{}, true},
		{"subject only", Pattern{Subject: "agent:a1"}, true},
		{"full triple", Pattern{Subject: "agent:a1", Predicate: PredStatus, Object: "idle"}, true},
		{"wrong subject", Pattern{Subject: "agent:a2"}, false},
		{"wrong predicate", Pattern{Predicate: PredCapability}, false},
		{"wrong object", Pattern{Subject: "agent:a1", Object: "busy"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.p.Matches(f))
		})
	}
}

func TestMemoryStoreAddAndQuery(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "idle"}))
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "busy"}))
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a2", Predicate: PredStatus, Object: "idle"}))
	assert.Equal(t, 3, s.Len())

	got, err := s.QueryFacts(ctx, Pattern{Subject: "agent:a1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Insertion order is preserved.
	assert.Equal(t, "idle", got[0].Object)
	assert.Equal(t, "busy", got[1].Object)

	got, err = s.QueryFacts(ctx, Pattern{Object: "idle"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.QueryFacts(ctx, Pattern{Subject: "agent:missing"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreClosed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	require.NoError(t, s.Close())

	err := s.AddFact(context.Background(), Fact{Subject: "x"})
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = s.QueryFacts(context.Background(), Pattern{})
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = s.ExportSnapshot(context.Background(), FormatJSON)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestExportSnapshotJSON(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.AddFact(ctx, Fact{
		Subject: "wf:1", Predicate: PredWorkflowStep, Object: "summarize",
		Source: "engine", Timestamp: ts,
	}))

	data, err := s.ExportSnapshot(ctx, FormatJSON)
	require.NoError(t, err)

	var facts []Fact
	require.NoError(t, json.Unmarshal(data, &facts))
	require.Len(t, facts, 1)
	assert.Equal(t, "wf:1", facts[0].Subject)
	assert.Equal(t, PredWorkflowStep, facts[0].Predicate)
	assert.True(t, ts.Equal(facts[0].Timestamp))
}

func TestExportSnapshotNTriples(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "idle"}))

	data, err := s.ExportSnapshot(ctx, FormatNTriples)
	require.NoError(t, err)
	assert.Equal(t, "<agent:a1> <agenthub/status> \"idle\" .\n", string(data))
}

func TestExportSnapshotUnsupportedFormat(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.ExportSnapshot(context.Background(), "xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
