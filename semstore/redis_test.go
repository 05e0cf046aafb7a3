package semstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, "test:")
}

func TestRedisStoreAddAndQuery(t *testing.T) {
	t.Parallel()

	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "idle"}))
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "busy"}))
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a2", Predicate: PredCapability, Object: "summarization@1.0.0"}))

	got, err := s.QueryFacts(ctx, Pattern{Subject: "agent:a1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "idle", got[0].Object)
	assert.Equal(t, "busy", got[1].Object)

	got, err = s.QueryFacts(ctx, Pattern{Predicate: PredCapability})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent:a2", got[0].Subject)

	got, err = s.QueryFacts(ctx, Pattern{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRedisStoreTimestampsAssigned(t *testing.T) {
	t.Parallel()

	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddFact(ctx, Fact{Subject: "wf:1", Predicate: PredWorkflowStep, Object: "translate"}))
	got, err := s.QueryFacts(ctx, Pattern{Subject: "wf:1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestRedisStoreExportSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddFact(ctx, Fact{Subject: "agent:a1", Predicate: PredStatus, Object: "idle"}))

	data, err := s.ExportSnapshot(ctx, FormatNTriples)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<agent:a1> <agenthub/status> \"idle\" .")

	_, err = s.ExportSnapshot(ctx, "csv")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRedisStorePing(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStoreFromClient(client, "")
	assert.NoError(t, s.Ping(context.Background()))
}
