package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testServerConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func newStartedManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	m := NewManager(handler, testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func TestStartAndServe(t *testing.T) {
	t.Parallel()

	m := newStartedManager(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))

	assert.True(t, m.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()

	m := newStartedManager(t, http.NotFoundHandler())
	assert.ErrorContains(t, m.Start(), "already started")
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	m := NewManager(http.NotFoundHandler(), testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	addr := m.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.False(t, m.IsRunning())

	_, err := http.Get("http://" + addr + "/")
	assert.Error(t, err)

	// Shutdown is idempotent and a closed server cannot be restarted.
	assert.NoError(t, m.Shutdown(ctx))
	assert.ErrorContains(t, m.Start(), "closed")
}

func TestShutdownDrainsInFlightRequests(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	m := newStartedManager(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	type result struct {
		status int
		err    error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + m.Addr() + "/slow")
		if err != nil {
			got <- result{err: err}
			return
		}
		resp.Body.Close()
		got <- result{status: resp.StatusCode}
	}()

	<-entered

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- m.Shutdown(ctx)
	}()

	// The in-flight request must complete before shutdown returns.
	close(release)

	select {
	case r := <-got:
		require.NoError(t, r.err)
		assert.Equal(t, http.StatusOK, r.status)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}
	require.NoError(t, <-shutdownDone)
}

func TestBindFailure(t *testing.T) {
	t.Parallel()

	first := newStartedManager(t, http.NotFoundHandler())

	cfg := testServerConfig()
	cfg.Addr = first.Addr()
	second := NewManager(http.NotFoundHandler(), cfg, zap.NewNop())
	assert.ErrorContains(t, second.Start(), "listen on")
}
