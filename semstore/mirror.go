package semstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Mirror is the fire-and-forget write path between the engine and a Store.
// Publish never blocks the caller: facts are buffered and written by a
// single background worker, rate limited so a chatty engine cannot saturate
// the backend. Write failures are logged and counted, never propagated: the
// in-memory operation that produced the fact has already succeeded.
//
// Close drains the buffer before returning so no write is left dangling at
// teardown.
type Mirror struct {
	store   Store
	ch      chan Fact
	limiter *rate.Limiter
	logger  *zap.Logger

	onWrite func(status string)
	onDrop  func()

	dropped   atomic.Int64
	failed    atomic.Int64
	pending   atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithWriteHook installs a callback invoked after every backend write
// attempt with "success" or "failure". Used to feed metrics.
func WithWriteHook(hook func(status string)) MirrorOption {
	return func(m *Mirror) { m.onWrite = hook }
}

// WithDropHook installs a callback invoked whenever a fact is dropped
// because the buffer is full.
func WithDropHook(hook func()) MirrorOption {
	return func(m *Mirror) { m.onDrop = hook }
}

// MirrorConfig tunes the mirror buffer and write rate.
type MirrorConfig struct {
	// BufferSize is the number of facts held while the backend is slow.
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// WritesPerSecond caps the sustained backend write rate.
	WritesPerSecond float64 `yaml:"writes_per_second" json:"writes_per_second"`
	// Burst is the short-term write burst allowance.
	Burst int `yaml:"burst" json:"burst"`
}

// DefaultMirrorConfig returns the default mirror tuning.
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		BufferSize:      1024,
		WritesPerSecond: 200,
		Burst:           50,
	}
}

// NewMirror starts the background writer for the given store.
func NewMirror(store Store, cfg MirrorConfig, logger *zap.Logger, opts ...MirrorOption) *Mirror {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultMirrorConfig().BufferSize
	}
	if cfg.WritesPerSecond <= 0 {
		cfg.WritesPerSecond = DefaultMirrorConfig().WritesPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultMirrorConfig().Burst
	}
	m := &Mirror{
		store:   store,
		ch:      make(chan Fact, cfg.BufferSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.WritesPerSecond), cfg.Burst),
		logger:  logger.With(zap.String("component", "semstore_mirror")),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.run()
	return m
}

// Publish enqueues a fact for mirroring. If the buffer is full the fact is
// dropped and counted; audit mirroring is best effort.
func (m *Mirror) Publish(f Fact) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	m.pending.Add(1)
	select {
	case m.ch <- f:
	default:
		m.pending.Add(-1)
		n := m.dropped.Add(1)
		if m.onDrop != nil {
			m.onDrop()
		}
		if n%100 == 1 {
			m.logger.Warn("mirror buffer full, dropping facts",
				zap.Int64("dropped_total", n))
		}
	}
}

// Dropped returns the number of facts dropped due to a full buffer.
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

// Failed returns the number of backend write failures.
func (m *Mirror) Failed() int64 {
	return m.failed.Load()
}

func (m *Mirror) run() {
	defer close(m.done)
	ctx := context.Background()
	for f := range m.ch {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		err := m.store.AddFact(ctx, f)
		if err != nil {
			m.failed.Add(1)
			m.logger.Warn("mirror write failed",
				zap.String("subject", f.Subject),
				zap.String("predicate", f.Predicate),
				zap.Error(err),
			)
		}
		if m.onWrite != nil {
			status := "success"
			if err != nil {
				status = "failure"
			}
			m.onWrite(status)
		}
		m.pending.Add(-1)
	}
}

// Flush waits until every fact enqueued so far has been handed to the
// backend, bounded by the context. Callers use it on teardown paths so no
// scheduled mirror write is left dangling.
func (m *Mirror) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-m.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting facts and waits for the buffer to drain, bounded by
// the context. It must be called before the backing store is closed.
func (m *Mirror) Close(ctx context.Context) error {
	m.closeOnce.Do(func() { close(m.ch) })
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
