// Package agenthub provides a top-level convenience entry point for
// embedding the orchestration runtime with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agenthub"
//
//	hub, err := agenthub.New()
//	hub, err := agenthub.New(agenthub.WithLogger(logger))
//	hub, err := agenthub.New(agenthub.WithConfig(cfg))
//
// This is a thin wrapper around [orchestrator.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package agenthub

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/config"
	"github.com/BaSui01/agenthub/orchestrator"
	"github.com/BaSui01/agenthub/semstore"
)

// Option configures the runtime created by [New].
type Option func(*options)

type options struct {
	cfg    *config.Config
	logger *zap.Logger
	store  semstore.Store
}

// WithConfig supplies a full configuration instead of the defaults.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore overrides the semantic store backend.
func WithStore(s semstore.Store) Option {
	return func(o *options) { o.store = s }
}

// New creates an [orchestrator.Orchestrator] with default configuration,
// an in-memory semantic store, and a production logger unless overridden.
func New(opts ...Option) (*orchestrator.Orchestrator, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if o.logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		o.logger = logger
	}

	var orcOpts []orchestrator.Option
	if o.store != nil {
		orcOpts = append(orcOpts, orchestrator.WithStore(o.store))
	}
	return orchestrator.New(o.cfg, o.logger, orcOpts...)
}
