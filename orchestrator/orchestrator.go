// Package orchestrator wires the registry, factory, recovery, semantic
// store and workflow engine into one coordinated runtime.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/agent"
	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/config"
	"github.com/BaSui01/agenthub/internal/metrics"
	"github.com/BaSui01/agenthub/monitor"
	"github.com/BaSui01/agenthub/recovery"
	"github.com/BaSui01/agenthub/semstore"
	"github.com/BaSui01/agenthub/workflow"
)

// Orchestrator owns the full agent runtime: one registry, one factory, one
// workflow engine, one monitor, and the semantic store they report into.
type Orchestrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     semstore.Store
	mirror    *semstore.Mirror
	registry  *agent.Registry
	factory   *agent.Factory
	breaker   *recovery.CircuitBreaker
	engine    *workflow.Engine
	monitor   *monitor.Monitor
	collector *metrics.Collector

	unsubscribe string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore overrides the configured semantic store backend. Tests use
// this to inject a memory store regardless of configuration.
func WithStore(s semstore.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithCollector attaches a Prometheus collector.
func WithCollector(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.collector = c }
}

// New builds the runtime from configuration. Nothing runs until the
// returned orchestrator is used; Shutdown releases everything.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		store, err := openStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("open semantic store: %w", err)
		}
		o.store = store
	}

	var mirrorOpts []semstore.MirrorOption
	if o.collector != nil {
		backend := cfg.Semstore.Backend
		if backend == "" {
			backend = "memory"
		}
		mirrorOpts = append(mirrorOpts,
			semstore.WithWriteHook(func(status string) { o.collector.RecordFact(backend, status) }),
			semstore.WithDropHook(o.collector.RecordMirrorDrop),
		)
	}
	o.mirror = semstore.NewMirror(o.store, semstore.MirrorConfig{
		BufferSize:      cfg.Semstore.MirrorBufferSize,
		WritesPerSecond: cfg.Semstore.MirrorWritesPerSecond,
		Burst:           cfg.Semstore.MirrorBurst,
	}, logger, mirrorOpts...)

	o.registry = agent.NewRegistry(logger, agent.WithRegistryMirror(o.mirror))
	o.factory = agent.NewFactory(o.registry, logger,
		agent.WithCacheTTL(cfg.Factory.CapabilityCacheTTL),
	)

	var breakerOpts []recovery.CircuitBreakerOption
	if o.collector != nil {
		breakerOpts = append(breakerOpts,
			recovery.WithStateChangeHook(func(key string, state recovery.CircuitState) {
				o.collector.SetCircuitState(key, int(state))
			}),
		)
	}
	o.breaker = recovery.NewCircuitBreaker(recovery.CircuitBreakerConfig{
		FailureThreshold:  cfg.Recovery.FailureThreshold,
		FailureWindow:     cfg.Recovery.FailureWindow,
		Cooldown:          cfg.Recovery.Cooldown,
		HalfOpenSuccesses: cfg.Recovery.HalfOpenSuccesses,
	}, logger, breakerOpts...)

	selector := recovery.Selector{
		Retry: recovery.NewRetryStrategy(recovery.RetryConfig{
			MaxAttempts:       cfg.Recovery.MaxAttempts,
			InitialBackoff:    cfg.Recovery.InitialBackoff,
			MaxBackoff:        cfg.Recovery.MaxBackoff,
			BackoffMultiplier: cfg.Recovery.BackoffMultiplier,
		}, logger),
		Restore: recovery.NewStateRestoreStrategy(logger),
		Default: recovery.NewDefaultStrategy(logger),
	}

	engineOpts := []workflow.EngineOption{
		workflow.WithSelector(selector),
		workflow.WithBreaker(o.breaker),
		workflow.WithMirror(o.mirror),
	}
	if o.collector != nil {
		engineOpts = append(engineOpts, workflow.WithEngineCollector(o.collector))
	}
	o.engine = workflow.NewEngine(o.registry, workflow.EngineConfig{
		StepTimeout:        cfg.Engine.StepTimeout,
		WorkflowTimeout:    cfg.Engine.WorkflowTimeout,
		PollInterval:       cfg.Engine.PollInterval,
		MaxConcurrentSteps: cfg.Engine.MaxConcurrentSteps,
		EventBuffer:        cfg.Engine.EventBuffer,
	}, logger, engineOpts...)

	var monOpts []monitor.Option
	if o.collector != nil {
		monOpts = append(monOpts, monitor.WithCollector(o.collector))
	}
	o.monitor = monitor.New(o.engine.Events(), monitor.Config{
		StuckThreshold:       cfg.Monitor.StuckThreshold,
		ScanInterval:         cfg.Monitor.ScanInterval,
		FailureWindow:        cfg.Monitor.FailureWindow,
		FailureRateThreshold: cfg.Monitor.FailureRateThreshold,
		MinSamples:           cfg.Monitor.MinSamples,
		AlertBuffer:          cfg.Monitor.AlertBuffer,
	}, logger, monOpts...)

	if o.collector != nil {
		o.unsubscribe = o.registry.Subscribe(func(ev agent.RegistryEvent) {
			if ev.Type == agent.EventRegistered || ev.Type == agent.EventDeregistered {
				o.collector.SetRegisteredAgents(o.registry.Len())
			}
		})
	}

	return o, nil
}

// openStore builds the configured semantic store backend.
func openStore(cfg *config.Config) (semstore.Store, error) {
	switch cfg.Semstore.Backend {
	case "memory", "":
		return semstore.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		store := semstore.NewRedisStoreFromClient(client, cfg.Semstore.KeyPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unavailable: %w", err)
		}
		return store, nil
	case "database":
		return semstore.NewGormStore(semstore.DatabaseConfig{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN(),
		})
	default:
		return nil, fmt.Errorf("unknown semstore backend %q", cfg.Semstore.Backend)
	}
}

// Registry exposes the agent registry.
func (o *Orchestrator) Registry() *agent.Registry { return o.registry }

// Factory exposes the agent template factory.
func (o *Orchestrator) Factory() *agent.Factory { return o.factory }

// Engine exposes the workflow engine.
func (o *Orchestrator) Engine() *workflow.Engine { return o.engine }

// Monitor exposes the advisory workflow monitor.
func (o *Orchestrator) Monitor() *monitor.Monitor { return o.monitor }

// Store exposes the semantic store.
func (o *Orchestrator) Store() semstore.Store { return o.store }

// AgentOptions returns the construction options template constructors
// should pass to NewBaseAgent so every agent reports into the shared
// runtime: the semantic store mirror and, when a collector is attached,
// a transition hook feeding state-change metrics.
func (o *Orchestrator) AgentOptions() []agent.Option {
	opts := []agent.Option{agent.WithMirror(o.mirror)}
	if o.collector != nil {
		opts = append(opts, agent.WithTransitionHook(o.collector.RecordAgentStateTransition))
	}
	return opts
}

// RegisterTemplate registers an agent template with the factory.
func (o *Orchestrator) RegisterTemplate(t agent.Template) error {
	return o.factory.RegisterTemplate(t)
}

// CreateAgent instantiates, initializes and registers an agent from a
// template.
func (o *Orchestrator) CreateAgent(ctx context.Context, templateName, agentID string) (agent.Agent, error) {
	return o.factory.CreateAgent(ctx, templateName, agentID)
}

// SubmitWorkflow starts a workflow for the given capabilities and
// dependency edges and returns its id.
func (o *Orchestrator) SubmitWorkflow(name string, caps []capability.Capability, deps map[string][]string) (string, error) {
	return o.engine.Submit(workflow.SubmitRequest{
		Name:         name,
		Capabilities: caps,
		Dependencies: deps,
	})
}

// WorkflowStatus returns the status snapshot of a workflow.
func (o *Orchestrator) WorkflowStatus(workflowID string) (workflow.StatusView, error) {
	return o.engine.Status(workflowID)
}

// CancelWorkflow aborts a running workflow.
func (o *Orchestrator) CancelWorkflow(workflowID string) error {
	return o.engine.Cancel(workflowID)
}

// WaitWorkflow blocks until the workflow is terminal or ctx expires.
func (o *Orchestrator) WaitWorkflow(ctx context.Context, workflowID string) error {
	return o.engine.Wait(ctx, workflowID)
}

// Shutdown stops the engine, monitor and registry, flushes the mirror and
// closes the store. Order matters: producers stop before the mirror drains.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var errs []error

	o.engine.Shutdown()
	o.monitor.Close()
	if o.unsubscribe != "" {
		o.registry.Unsubscribe(o.unsubscribe)
	}
	if err := o.registry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("registry shutdown: %w", err))
	}
	if err := o.mirror.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mirror close: %w", err))
	}
	if err := o.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	o.logger.Info("orchestrator stopped")
	return errors.Join(errs...)
}
