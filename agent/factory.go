package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/types"
)

// Constructor builds a concrete agent from an id and its resolved
// capability set.
type Constructor func(agentID string, caps *capability.Set) (Agent, error)

// Template describes how to build one kind of agent.
type Template struct {
	Name                string
	Constructor         Constructor
	DefaultCapabilities []capability.Capability
}

// capCacheEntry is a TTL-cached resolved capability list for a template.
type capCacheEntry struct {
	caps    []capability.Capability
	expires time.Time
}

// Factory creates agents from registered templates. Resolved capability
// sets are cached per template with a TTL; entries are checked on read and
// lazily recomputed after expiry, so no background eviction is needed.
type Factory struct {
	registry *Registry
	logger   *zap.Logger

	mu        sync.RWMutex
	templates map[string]Template
	capCache  map[string]capCacheEntry

	cacheTTL time.Duration
	now      func() time.Time
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithCacheTTL overrides the capability cache TTL.
func WithCacheTTL(ttl time.Duration) FactoryOption {
	return func(f *Factory) {
		if ttl > 0 {
			f.cacheTTL = ttl
		}
	}
}

// withClock overrides the time source. Used by tests to force expiry.
func withClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// NewFactory creates a factory that registers created agents with the given
// registry.
func NewFactory(registry *Registry, logger *zap.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		registry:  registry,
		logger:    logger.With(zap.String("component", "factory")),
		templates: make(map[string]Template),
		capCache:  make(map[string]capCacheEntry),
		cacheTTL:  5 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisterTemplate adds a named template. Default capabilities are
// validated eagerly so a bad template fails at registration, not at first
// creation. Registering a template invalidates its cached capability set.
func (f *Factory) RegisterTemplate(t Template) error {
	if t.Name == "" {
		return fmt.Errorf("template name must not be empty")
	}
	if t.Constructor == nil {
		return fmt.Errorf("template %q has no constructor", t.Name)
	}
	for _, c := range t.DefaultCapabilities {
		if _, err := capability.Declare(c.Type, c.Version); err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
	}

	f.mu.Lock()
	f.templates[t.Name] = t
	delete(f.capCache, t.Name)
	f.mu.Unlock()

	f.logger.Info("template registered",
		zap.String("template", t.Name),
		zap.Int("default_capabilities", len(t.DefaultCapabilities)),
	)
	return nil
}

// Templates returns the registered template names.
func (f *Factory) Templates() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.templates))
	for name := range f.templates {
		out = append(out, name)
	}
	return out
}

// CreateAgent builds an agent from a template, initializes it, and
// registers it. Any constructor failure, including a panic, is wrapped in a
// typed AGENT_CONSTRUCTION error so callers always see a typed failure.
func (f *Factory) CreateAgent(ctx context.Context, templateName, agentID string) (Agent, error) {
	f.mu.RLock()
	t, ok := f.templates[templateName]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateName)
	}

	caps, err := f.resolvedCapabilities(t)
	if err != nil {
		return nil, types.NewError(types.ErrCodeAgentConstruction, "capability resolution failed").WithCause(err)
	}
	set, err := capability.NewSet(caps)
	if err != nil {
		return nil, types.NewError(types.ErrCodeAgentConstruction, "capability set construction failed").WithCause(err)
	}

	a, err := f.construct(t, agentID, set)
	if err != nil {
		return nil, err
	}

	if err := a.Initialize(ctx); err != nil {
		return nil, types.NewError(types.ErrCodeAgentConstruction, "agent initialization failed").
			WithAgent(agentID).WithCause(err)
	}
	if err := f.registry.Register(a); err != nil {
		// The agent never became routable; release it before surfacing.
		_ = a.Cleanup(ctx)
		return nil, types.NewError(types.ErrCodeAgentConstruction, "agent registration failed").
			WithAgent(agentID).WithCause(err)
	}

	f.logger.Info("agent created",
		zap.String("template", templateName),
		zap.String("agent_id", agentID),
	)
	return a, nil
}

// construct invokes the template constructor, converting panics into typed
// errors.
func (f *Factory) construct(t Template, agentID string, set *capability.Set) (a Agent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a = nil
			err = types.NewError(types.ErrCodeAgentConstruction, "constructor panicked").
				WithAgent(agentID).WithCause(fmt.Errorf("%v", rec))
		}
	}()
	a, err = t.Constructor(agentID, set)
	if err != nil {
		return nil, types.NewError(types.ErrCodeAgentConstruction, "constructor failed").
			WithAgent(agentID).WithCause(err)
	}
	return a, nil
}

// resolvedCapabilities returns the template's capability list, resolving
// same-type conflicts, through the TTL cache.
func (f *Factory) resolvedCapabilities(t Template) ([]capability.Capability, error) {
	now := f.now()

	f.mu.RLock()
	entry, ok := f.capCache[t.Name]
	f.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.caps, nil
	}

	// Expired or missing: recompute and cache. Resolution runs through a
	// Set so at most one active version per type survives.
	set, err := capability.NewSet(t.DefaultCapabilities)
	if err != nil {
		return nil, err
	}
	caps := set.Snapshot()

	f.mu.Lock()
	f.capCache[t.Name] = capCacheEntry{caps: caps, expires: now.Add(f.cacheTTL)}
	f.mu.Unlock()
	return caps, nil
}
