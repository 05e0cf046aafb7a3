package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/semstore"
	"github.com/BaSui01/agenthub/types"
)

// RegistryEventType classifies registry lifecycle notifications.
type RegistryEventType string

const (
	EventRegistered       RegistryEventType = "registered"
	EventDeregistered     RegistryEventType = "deregistered"
	EventCapabilityChange RegistryEventType = "capability_changed"
	EventStatusChange     RegistryEventType = "status_changed"
)

// RegistryEvent describes one registry mutation.
type RegistryEvent struct {
	Type      RegistryEventType `json:"type"`
	AgentID   string            `json:"agent_id"`
	AgentType string            `json:"agent_type,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Observer receives registry events. Delivery is at-least-once and
// synchronous relative to the mutation that caused it, but callbacks always
// run outside the registry's directory lock so an observer can never
// deadlock the registry.
type Observer func(RegistryEvent)

// observerCounter generates unique subscription ids.
var observerCounter int64

// Registry is the authoritative directory of live agents and their
// capability index. It is the only truly shared mutable structure in the
// engine; all access goes through the directory lock, which is always
// acquired before any individual agent's locks.
type Registry struct {
	logger *zap.Logger
	mirror *semstore.Mirror

	// mu is the directory lock.
	mu        sync.RWMutex
	agents    map[string]Agent
	index     map[capability.Type]map[string]Agent
	observers map[string]Observer
	closed    bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryMirror attaches the semantic store mirror for registration
// audit facts.
func WithRegistryMirror(m *semstore.Mirror) RegistryOption {
	return func(r *Registry) { r.mirror = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:    logger.With(zap.String("component", "registry")),
		agents:    make(map[string]Agent),
		index:     make(map[capability.Type]map[string]Agent),
		observers: make(map[string]Observer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an agent to the directory and capability index.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	if _, exists := r.agents[a.ID()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, a.ID())
	}
	r.agents[a.ID()] = a
	r.indexLocked(a)
	r.mu.Unlock()

	if r.mirror != nil {
		r.mirror.Publish(semstore.Fact{
			Subject:   "agent/" + a.ID(),
			Predicate: semstore.PredRegisteredAt,
			Object:    time.Now().UTC().Format(time.RFC3339),
			Source:    "registry",
		})
	}
	r.logger.Info("agent registered",
		zap.String("agent_id", a.ID()),
		zap.String("agent_type", a.Type()),
		zap.Int("capabilities", len(a.Capabilities())),
	)
	r.notify(RegistryEvent{
		Type:      EventRegistered,
		AgentID:   a.ID(),
		AgentType: a.Type(),
		Timestamp: time.Now(),
	})
	return nil
}

// Deregister removes the agent from the directory and releases every
// capability-index entry referencing it, then stops the agent. Cleanup is
// guaranteed even if the status transition fails.
func (r *Registry) Deregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	// Directory consistency first: once the lock is released the agent is
	// unroutable, so the Stopped transition below cannot race a new
	// assignment.
	delete(r.agents, agentID)
	r.unindexLocked(a)
	r.mu.Unlock()

	err := a.Cleanup(ctx)
	if err != nil {
		r.logger.Warn("agent cleanup failed during deregistration",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}
	r.notify(RegistryEvent{
		Type:      EventDeregistered,
		AgentID:   agentID,
		AgentType: a.Type(),
		Timestamp: time.Now(),
	})
	return err
}

// Get returns the agent with the given id.
func (r *Registry) Get(agentID string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return a, nil
}

// List returns the ids of all registered agents, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// FindByCapability returns the ids of agents whose current capability set
// satisfies the requirement at an active, non-superseded version,
// regardless of status.
func (r *Registry) FindByCapability(req capability.Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, a := range r.index[req.Type] {
		if a.Can(req) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Select picks the best idle agent for the requirement: candidates are
// filtered to Idle agents that satisfy the capability, then tie-broken by
// lowest error count and longest idle time. If no agent qualifies it
// returns ErrNoCapableAgent immediately rather than blocking.
func (r *Registry) Select(req capability.Capability) (Agent, error) {
	r.mu.RLock()
	candidates := make([]Agent, 0, len(r.index[req.Type]))
	for _, a := range r.index[req.Type] {
		candidates = append(candidates, a)
	}
	r.mu.RUnlock()

	// Status and health reads take per-agent locks, so they happen after
	// the directory lock is released.
	var best Agent
	var bestHealth Health
	for _, a := range candidates {
		if !a.Can(req) || a.Status() != StatusIdle {
			continue
		}
		h := a.Health()
		if best == nil || betterCandidate(h, bestHealth) {
			best, bestHealth = a, h
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCapableAgent, req)
	}
	return best, nil
}

// betterCandidate reports whether h beats current: fewer errors first, then
// longer idle for fairness.
func betterCandidate(h, current Health) bool {
	if h.ErrorCount != current.ErrorCount {
		return h.ErrorCount < current.ErrorCount
	}
	return h.IdleSince.Before(current.IdleSince)
}

// Route delivers the message to the best matching idle agent for the
// requirement and returns its response together with the serving agent id.
func (r *Registry) Route(ctx context.Context, req capability.Capability, msg types.Message) (types.Message, string, error) {
	a, err := r.Select(req)
	if err != nil {
		return types.Message{}, "", types.NewError(types.ErrCodeNoCapableAgent, "no idle agent satisfies requirement").
			WithCause(err).AsRetryable()
	}
	msg.RecipientID = a.ID()
	resp, err := a.ProcessMessage(ctx, msg)
	return resp, a.ID(), err
}

// Reindex rebuilds the capability index entries for one agent after its
// capability set changed.
func (r *Registry) Reindex(agentID string) error {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	r.unindexLocked(a)
	r.indexLocked(a)
	r.mu.Unlock()

	r.notify(RegistryEvent{
		Type:      EventCapabilityChange,
		AgentID:   agentID,
		AgentType: a.Type(),
		Timestamp: time.Now(),
	})
	return nil
}

// Subscribe adds an observer and returns its subscription id.
func (r *Registry) Subscribe(obs Observer) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("obs-%d", atomic.AddInt64(&observerCounter, 1))
	r.observers[id] = obs
	return id
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, subscriptionID)
}

// NotifyStatusChange lets collaborators surface an agent status change to
// registry observers.
func (r *Registry) NotifyStatusChange(agentID string, status Status) {
	r.notify(RegistryEvent{
		Type:      EventStatusChange,
		AgentID:   agentID,
		Detail:    string(status),
		Timestamp: time.Now(),
	})
}

// Shutdown deregisters every agent, guaranteeing cleanup for each, and
// closes the registry to further registration.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := r.Deregister(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.logger.Info("registry shut down", zap.Int("agents_released", len(ids)))
	return firstErr
}

// notify dispatches an event to all observers outside the directory lock.
func (r *Registry) notify(ev RegistryEvent) {
	r.mu.RLock()
	obs := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		obs = append(obs, o)
	}
	r.mu.RUnlock()

	for _, o := range obs {
		o(ev)
	}
}

// indexLocked adds the agent under every capability type it advertises.
// Caller holds the directory lock.
func (r *Registry) indexLocked(a Agent) {
	for _, c := range a.Capabilities() {
		m, ok := r.index[c.Type]
		if !ok {
			m = make(map[string]Agent)
			r.index[c.Type] = m
		}
		m[a.ID()] = a
	}
}

// unindexLocked removes every capability-index entry referencing the agent.
// Caller holds the directory lock.
func (r *Registry) unindexLocked(a Agent) {
	for t, m := range r.index {
		delete(m, a.ID())
		if len(m) == 0 {
			delete(r.index, t)
		}
	}
}
