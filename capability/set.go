package capability

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Set holds an agent's advertised capabilities with at most one active
// version per type. All mutation goes through Add, which applies the
// conflict policy; superseded versions are dropped, never advertised.
// Set is safe for concurrent use.
type Set struct {
	mu     sync.RWMutex
	active map[Type]Capability
	policy ConflictPolicy
	logger *zap.Logger
}

// SetOption configures a Set.
type SetOption func(*Set)

// WithPolicy sets the conflict policy used by Add.
func WithPolicy(p ConflictPolicy) SetOption {
	return func(s *Set) { s.policy = p }
}

// WithLogger sets the logger used to record conflict resolutions.
func WithLogger(l *zap.Logger) SetOption {
	return func(s *Set) { s.logger = l }
}

// NewSet creates a capability set from the given capabilities. Conflicts in
// the initial list are resolved in order.
func NewSet(caps []Capability, opts ...SetOption) (*Set, error) {
	s := &Set{
		active: make(map[Type]Capability, len(caps)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, c := range caps {
		if err := s.Add(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts a capability, resolving any same-type conflict explicitly.
// Every resolution is logged so superseded versions leave a trace.
func (s *Set) Add(c Capability) error {
	if !Known(c.Type) {
		return ErrUnknownType
	}
	if _, err := parseVersion(c.Version); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.active[c.Type]
	if !ok {
		s.active[c.Type] = c
		return nil
	}
	winner, err := s.policy.ResolveConflict(existing, c)
	if err != nil {
		return err
	}
	if winner != existing {
		s.logger.Info("capability version superseded",
			zap.String("type", string(c.Type)),
			zap.String("old_version", existing.Version),
			zap.String("new_version", winner.Version),
		)
	}
	s.active[c.Type] = winner
	return nil
}

// Remove drops the active capability for a type, if any.
func (s *Set) Remove(t Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, t)
}

// Satisfies reports whether the set can serve the requirement at an active,
// non-superseded version.
func (s *Set) Satisfies(req Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.active[req.Type]
	return ok && c.Satisfies(req)
}

// Has reports whether any version of the type is active.
func (s *Set) Has(t Type) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[t]
	return ok
}

// Get returns the active capability for a type.
func (s *Set) Get(t Type) (Capability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.active[t]
	return c, ok
}

// Snapshot returns the active capabilities sorted by type. The returned
// slice is a copy and safe to retain.
func (s *Set) Snapshot() []Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Capability, 0, len(s.active))
	for _, c := range s.active {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Len returns the number of active capabilities.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}
