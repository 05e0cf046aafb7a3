package semstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is the in-memory Store implementation. It is the default
// backend and the one used by tests; it never fails except after Close.
type MemoryStore struct {
	mu     sync.RWMutex
	facts  []Fact
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AddFact appends a fact.
func (s *MemoryStore) AddFact(_ context.Context, f Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.facts = append(s.facts, f)
	return nil
}

// QueryFacts returns all facts matching the pattern in insertion order.
func (s *MemoryStore) QueryFacts(_ context.Context, p Pattern) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var out []Fact
	for _, f := range s.facts {
		if p.Matches(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// ExportSnapshot serializes all facts.
func (s *MemoryStore) ExportSnapshot(_ context.Context, format string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return encodeSnapshot(s.facts, format)
}

// Len returns the number of stored facts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// encodeSnapshot renders facts in a named export format. Shared by all
// backends.
func encodeSnapshot(facts []Fact, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(facts, "", "  ")
	case FormatNTriples:
		var b strings.Builder
		for _, f := range facts {
			fmt.Fprintf(&b, "<%s> <%s> %q .\n", f.Subject, f.Predicate, f.Object)
		}
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
