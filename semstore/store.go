// Package semstore provides the semantic fact store used to mirror engine
// state changes for audit and diagnostics. The store is a collaborator, not
// a dependency: scheduling decisions never require it, and an unavailable
// backend degrades to "no audit trail" rather than failing the engine.
package semstore

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrStoreClosed       = errors.New("store is closed")
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
)

// Snapshot formats accepted by ExportSnapshot.
const (
	FormatJSON     = "json"
	FormatNTriples = "ntriples"
)

// Fact is a single subject-predicate-object triple with provenance.
type Fact struct {
	Subject   string    `json:"subject"`
	Predicate string    `json:"predicate"`
	Object    string    `json:"object"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Pattern matches facts; empty fields act as wildcards.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
}

// Matches reports whether the fact satisfies the pattern.
func (p Pattern) Matches(f Fact) bool {
	if p.Subject != "" && p.Subject != f.Subject {
		return false
	}
	if p.Predicate != "" && p.Predicate != f.Predicate {
		return false
	}
	if p.Object != "" && p.Object != f.Object {
		return false
	}
	return true
}

// Store is the triple store contract consumed by the engine. Any triple,
// graph or key-value backend can implement it.
type Store interface {
	// AddFact mirrors a state change. Callers treat failures as advisory.
	AddFact(ctx context.Context, f Fact) error

	// QueryFacts returns all facts matching the pattern. Used read-only by
	// capability and health diagnostics.
	QueryFacts(ctx context.Context, p Pattern) ([]Fact, error)

	// ExportSnapshot serializes the full fact set in the given format.
	// Intended for external inspection and debugging only.
	ExportSnapshot(ctx context.Context, format string) ([]byte, error)

	// Close releases backend resources.
	Close() error
}

// Well-known predicates written by the engine.
const (
	PredStatus          = "agenthub/status"
	PredCapability      = "agenthub/capability"
	PredAssignedAgent   = "agenthub/assignedAgent"
	PredWorkflowStep    = "agenthub/hasStep"
	PredFailureReason   = "agenthub/failureReason"
	PredRecoveryAttempt = "agenthub/recoveryAttempt"
	PredRegisteredAt    = "agenthub/registeredAt"
)
