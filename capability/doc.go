// Package capability defines the typed, versioned capability vocabulary that
// agents advertise and workflows require. The vocabulary is closed: declaring
// a capability with a type outside the registered set is a construction-time
// error, never a silent no-op. Each capability carries a semantic version and
// an agent's capability set holds at most one active version per type;
// conflicts are resolved explicitly before the capability reaches the
// registry.
package capability
