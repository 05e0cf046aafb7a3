package capability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownType is returned when a capability type is not in the
	// registered vocabulary.
	ErrUnknownType = errors.New("unknown capability type")

	// ErrInvalidVersion is returned when a version string does not parse as
	// major.minor.patch.
	ErrInvalidVersion = errors.New("invalid capability version")

	// ErrTypeMismatch is returned when a conflict resolution is attempted
	// across different capability types.
	ErrTypeMismatch = errors.New("capability type mismatch")
)

// Capability is a typed, versioned declaration of what an agent can do.
type Capability struct {
	Type    Type   `json:"type"`
	Version string `json:"version"`
}

// Declare constructs a capability, validating the type against the closed
// vocabulary and the version format. Invalid input is a construction-time
// error, never a silent no-op.
func Declare(t Type, version string) (Capability, error) {
	if !Known(t) {
		return Capability{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if _, err := parseVersion(version); err != nil {
		return Capability{}, err
	}
	return Capability{Type: t, Version: version}, nil
}

// MustDeclare is Declare that panics on error. Intended for static
// capability tables in templates and tests.
func MustDeclare(t Type, version string) Capability {
	c, err := Declare(t, version)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Capability) String() string {
	return fmt.Sprintf("%s@%s", c.Type, c.Version)
}

// version holds a parsed semantic version.
type version struct {
	major, minor, patch int
}

func parseVersion(s string) (version, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	var v version
	for i, dst := range []*int{&v.major, &v.minor, &v.patch} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		*dst = n
	}
	return v, nil
}

// compareVersions returns -1, 0 or 1 for a < b, a == b, a > b.
// Both inputs must already be validated.
func compareVersions(a, b string) int {
	va, _ := parseVersion(a)
	vb, _ := parseVersion(b)
	if va.major != vb.major {
		return sign(va.major - vb.major)
	}
	if va.minor != vb.minor {
		return sign(va.minor - vb.minor)
	}
	return sign(va.patch - vb.patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// IsCompatible reports whether two capabilities are interchangeable: same
// type and same major version.
func IsCompatible(a, b Capability) bool {
	if a.Type != b.Type {
		return false
	}
	va, errA := parseVersion(a.Version)
	vb, errB := parseVersion(b.Version)
	if errA != nil || errB != nil {
		return false
	}
	return va.major == vb.major
}

// Satisfies reports whether the advertised capability can serve the
// requirement: same type, same major version, and advertised version not
// older than required.
func (c Capability) Satisfies(req Capability) bool {
	return IsCompatible(c, req) && compareVersions(c.Version, req.Version) >= 0
}

// ConflictPolicy governs how same-type version conflicts are resolved.
// The zero value keeps the higher version.
type ConflictPolicy struct {
	// Pins maps a capability type to a version that must win regardless of
	// ordering. A pinned version that matches neither side is an error.
	Pins map[Type]string
}

// ResolveConflict picks the winner between an existing and an incoming
// capability of the same type. Higher version wins unless a pin overrides.
// Resolution across different types is refused: incompatible types never
// coexist silently.
func (p ConflictPolicy) ResolveConflict(existing, incoming Capability) (Capability, error) {
	if existing.Type != incoming.Type {
		return Capability{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, existing.Type, incoming.Type)
	}
	if pinned, ok := p.Pins[existing.Type]; ok {
		switch pinned {
		case existing.Version:
			return existing, nil
		case incoming.Version:
			return incoming, nil
		default:
			return Capability{}, fmt.Errorf("pinned version %s for %s matches neither %s nor %s",
				pinned, existing.Type, existing.Version, incoming.Version)
		}
	}
	if compareVersions(incoming.Version, existing.Version) > 0 {
		return incoming, nil
	}
	return existing, nil
}
