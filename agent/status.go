package agent

import "fmt"

// Status defines the agent lifecycle states.
type Status string

const (
	StatusInitializing Status = "initializing" // Created, not yet usable
	StatusIdle         Status = "idle"         // Ready to accept work
	StatusBusy         Status = "busy"         // Processing a message
	StatusRecovering   Status = "recovering"   // A recovery strategy is running
	StatusError        Status = "error"        // Unrecoverable fault
	StatusStopped      Status = "stopped"      // Deregistered, resources released
)

// validTransitions defines the legal status transitions.
var validTransitions = map[Status][]Status{
	StatusInitializing: {StatusIdle, StatusError, StatusStopped},
	StatusIdle:         {StatusBusy, StatusRecovering, StatusError, StatusStopped},
	StatusBusy:         {StatusIdle, StatusRecovering, StatusError, StatusStopped},
	StatusRecovering:   {StatusIdle, StatusError, StatusStopped},
	StatusError:        {StatusRecovering, StatusStopped},
	StatusStopped:      {},
}

// CanTransition reports whether the transition is legal.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition reports an illegal status transition.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}
