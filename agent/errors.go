package agent

import "errors"

var (
	// ErrNoCapableAgent means no registered idle agent can satisfy the
	// requested capability.
	ErrNoCapableAgent = errors.New("no capable agent available")

	// ErrAgentNotFound means the agent id is not in the registry.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAlreadyRegistered means an agent with the same id is live.
	ErrAlreadyRegistered = errors.New("agent already registered")

	// ErrAgentStopped means the agent has been deregistered and can no
	// longer process messages.
	ErrAgentStopped = errors.New("agent is stopped")

	// ErrUnknownTemplate means the factory has no template under that name.
	ErrUnknownTemplate = errors.New("unknown agent template")

	// ErrRegistryClosed means the registry has been shut down.
	ErrRegistryClosed = errors.New("registry is closed")
)
