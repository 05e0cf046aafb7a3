package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Capability and routing error codes
const (
	ErrCodeUnknownCapability ErrorCode = "UNKNOWN_CAPABILITY_TYPE"
	ErrCodeNoCapableAgent    ErrorCode = "NO_CAPABLE_AGENT"
)

// Agent error codes
const (
	ErrCodeProcessing        ErrorCode = "PROCESSING_ERROR"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeAgentConstruction ErrorCode = "AGENT_CONSTRUCTION"
	ErrCodeUnknownTemplate   ErrorCode = "UNKNOWN_TEMPLATE"
	ErrCodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
)

// Workflow error codes
const (
	ErrCodeStepFailed     ErrorCode = "STEP_FAILED"
	ErrCodeWorkflowFailed ErrorCode = "WORKFLOW_FAILED"
	ErrCodeCancelled      ErrorCode = "CANCELLED"
	ErrCodeTimeout        ErrorCode = "TIMEOUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	StepID    string    `json:"step_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is matching on the code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStep tags the error with the originating step id.
func (e *Error) WithStep(stepID string) *Error {
	e.StepID = stepID
	return e
}

// WithAgent tags the error with the agent that produced it.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// AsRetryable marks the error as retryable.
func (e *Error) AsRetryable() *Error {
	e.Retryable = true
	return e
}
