// Package workflow implements the orchestration engine: it derives a
// dependency graph of steps from required capabilities, assigns agents
// through the registry, executes steps inside a transaction boundary with
// recovery on failure, and aggregates step results. Workflow and step state
// is owned exclusively by the engine instance that created it; agents are
// referenced by id only.
package workflow

import (
	"time"

	"github.com/BaSui01/agenthub/capability"
)

// Status is the internal workflow state machine value.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Terminal reports whether the status is final. No step may transition
// after a workflow reaches a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Public maps the internal status to the simplified status reported to
// callers that need backward-compatible semantics. Internal tooling reads
// the workflow status itself.
func (s Status) Public() string {
	switch s {
	case StatusCompleted:
		return "success"
	case StatusFailed:
		return "failure"
	case StatusRolledBack:
		return "rolled_back"
	case StatusRunning:
		return "running"
	default:
		return "pending"
	}
}

// StepStatus is the per-step state machine value.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepScheduled StepStatus = "scheduled"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether the step status is final.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// Step is one unit of workflow execution. Each attempt assigns exactly one
// agent, which must hold the required capability at assignment time; a
// retry may pick a different agent. Step fields are guarded by the owning
// run's lock.
type Step struct {
	ID            string                `json:"id"`
	Requirement   capability.Capability `json:"capability_requirement"`
	DependsOn     []string              `json:"depends_on,omitempty"`
	AssignedAgent string                `json:"assigned_agent,omitempty"`
	Status        StepStatus            `json:"status"`
	Result        map[string]any        `json:"result,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	AttemptCount  int                   `json:"attempt_count"`
	StartedAt     time.Time             `json:"started_at,omitempty"`
	CompletedAt   time.Time             `json:"completed_at,omitempty"`
}

// Workflow is a named set of steps executed with dependency ordering.
// Mutated only by the engine; terminal states are final.
type Workflow struct {
	ID                   string                  `json:"id"`
	Name                 string                  `json:"name"`
	Steps                []*Step                 `json:"steps"`
	Status               Status                  `json:"status"`
	RequiredCapabilities []capability.Capability `json:"required_capabilities"`
	Reason               string                  `json:"reason,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	CompletedAt          time.Time               `json:"completed_at,omitempty"`
}

// StepView is the caller-facing snapshot of one step.
type StepView struct {
	ID            string     `json:"id"`
	Capability    string     `json:"capability"`
	AssignedAgent string     `json:"assigned_agent,omitempty"`
	Status        StepStatus `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
	StartedAt     time.Time  `json:"started_at,omitempty"`
	CompletedAt   time.Time  `json:"completed_at,omitempty"`
}

// StatusView is the caller-facing snapshot of a workflow. Both the internal
// workflow status and the simplified public status are reported. Results of
// already-completed steps remain queryable even after the workflow fails.
type StatusView struct {
	WorkflowID     string         `json:"workflow_id"`
	Name           string         `json:"name"`
	WorkflowStatus Status         `json:"workflow_status"`
	PublicStatus   string         `json:"public_status"`
	Reason         string         `json:"reason,omitempty"`
	Steps          []StepView     `json:"steps"`
	Results        map[string]any `json:"results,omitempty"`
}
