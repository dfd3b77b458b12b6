package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors returned by the pipeline core.
var (
	// ErrNoOpinions indicates that consensus was requested with an
	// empty opinion list.
	ErrNoOpinions = errors.New("no opinions provided")

	// ErrBusClosed indicates that an event was published to a closed bus.
	ErrBusClosed = errors.New("event bus closed")
)

// ErrorKind classifies agent failures for retry decisions.
// Agents declare the kind explicitly; the scheduler never infers it
// from error text.
type ErrorKind string

// Failure classifications.
const (
	// KindValidation marks caller or input faults. Never retried.
	KindValidation ErrorKind = "validation"

	// KindTransient marks temporary faults that may succeed on retry.
	KindTransient ErrorKind = "transient"

	// KindTimeout marks executions that exceeded their deadline.
	KindTimeout ErrorKind = "timeout"

	// KindMissingDependency marks agents whose upstream dependency did
	// not succeed. Never retried.
	KindMissingDependency ErrorKind = "missing_dependency"

	// KindInternal marks unexpected internal faults.
	KindInternal ErrorKind = "internal"
)

// Retryable reports whether a failure of this kind may be retried.
// Unclassified kinds are treated as transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindValidation, KindMissingDependency:
		return false
	default:
		return true
	}
}

// AgentError is a classified failure returned by an agent execution.
// The explicit Kind replaces error-text matching for retry decisions.
type AgentError struct {
	// AgentID identifies the agent that failed.
	AgentID string

	// Kind classifies the failure.
	Kind ErrorKind

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for AgentError.
func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", e.AgentID, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentError creates a classified agent failure.
func NewAgentError(agentID string, kind ErrorKind, err error) *AgentError {
	return &AgentError{AgentID: agentID, Kind: kind, Err: err}
}

// KindOf extracts the classification from an error chain.
// Errors without an AgentError in the chain default to transient.
func KindOf(err error) ErrorKind {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// DuplicateAgentError indicates a registration attempt with an ID that
// is already present in the registry.
type DuplicateAgentError struct {
	// ID is the conflicting agent ID.
	ID string
}

// Error implements the error interface for DuplicateAgentError.
func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent %s is already registered", e.ID)
}

// UnknownAgentError indicates a reference to an agent ID that is not
// registered.
type UnknownAgentError struct {
	// ID is the unknown agent ID.
	ID string
}

// Error implements the error interface for UnknownAgentError.
func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("agent %s is not registered", e.ID)
}

// CycleError indicates that the dependency graph contains a cycle and no
// valid execution order exists for the stuck agents.
type CycleError struct {
	// Remaining lists the agent IDs that never became ready.
	Remaining []string
}

// Error implements the error interface for CycleError.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving agents: %s",
		strings.Join(e.Remaining, ", "))
}
