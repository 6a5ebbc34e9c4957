package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error taxonomy for session establishment and commands. Only
// establishment failures ever surface as a hard state transition;
// command and candidate failures are absorbed and logged.
var (
	// ErrAuth is fatal and never retried; the caller must re-authenticate.
	ErrAuth = errors.New("authentication required")
	// ErrNotActive rejects commands while no connected session exists.
	ErrNotActive = errors.New("session not active")
	// ErrStopped marks results that arrived after Stop and were discarded.
	ErrStopped = errors.New("session stopped")
)

// StepError wraps a failure from a named establishment step.
type StepError struct {
	Step      string
	Err       error
	Transient bool
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// NewCreateError marks a create-session failure, retryable by policy.
func NewCreateError(err error) *StepError {
	return &StepError{Step: "create-session", Err: err, Transient: true}
}

// NewNegotiationError marks an offer/answer exchange failure.
func NewNegotiationError(err error) *StepError {
	return &StepError{Step: "start-session", Err: err, Transient: true}
}

// TransportFailure signals that the negotiated transport dropped or failed.
type TransportFailure struct {
	Reason string
}

func (e *TransportFailure) Error() string { return "transport failure: " + e.Reason }

// CommandError is a non-fatal avatar command failure. The speech
// operation fails and the caller is notified; the call stays up.
type CommandError struct {
	Kind string
	Err  error
}

func (e *CommandError) Error() string { return fmt.Sprintf("command %s: %v", e.Kind, e.Err) }
func (e *CommandError) Unwrap() error { return e.Err }

// IsTransient classifies errors the retry controller may retry:
// network and timeout-class failures. Auth and validation failures
// propagate immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Transient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
