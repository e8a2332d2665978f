package core

import (
	"errors"
	"fmt"
)

// SpecError reports a malformed or unresolvable interface description. It is
// the only error that aborts a run.
type SpecError struct {
	Path   string
	Method string
	Reason string
	Err    error
}

func (e *SpecError) Error() string {
	location := e.Path
	if e.Method != "" {
		location = Identity(e.Method, e.Path)
	}
	msg := "invalid interface description"
	if location != "" {
		msg += " at " + location
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SpecError) Unwrap() error {
	return e.Err
}

func NewSpecError(path, method, reason string) *SpecError {
	return &SpecError{Path: path, Method: method, Reason: reason}
}

// GenerationError wraps a defect hit while generating a single test case.
type GenerationError struct {
	Operation string
	Seed      uint64
	Cause     any
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating test case for %s (seed %d): %v", e.Operation, e.Seed, e.Cause)
}

// TransportError wraps a network level failure: refused connection,
// timeout, unreadable response.
type TransportError struct {
	Operation string
	Attempts  int
	TimedOut  bool
	// Category names the kind of failure, e.g. connection_refused.
	Category string
	Err      error
}

func (e *TransportError) Error() string {
	kind := "transport failure"
	if e.TimedOut {
		kind = "transport timeout"
	}
	return fmt.Sprintf("%s for %s after %d attempt(s): %v", kind, e.Operation, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsSpecError(err error) bool {
	var specErr *SpecError
	return errors.As(err, &specErr)
}

func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
