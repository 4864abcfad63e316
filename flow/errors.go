// Package flow provides the durable workflow execution engine that advances
// review sessions through a step graph with per-step checkpointing.
package flow

import "errors"

// ErrUnknownSession is returned when Advance is called for a session that has
// no checkpoint and no initial state was supplied. The caller either mistyped
// the session ID or forgot to pass the initial payload for a first run.
var ErrUnknownSession = errors.New("unknown session: no checkpoint and no initial state")

// ErrMaxStepsExceeded indicates that a single advance call executed more
// steps than the configured limit without pausing or terminating. This
// guards against a miswired successor function looping forever.
var ErrMaxStepsExceeded = errors.New("advance exceeded maximum steps limit")

// EngineError represents a configuration or wiring error from Engine operations.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// StepError reports a step handler failure.
//
// Fatal step errors halt the session in StatusFailed with the checkpoint
// left at the pre-step position; absorbed errors never surface as a
// StepError, they are folded into state instead.
type StepError struct {
	// Step identifies the failing step.
	Step string

	// Fatal records the step's failure classification.
	Fatal bool

	// Cause is the underlying handler error.
	Cause error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Cause != nil {
		return "step " + e.Step + ": " + e.Cause.Error()
	}
	return "step " + e.Step + " failed"
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StepError) Unwrap() error {
	return e.Cause
}

// PersistenceError reports a checkpoint store read or write failure.
//
// Persistence failures are fatal to the current advance call: once durable
// writes are unreliable the engine cannot guarantee that in-memory progress
// matches durable state, so the error always propagates to the caller.
type PersistenceError struct {
	// Op is the failing store operation ("get" or "put").
	Op string

	// SessionID identifies the affected session.
	SessionID string

	// Cause is the underlying store error.
	Cause error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return "checkpoint " + e.Op + " failed for session " + e.SessionID + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// ContractViolation reports a merge-policy table that doesn't fit the state
// type. This is a programming bug, not a runtime condition: it is returned
// at construction time by NewPolicies and never during an advance.
type ContractViolation struct {
	// Field is the offending field name.
	Field string

	// Reason describes the mismatch.
	Reason string
}

// Error implements the error interface.
func (e *ContractViolation) Error() string {
	return "merge policy contract violation on field " + e.Field + ": " + e.Reason
}
