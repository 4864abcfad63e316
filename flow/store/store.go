// Package store provides persistence backends for review session checkpoints.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for a requested session ID.
var ErrNotFound = errors.New("session not found")

// Checkpoint is a durable snapshot of one session's progress.
//
// A checkpoint records everything needed to resume a session later:
// the accumulated state and the identifier of the next step the engine
// has not yet executed. Exactly one checkpoint per session is retained;
// each write replaces the previous one.
//
// The PendingStep invariant: if PendingStep is non-empty, that step has
// never executed for this lineage. A step's output is folded into State
// before the next checkpoint is written, so resuming from a checkpoint
// never re-runs completed work.
//
// Type parameter S is the session state type (must be JSON-serializable).
type Checkpoint[S any] struct {
	// SessionID is the caller-supplied identity of the checkpoint lineage.
	SessionID string `json:"session_id"`

	// State is the accumulated session state after every executed step.
	State S `json:"state"`

	// PendingStep is the next step to execute. Empty means the session
	// ran to completion (terminal).
	PendingStep string `json:"pending_step"`

	// Version orders checkpoints within a session. Monotonically
	// increasing; each successful write bumps it by one.
	Version int `json:"version"`

	// FailedStep is set when the session halted on a fatal step failure.
	// It always equals PendingStep in that case, so a retry re-attempts
	// the same step.
	FailedStep string `json:"failed_step,omitempty"`

	// FailureReason is the error detail recorded alongside FailedStep.
	FailureReason string `json:"failure_reason,omitempty"`

	// UpdatedAt is the wall-clock time of the last write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the checkpoint marks a completed session.
func (c Checkpoint[S]) Terminal() bool {
	return c.PendingStep == ""
}

// Store persists session checkpoints.
//
// Implementations must provide per-session atomicity for Put: two
// concurrent writes for the same session may race (last writer wins)
// but must never interleave into a torn checkpoint.
//
// Implementations can use:
//   - In-memory maps (testing, see memory.go)
//   - SQLite (single-node persistence, see sqlite.go)
//   - MySQL (shared persistence, see mysql.go)
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// Get retrieves the latest checkpoint for a session.
	// Returns ErrNotFound if the session has never been checkpointed.
	Get(ctx context.Context, sessionID string) (Checkpoint[S], error)

	// Put atomically replaces the session's checkpoint.
	// A failed Put must leave the previous checkpoint intact.
	Put(ctx context.Context, cp Checkpoint[S]) error

	// ListSessions enumerates every known session ID. Order is not
	// significant. Used for operator visibility, not control flow.
	ListSessions(ctx context.Context) ([]string, error)
}
