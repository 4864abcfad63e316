// Package emit provides observability event emission for session execution.
package emit

// Standard event messages emitted by the engine.
//
// Using constants keeps emitters, dashboards, and tests in agreement about
// event names without string drift.
const (
	// MsgSessionStarted marks the synthesis of a fresh session checkpoint.
	MsgSessionStarted = "session_started"

	// MsgStepStart marks the beginning of a step handler invocation.
	MsgStepStart = "step_start"

	// MsgStepComplete marks a successful step whose delta has been merged.
	MsgStepComplete = "step_complete"

	// MsgStepAbsorbed marks a failed step whose error was absorbed into
	// state as a degraded result.
	MsgStepAbsorbed = "step_absorbed"

	// MsgDecisionApplied marks an external decision folded into state at
	// an interrupt gate.
	MsgDecisionApplied = "decision_applied"

	// MsgSessionPaused marks a session halted at an interrupt gate.
	MsgSessionPaused = "session_paused"

	// MsgSessionCompleted marks a session that reached the terminal step.
	MsgSessionCompleted = "session_completed"

	// MsgSessionFailed marks a session halted by a fatal step failure.
	MsgSessionFailed = "session_failed"
)

// Event represents an observability event emitted during session execution.
//
// Events provide insight into session behavior:
//   - Step execution start/complete
//   - Absorbed step failures
//   - Interrupt pauses and decision submissions
//   - Session completion and failure
//
// Events are emitted to an Emitter which can log them, convert them to
// OpenTelemetry spans, or buffer them for inspection in tests.
type Event struct {
	// SessionID identifies the session that emitted this event.
	SessionID string

	// Version is the checkpoint version counter at emission time.
	// Zero for events emitted before the first checkpoint write.
	Version int

	// StepID identifies which pipeline step this event concerns.
	// Empty string for session-level events (started, completed, failed).
	StepID string

	// Msg is the event name. Use the Msg* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Step execution duration in milliseconds
	//   - "error": Error detail for failed or absorbed steps
	//   - "pending_step": The step a paused session is waiting on
	Meta map[string]interface{}
}
