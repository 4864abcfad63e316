package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/reviewflow/flow/emit"
	"github.com/dshills/reviewflow/flow/store"
)

// Status describes where a session stands after an advance or inspection.
type Status int

const (
	// StatusNotStarted means no checkpoint exists for the session.
	StatusNotStarted Status = iota
	// StatusRunning means the session has a pending step that is neither
	// gated nor failed. It appears from Inspect and from an Advance that
	// stopped on the per-call step cap.
	StatusRunning
	// StatusPaused means the session is stopped before a gated step and
	// waits for a decision.
	StatusPaused
	// StatusCompleted means every step in the session's path has run.
	StatusCompleted
	// StatusFailed means the last advance stopped on a fatal step error.
	// The failed step re-runs on the next advance.
	StatusFailed
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result reports the settled outcome of one Advance call.
//
// A step failure is reported in Err with Status StatusFailed; the Advance
// call itself still returns a nil error because the session remains valid
// and resumable. The returned error channel is reserved for conditions that
// prevented the engine from advancing at all: unknown sessions, persistence
// failures, and configuration errors.
type Result[S any] struct {
	// Status is the settled status the session reached.
	Status Status

	// State is the merged session state as of the last persisted checkpoint.
	State S

	// PendingStep is the step that runs next, or "" when the session
	// completed.
	PendingStep string

	// FailedStep names the step whose fatal error stopped the session.
	// Empty unless Status is StatusFailed.
	FailedStep string

	// Err is the *StepError that stopped the session. Nil unless Status is
	// StatusFailed.
	Err error
}

// SessionInfo is a read-only snapshot of a session, derived from its
// checkpoint without executing anything.
type SessionInfo[S any] struct {
	SessionID     string
	Status        Status
	State         S
	PendingStep   string
	FailedStep    string
	FailureReason string
	Version       int
	UpdatedAt     time.Time
}

// Engine executes sessions through a step graph with durable per-step
// checkpointing.
//
// The engine is stateless between calls: every Advance loads the session's
// checkpoint from the store, executes steps, and persists a new checkpoint
// after each one. Because progress is externalized, a crashed or restarted
// process resumes any session by calling Advance again with the same
// session ID against the same store.
//
// Thread-safe for sessions with distinct IDs. Two concurrent advances of
// the same session ID race on the checkpoint and must be serialized by the
// caller.
type Engine[S any] struct {
	graph   *Graph[S]
	reducer Reducer[S]
	store   store.Store[S]
	emitter emit.Emitter
	cfg     engineConfig
}

// New creates an Engine from a built graph, a state reducer, and a
// checkpoint store.
//
// Parameters:
//   - graph: Step graph from GraphBuilder.Build. Must not be nil.
//   - reducer: Merges a step's delta into the prior state. Must not be nil.
//     Policies.Reducer produces one from a per-field merge policy table.
//   - st: Checkpoint persistence backend. Must not be nil.
//   - emitter: Event sink for observability. Nil installs a NullEmitter.
//   - opts: Optional configuration (WithMaxSteps, WithMetrics).
//
// Returns:
//   - Configured engine ready for Advance calls.
//   - *EngineError if a required collaborator is nil or an option fails.
//
// Example:
//
//	engine, err := flow.New(graph, policies.Reducer(), store, emitter,
//	    flow.WithMaxSteps[ReviewState](100))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := engine.StartOrResume(ctx, "pr-1234", initial)
func New[S any](graph *Graph[S], reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option[S]) (*Engine[S], error) {
	if graph == nil {
		return nil, &EngineError{Message: "graph must not be nil", Code: "NIL_GRAPH"}
	}
	if reducer == nil {
		return nil, &EngineError{Message: "reducer must not be nil", Code: "NIL_REDUCER"}
	}
	if st == nil {
		return nil, &EngineError{Message: "store must not be nil", Code: "NIL_STORE"}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	cfg := engineConfig{maxSteps: 1000}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Engine[S]{
		graph:   graph,
		reducer: reducer,
		store:   st,
		emitter: emitter,
		cfg:     cfg,
	}, nil
}

// AdvanceOption configures a single Advance call.
type AdvanceOption[S any] func(*advanceConfig[S])

type advanceConfig[S any] struct {
	initial     S
	hasInitial  bool
	decision    S
	hasDecision bool
}

// WithInitialState supplies the state a new session starts from. When the
// session already has a checkpoint, the initial state is ignored and the
// checkpointed state is used instead; steps that already ran never re-run.
func WithInitialState[S any](initial S) AdvanceOption[S] {
	return func(cfg *advanceConfig[S]) {
		cfg.initial = initial
		cfg.hasInitial = true
	}
}

// WithDecision supplies a decision delta for a session paused before a
// gated step. The delta is merged through the reducer and persisted before
// the gated step executes, so the step observes the decision and a crash
// between merge and execution cannot lose it.
//
// A decision is consumed by at most one gate per call. When the session is
// not paused before a gate, the decision is ignored.
func WithDecision[S any](decision S) AdvanceOption[S] {
	return func(cfg *advanceConfig[S]) {
		cfg.decision = decision
		cfg.hasDecision = true
	}
}

// Advance loads the session's checkpoint and executes steps until the
// session pauses at a gate, fails on a fatal step error, completes, or hits
// the per-call step cap.
//
// A checkpoint is persisted after every step, so partial progress survives
// a crash at any point and a later Advance resumes after the last completed
// step. Advancing a completed session is a no-op that returns the terminal
// result. Advancing a session paused at a gate without a decision returns
// the paused result without executing or writing anything.
//
// Parameters:
//   - ctx: Cancellation context, passed through to step handlers and the
//     store.
//   - sessionID: Stable identity of the session.
//   - opts: WithInitialState for new sessions, WithDecision to release a
//     gate.
//
// Returns:
//   - Result with the settled status and the last persisted state. A fatal
//     step failure is reported as Status StatusFailed with Err set, not as
//     a function error.
//   - ErrUnknownSession when no checkpoint exists and no initial state was
//     supplied; *PersistenceError when the store fails; ErrMaxStepsExceeded
//     when the step cap is reached.
func (e *Engine[S]) Advance(ctx context.Context, sessionID string, opts ...AdvanceOption[S]) (Result[S], error) {
	var cfg advanceConfig[S]
	for _, opt := range opts {
		opt(&cfg)
	}

	cp, err := e.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !cfg.hasInitial {
			return Result[S]{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
		}
		cp = store.Checkpoint[S]{
			SessionID:   sessionID,
			State:       cfg.initial,
			PendingStep: e.graph.Start(),
			Version:     0,
		}
		if err := e.persist(ctx, &cp); err != nil {
			return Result[S]{}, err
		}
		e.emitter.Emit(emit.Event{
			SessionID: sessionID,
			Version:   cp.Version,
			StepID:    cp.PendingStep,
			Msg:       emit.MsgSessionStarted,
		})
	case err != nil:
		return Result[S]{}, &PersistenceError{Op: "get", SessionID: sessionID, Cause: err}
	}

	if cp.Terminal() {
		return Result[S]{Status: StatusCompleted, State: cp.State}, nil
	}

	// A decision merged at a gate opens that gate for this call only. A
	// failed gated step re-runs without a fresh decision: the decision was
	// merged and persisted before the step first executed.
	gateOpen := false
	if cfg.hasDecision && e.graph.Gated(cp.PendingStep) && cp.FailedStep == "" {
		cp.State = e.reducer(cp.State, cfg.decision)
		cp.Version++
		if err := e.persist(ctx, &cp); err != nil {
			return Result[S]{}, err
		}
		e.emitter.Emit(emit.Event{
			SessionID: sessionID,
			Version:   cp.Version,
			StepID:    cp.PendingStep,
			Msg:       emit.MsgDecisionApplied,
		})
		gateOpen = true
	}

	for executed := 0; ; executed++ {
		if executed >= e.cfg.maxSteps {
			return Result[S]{
				Status:      StatusRunning,
				State:       cp.State,
				PendingStep: cp.PendingStep,
			}, fmt.Errorf("%w: %d steps in one advance", ErrMaxStepsExceeded, executed)
		}

		stepID := cp.PendingStep
		if e.graph.Gated(stepID) && !gateOpen && cp.FailedStep != stepID {
			if executed > 0 {
				// Reached the gate during this call; announce the pause.
				e.emitter.Emit(emit.Event{
					SessionID: sessionID,
					Version:   cp.Version,
					StepID:    stepID,
					Msg:       emit.MsgSessionPaused,
				})
				e.recordSessionOutcome("paused")
			}
			return e.pausedResult(cp), nil
		}
		gateOpen = false

		step, ok := e.graph.Step(stepID)
		if !ok {
			return Result[S]{}, &EngineError{
				Message: fmt.Sprintf("pending step %q not in graph", stepID),
				Code:    "STEP_NOT_FOUND",
			}
		}

		e.emitter.Emit(emit.Event{
			SessionID: sessionID,
			Version:   cp.Version,
			StepID:    stepID,
			Msg:       emit.MsgStepStart,
		})

		started := time.Now()
		delta, runErr := step.Run(ctx, cp.State)
		latency := time.Since(started)

		if runErr != nil {
			if step.Absorbing {
				if step.Absorb != nil {
					delta = step.Absorb(runErr)
				} else {
					var zero S
					delta = zero
				}
				e.recordStep(stepID, latency, "absorbed")
				if e.cfg.metrics != nil {
					e.cfg.metrics.IncrementAbsorbedFailures(stepID)
				}
				e.emitter.Emit(emit.Event{
					SessionID: sessionID,
					Version:   cp.Version,
					StepID:    stepID,
					Msg:       emit.MsgStepAbsorbed,
					Meta:      map[string]interface{}{"error": runErr.Error(), "duration": latency},
				})
			} else {
				cp.FailedStep = stepID
				cp.FailureReason = runErr.Error()
				cp.Version++
				if err := e.persist(ctx, &cp); err != nil {
					return Result[S]{}, err
				}
				e.recordStep(stepID, latency, "failed")
				e.recordSessionOutcome("failed")
				e.emitter.Emit(emit.Event{
					SessionID: sessionID,
					Version:   cp.Version,
					StepID:    stepID,
					Msg:       emit.MsgSessionFailed,
					Meta:      map[string]interface{}{"error": runErr.Error(), "duration": latency},
				})
				return Result[S]{
					Status:      StatusFailed,
					State:       cp.State,
					PendingStep: stepID,
					FailedStep:  stepID,
					Err:         &StepError{Step: stepID, Fatal: true, Cause: runErr},
				}, nil
			}
		} else {
			e.recordStep(stepID, latency, "success")
		}

		cp.State = e.reducer(cp.State, delta)
		cp.FailedStep = ""
		cp.FailureReason = ""
		next, hasNext := e.graph.NextStep(stepID)
		if !hasNext {
			next = ""
		}
		cp.PendingStep = next
		cp.Version++
		if err := e.persist(ctx, &cp); err != nil {
			return Result[S]{}, err
		}

		e.emitter.Emit(emit.Event{
			SessionID: sessionID,
			Version:   cp.Version,
			StepID:    stepID,
			Msg:       emit.MsgStepComplete,
			Meta:      map[string]interface{}{"duration": latency},
		})

		if cp.Terminal() {
			e.recordSessionOutcome("completed")
			e.emitter.Emit(emit.Event{
				SessionID: sessionID,
				Version:   cp.Version,
				StepID:    stepID,
				Msg:       emit.MsgSessionCompleted,
			})
			return Result[S]{Status: StatusCompleted, State: cp.State}, nil
		}
	}
}

// StartOrResume advances a session, creating it from the initial state when
// no checkpoint exists.
//
// Calling it again with the same session ID resumes from the persisted
// checkpoint; the initial state is then ignored and completed steps do not
// re-run. This makes it safe to wire straight into a retrying caller.
func (e *Engine[S]) StartOrResume(ctx context.Context, sessionID string, initial S) (Result[S], error) {
	return e.Advance(ctx, sessionID, WithInitialState(initial))
}

// SubmitDecision merges a decision delta into a session paused before a
// gated step and advances it through the gate.
//
// Returns ErrUnknownSession when the session has no checkpoint. When the
// session is not paused at a gate the decision is ignored and the session
// advances normally.
func (e *Engine[S]) SubmitDecision(ctx context.Context, sessionID string, decision S) (Result[S], error) {
	return e.Advance(ctx, sessionID, WithDecision(decision))
}

// Inspect returns a snapshot of the session without executing anything.
//
// A session with no checkpoint reports StatusNotStarted rather than an
// error, so callers can poll a session ID before it is created.
func (e *Engine[S]) Inspect(ctx context.Context, sessionID string) (SessionInfo[S], error) {
	cp, err := e.store.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return SessionInfo[S]{SessionID: sessionID, Status: StatusNotStarted}, nil
	}
	if err != nil {
		return SessionInfo[S]{}, &PersistenceError{Op: "get", SessionID: sessionID, Cause: err}
	}

	info := SessionInfo[S]{
		SessionID:     cp.SessionID,
		State:         cp.State,
		PendingStep:   cp.PendingStep,
		FailedStep:    cp.FailedStep,
		FailureReason: cp.FailureReason,
		Version:       cp.Version,
		UpdatedAt:     cp.UpdatedAt,
	}
	switch {
	case cp.Terminal():
		info.Status = StatusCompleted
	case cp.FailedStep != "":
		info.Status = StatusFailed
	case e.graph.Gated(cp.PendingStep):
		info.Status = StatusPaused
	default:
		info.Status = StatusRunning
	}
	return info, nil
}

// ListSessions returns the IDs of every session the store holds.
func (e *Engine[S]) ListSessions(ctx context.Context) ([]string, error) {
	ids, err := e.store.ListSessions(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Cause: err}
	}
	return ids, nil
}

func (e *Engine[S]) pausedResult(cp store.Checkpoint[S]) Result[S] {
	return Result[S]{
		Status:      StatusPaused,
		State:       cp.State,
		PendingStep: cp.PendingStep,
	}
}

func (e *Engine[S]) persist(ctx context.Context, cp *store.Checkpoint[S]) error {
	cp.UpdatedAt = time.Now().UTC()
	started := time.Now()
	err := e.store.Put(ctx, *cp)
	if e.cfg.metrics != nil {
		e.cfg.metrics.RecordCheckpointWrite(time.Since(started))
	}
	if err != nil {
		return &PersistenceError{Op: "put", SessionID: cp.SessionID, Cause: err}
	}
	return nil
}

func (e *Engine[S]) recordStep(stepID string, latency time.Duration, status string) {
	if e.cfg.metrics != nil {
		e.cfg.metrics.RecordStep(stepID, latency, status)
	}
}

func (e *Engine[S]) recordSessionOutcome(status string) {
	if e.cfg.metrics != nil {
		e.cfg.metrics.RecordSessionOutcome(status)
	}
}
