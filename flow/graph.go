package flow

import "context"

// Handler executes one step's work against the current state and returns
// a partial-state delta to be merged via the reducer.
//
// Handlers receive a snapshot of the accumulated state and must not rely
// on being called exactly once: a crash between step execution and
// checkpoint write means the step re-runs on resume. Handlers with
// external side effects own their idempotency (e.g., a publish step
// deduplicates by content marker before posting).
type Handler[S any] func(ctx context.Context, state S) (S, error)

// Step is one unit of pipeline work registered in a Graph.
type Step[S any] struct {
	// ID uniquely identifies the step within the graph.
	ID string

	// Run is the step's handler.
	Run Handler[S]

	// Absorbing classifies the step's failure handling. An absorbing
	// step's failure is converted into a degraded delta and the session
	// proceeds; a fatal step's failure halts the session with the
	// checkpoint left at the pre-step position.
	Absorbing bool

	// Absorb converts a handler error into the degraded delta recorded
	// in state. Only consulted when Absorbing is true; nil means the
	// failure is absorbed as an empty delta.
	Absorb func(err error) S
}

// Graph is the static description of a pipeline: its steps, their order,
// failure classification, and the interrupt set.
//
// A Graph is immutable once built and is shared read-only across all
// sessions advanced by an Engine. Build one with NewGraphBuilder.
type Graph[S any] struct {
	steps     map[string]Step[S]
	start     string
	successor func(stepID string) (string, bool)
	gated     map[string]bool
}

// Start returns the entry step ID.
func (g *Graph[S]) Start() string {
	return g.start
}

// Step looks up a registered step by ID.
func (g *Graph[S]) Step(id string) (Step[S], bool) {
	s, ok := g.steps[id]
	return s, ok
}

// NextStep returns the successor of the given step.
// The second return is false when the step is the last one (terminal).
func (g *Graph[S]) NextStep(id string) (string, bool) {
	return g.successor(id)
}

// Gated reports whether the step is in the interrupt-before set: the
// engine will not execute it until an external decision is supplied.
func (g *Graph[S]) Gated(id string) bool {
	return g.gated[id]
}

// GraphBuilder assembles a Graph.
//
// Typical straight-line pipeline:
//
//	b := flow.NewGraphBuilder[ReviewState]()
//	b.AddStep(flow.Step[ReviewState]{ID: "fetch", Run: fetch})
//	b.AddStep(flow.Step[ReviewState]{ID: "scan", Run: scan, Absorbing: true})
//	b.AddStep(flow.Step[ReviewState]{ID: "publish", Run: publish})
//	b.Chain("fetch", "scan", "publish")
//	b.InterruptBefore("publish")
//	graph, err := b.Build()
//
// For non-linear topologies, SetSuccessor accepts a general successor
// function so future branching needs no engine changes.
type GraphBuilder[S any] struct {
	steps     map[string]Step[S]
	start     string
	successor func(stepID string) (string, bool)
	gated     map[string]bool
	chain     []string
	err       error
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder[S any]() *GraphBuilder[S] {
	return &GraphBuilder[S]{
		steps: make(map[string]Step[S]),
		gated: make(map[string]bool),
	}
}

// AddStep registers a step. Step IDs must be unique and non-empty, and
// every step needs a handler.
//
// Errors are collected and reported by Build, so calls can be chained
// without per-call checks.
func (b *GraphBuilder[S]) AddStep(step Step[S]) *GraphBuilder[S] {
	if b.err != nil {
		return b
	}
	if step.ID == "" {
		b.err = &EngineError{Message: "step ID cannot be empty", Code: "EMPTY_STEP_ID"}
		return b
	}
	if step.Run == nil {
		b.err = &EngineError{Message: "step handler cannot be nil: " + step.ID, Code: "NIL_HANDLER"}
		return b
	}
	if _, exists := b.steps[step.ID]; exists {
		b.err = &EngineError{Message: "duplicate step ID: " + step.ID, Code: "DUPLICATE_STEP"}
		return b
	}

	b.steps[step.ID] = step
	return b
}

// Chain declares a straight-line execution order. The first ID becomes
// the start step and the last one is terminal.
//
// Chain and SetSuccessor are mutually exclusive.
func (b *GraphBuilder[S]) Chain(ids ...string) *GraphBuilder[S] {
	if b.err != nil {
		return b
	}
	if len(ids) == 0 {
		b.err = &EngineError{Message: "chain requires at least one step", Code: "EMPTY_CHAIN"}
		return b
	}
	if b.successor != nil {
		b.err = &EngineError{Message: "chain conflicts with a custom successor function", Code: "SUCCESSOR_CONFLICT"}
		return b
	}

	b.chain = ids
	b.start = ids[0]
	return b
}

// SetSuccessor installs a general successor function and start step for
// non-linear topologies. The function returns the next step ID, or false
// when the given step is terminal.
//
// Chain and SetSuccessor are mutually exclusive.
func (b *GraphBuilder[S]) SetSuccessor(start string, fn func(stepID string) (string, bool)) *GraphBuilder[S] {
	if b.err != nil {
		return b
	}
	if b.chain != nil {
		b.err = &EngineError{Message: "custom successor function conflicts with chain", Code: "SUCCESSOR_CONFLICT"}
		return b
	}
	if fn == nil {
		b.err = &EngineError{Message: "successor function cannot be nil", Code: "NIL_SUCCESSOR"}
		return b
	}

	b.start = start
	b.successor = fn
	return b
}

// InterruptBefore adds steps to the interrupt set. The engine halts a
// session before executing any of these steps until a decision is
// supplied; membership is fixed once Build returns.
func (b *GraphBuilder[S]) InterruptBefore(ids ...string) *GraphBuilder[S] {
	if b.err != nil {
		return b
	}
	for _, id := range ids {
		b.gated[id] = true
	}
	return b
}

// Build validates the configuration and freezes the graph.
//
// Returns the first collected error if any AddStep/Chain/SetSuccessor
// call was invalid, or a validation error for dangling references.
func (b *GraphBuilder[S]) Build() (*Graph[S], error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.start == "" {
		return nil, &EngineError{Message: "no start step (call Chain or SetSuccessor)", Code: "NO_START_STEP"}
	}
	if _, ok := b.steps[b.start]; !ok {
		return nil, &EngineError{Message: "start step does not exist: " + b.start, Code: "STEP_NOT_FOUND"}
	}
	for _, id := range b.chain {
		if _, ok := b.steps[id]; !ok {
			return nil, &EngineError{Message: "chain references unknown step: " + id, Code: "STEP_NOT_FOUND"}
		}
	}
	for id := range b.gated {
		if _, ok := b.steps[id]; !ok {
			return nil, &EngineError{Message: "interrupt set references unknown step: " + id, Code: "STEP_NOT_FOUND"}
		}
	}

	successor := b.successor
	if successor == nil {
		// Compile the chain into a successor map.
		next := make(map[string]string, len(b.chain))
		for i := 0; i < len(b.chain)-1; i++ {
			next[b.chain[i]] = b.chain[i+1]
		}
		successor = func(stepID string) (string, bool) {
			n, ok := next[stepID]
			return n, ok
		}
	}

	// Copy maps so later builder reuse can't mutate the built graph.
	steps := make(map[string]Step[S], len(b.steps))
	for id, s := range b.steps {
		steps[id] = s
	}
	gated := make(map[string]bool, len(b.gated))
	for id := range b.gated {
		gated[id] = true
	}

	return &Graph[S]{
		steps:     steps,
		start:     b.start,
		successor: successor,
		gated:     gated,
	}, nil
}
