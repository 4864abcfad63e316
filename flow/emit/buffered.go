package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are organized by session ID for retrieval and filtering. Useful
// for tests that assert on emitted events and for post-run analysis of a
// paused session's history.
//
// Warning: all events stay in memory. For sessions that pause for days,
// prefer LogEmitter or OTelEmitter in production and clear buffers after
// inspection.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	engine := flow.New(graph, reducer, store, emitter)
//
//	engine.Advance(ctx, "pr-42", flow.WithInitialState(initial))
//
//	paused := emitter.History("pr-42")
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // sessionID -> events
}

// HistoryFilter specifies criteria for filtering session history.
//
// All filter fields are optional. When multiple fields are set they are
// combined with AND logic.
type HistoryFilter struct {
	StepID string // Filter by step ID (empty = no filter)
	Msg    string // Filter by message (empty = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
//
// Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.SessionID] = append(b.events[event.SessionID], event)
}

// History retrieves all events for a session in emission order.
//
// Returns a copy; modifying the returned slice does not affect the buffer.
func (b *BufferedEmitter) History(sessionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[sessionID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryWithFilter retrieves events for a session matching the filter.
func (b *BufferedEmitter) HistoryWithFilter(sessionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events[sessionID] {
		if filter.StepID != "" && event.StepID != filter.StepID {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		out = append(out, event)
	}
	return out
}

// Clear removes all buffered events for a session.
func (b *BufferedEmitter) Clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.events, sessionID)
}

// ClearAll removes all buffered events for every session.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = make(map[string][]Event)
}
