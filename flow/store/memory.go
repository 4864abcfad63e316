package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// Checkpoints live in a map guarded by a RWMutex. Designed for:
//   - Testing and development
//   - Single-process pipelines where durability isn't required
//
// Data is lost when the process terminates. For durable sessions use
// SQLiteStore or MySQLStore.
//
// MemStore deep-copies checkpoints on both Put and Get via a JSON
// round-trip, so callers can never mutate a stored snapshot through a
// shared reference. This mirrors the isolation a database backend gives
// for free.
//
// Type parameter S is the state type to persist.
type MemStore[S any] struct {
	mu       sync.RWMutex
	sessions map[string]Checkpoint[S]
}

// NewMemStore creates an empty in-memory store.
//
// Example:
//
//	st := store.NewMemStore[ReviewState]()
//	engine := flow.New(graph, reducer, st, emitter)
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		sessions: make(map[string]Checkpoint[S]),
	}
}

// Get retrieves the latest checkpoint for a session.
//
// Returns ErrNotFound if the session has never been checkpointed.
// The returned checkpoint is an independent copy.
func (m *MemStore[S]) Get(_ context.Context, sessionID string) (Checkpoint[S], error) {
	m.mu.RLock()
	cp, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}

	return copyCheckpoint(cp)
}

// Put atomically replaces the session's checkpoint.
//
// The checkpoint is deep-copied before storing so later mutations by the
// caller cannot corrupt the stored snapshot.
func (m *MemStore[S]) Put(_ context.Context, cp Checkpoint[S]) error {
	if cp.SessionID == "" {
		return fmt.Errorf("checkpoint has empty session ID")
	}

	stored, err := copyCheckpoint(cp)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[cp.SessionID] = stored
	m.mu.Unlock()

	return nil
}

// ListSessions enumerates every known session ID in unspecified order.
func (m *MemStore[S]) ListSessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// copyCheckpoint deep-copies a checkpoint using JSON serialization.
//
// Works for any state type with exported, JSON-serializable fields.
// Unexported fields, channels, and functions are not carried over.
func copyCheckpoint[S any](cp Checkpoint[S]) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	data, err := json.Marshal(cp)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	var copied Checkpoint[S]
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return copied, nil
}
