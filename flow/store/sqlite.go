package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps one row per session in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments that must survive restarts
//   - Sessions that stay paused for hours or days with no process alive
//
// Features:
//   - Single file database (e.g., "./reviews.db") or ":memory:"
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//   - Atomic per-session upsert (no torn checkpoints)
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./reviews.db" - file in current directory
//   - "/var/lib/reviewflow/sessions.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically creates the database file and schema, enables
// WAL mode, and sets a busy timeout so concurrent readers don't fail
// immediately on a locked database.
//
// Example:
//
//	st, err := store.NewSQLiteStore[ReviewState]("./reviews.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore[S]{
		db:   db,
		path: path,
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the session checkpoint schema if it doesn't exist.
func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	sessionsTable := `
		CREATE TABLE IF NOT EXISTS review_sessions (
			session_id TEXT NOT NULL PRIMARY KEY,
			state TEXT NOT NULL,
			pending_step TEXT NOT NULL,
			version INTEGER NOT NULL,
			failed_step TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, sessionsTable); err != nil {
		return fmt.Errorf("failed to create review_sessions table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_sessions_updated ON review_sessions(updated_at)"); err != nil {
		return fmt.Errorf("failed to create idx_sessions_updated: %w", err)
	}

	return nil
}

// Get retrieves the latest checkpoint for a session (implements Store).
//
// Returns ErrNotFound if no row exists for the session ID.
func (s *SQLiteStore[S]) Get(ctx context.Context, sessionID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return zero, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT session_id, state, pending_step, version, failed_step, failure_reason, updated_at
		FROM review_sessions
		WHERE session_id = ?
	`

	var (
		cp         Checkpoint[S]
		stateJSON  string
		updatedStr string
	)

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&cp.SessionID,
		&stateJSON,
		&cp.PendingStep,
		&cp.Version,
		&cp.FailedStep,
		&cp.FailureReason,
		&updatedStr,
	)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	cp.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedStr)
	if err != nil {
		return zero, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return cp, nil
}

// Put atomically replaces the session's checkpoint (implements Store).
//
// A single-row upsert keeps the write atomic with respect to the session:
// a concurrent Put for the same session ID is last-writer-wins, never a
// partial mix of two checkpoints.
func (s *SQLiteStore[S]) Put(ctx context.Context, cp Checkpoint[S]) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	if cp.SessionID == "" {
		return fmt.Errorf("checkpoint has empty session ID")
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO review_sessions (session_id, state, pending_step, version, failed_step, failure_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			pending_step = excluded.pending_step,
			version = excluded.version,
			failed_step = excluded.failed_step,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		cp.SessionID,
		string(stateJSON),
		cp.PendingStep,
		cp.Version,
		cp.FailedStep,
		cp.FailureReason,
		updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// ListSessions enumerates every known session ID (implements Store).
func (s *SQLiteStore[S]) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT session_id FROM review_sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return ids, nil
}

// Close closes the database connection.
//
// After Close, all operations return an error.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
//
// Useful for health checks and connection validation.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}
