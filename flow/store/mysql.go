package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It keeps one row per session in a relational database. Designed for:
//   - Production deployments requiring shared persistence
//   - Sessions that must survive process restarts and host failures
//   - Audit trails and compliance requirements
//
// Schema:
//   - review_sessions: latest checkpoint per session
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example DSNs:
//
//	user:password@tcp(localhost:3306)/reviews?parseTime=true
//	user:password@tcp(127.0.0.1:3306)/reviews?parseTime=true
//
// The DSN must include parseTime=true so TIMESTAMP columns scan into
// time.Time values.
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    dsn := os.Getenv("MYSQL_DSN")
//	    if dsn == "" {
//	        log.Fatal("MYSQL_DSN environment variable not set")
//	    }
//	    st, err := NewMySQLStore[ReviewState](dsn)
//
// The store automatically creates required tables, configures connection
// pooling, and verifies connectivity before returning.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the session checkpoint schema if it doesn't exist.
func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	sessionsTable := `
		CREATE TABLE IF NOT EXISTS review_sessions (
			session_id VARCHAR(512) NOT NULL PRIMARY KEY,
			state JSON NOT NULL,
			pending_step VARCHAR(255) NOT NULL,
			version INT NOT NULL,
			failed_step VARCHAR(255) NOT NULL DEFAULT '',
			failure_reason TEXT,
			updated_at TIMESTAMP(6) NOT NULL,
			INDEX idx_sessions_updated (updated_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, sessionsTable); err != nil {
		return fmt.Errorf("failed to create review_sessions table: %w", err)
	}

	return nil
}

// Get retrieves the latest checkpoint for a session (implements Store).
//
// Returns ErrNotFound if no row exists for the session ID.
func (m *MySQLStore[S]) Get(ctx context.Context, sessionID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return zero, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT session_id, state, pending_step, version, failed_step, COALESCE(failure_reason, ''), updated_at
		FROM review_sessions
		WHERE session_id = ?
	`

	var (
		cp        Checkpoint[S]
		stateJSON []byte
	)

	err := m.db.QueryRowContext(ctx, query, sessionID).Scan(
		&cp.SessionID,
		&stateJSON,
		&cp.PendingStep,
		&cp.Version,
		&cp.FailedStep,
		&cp.FailureReason,
		&cp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return cp, nil
}

// Put atomically replaces the session's checkpoint (implements Store).
//
// Uses a single-row INSERT ... ON DUPLICATE KEY UPDATE, which MySQL
// executes atomically: concurrent writers for the same session are
// last-writer-wins, never a torn row.
func (m *MySQLStore[S]) Put(ctx context.Context, cp Checkpoint[S]) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

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
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			pending_step = VALUES(pending_step),
			version = VALUES(version),
			failed_step = VALUES(failed_step),
			failure_reason = VALUES(failure_reason),
			updated_at = VALUES(updated_at)
	`

	_, err = m.db.ExecContext(ctx, query,
		cp.SessionID,
		stateJSON,
		cp.PendingStep,
		cp.Version,
		cp.FailedStep,
		cp.FailureReason,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// ListSessions enumerates every known session ID (implements Store).
func (m *MySQLStore[S]) ListSessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, "SELECT session_id FROM review_sessions")
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
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	return m.db.PingContext(ctx)
}
