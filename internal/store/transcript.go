package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"codeask/internal/llm"
)

// Session is one recorded chat session.
type Session struct {
	ID        string
	RepoRoot  string
	Model     string
	StartedAt time.Time
}

// StoredMessage is one persisted chat message.
type StoredMessage struct {
	TurnID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Transcripts records chat sessions, their messages, and API call
// logs.
type Transcripts struct {
	db *DB
}

// NewTranscripts creates a transcript recorder over an open database.
func NewTranscripts(db *DB) *Transcripts {
	return &Transcripts{db: db}
}

// BeginSession records the start of a chat session and returns its ID.
func (t *Transcripts) BeginSession(repoRoot, model string) (string, error) {
	id := uuid.NewString()
	_, err := t.db.Exec(
		`INSERT INTO sessions (id, repo_root, model, started_at) VALUES (?, ?, ?, ?)`,
		id, repoRoot, model, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record session: %w", err)
	}
	return id, nil
}

// RecordTurn persists one completed turn: the user message followed by
// the assistant reply, under a shared turn ID.
func (t *Transcripts) RecordTurn(sessionID, turnID, userContent, assistantContent string) error {
	now := time.Now().Unix()
	return t.db.WithTx(func(tx *sql.Tx) error {
		stmt := `INSERT INTO messages (session_id, turn_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
		if _, err := tx.Exec(stmt, sessionID, turnID, llm.RoleUser, userContent, now); err != nil {
			return fmt.Errorf("failed to record user message: %w", err)
		}
		if _, err := tx.Exec(stmt, sessionID, turnID, llm.RoleAssistant, assistantContent, now); err != nil {
			return fmt.Errorf("failed to record assistant message: %w", err)
		}
		return nil
	})
}

// Messages returns a session's messages in insertion order.
func (t *Transcripts) Messages(sessionID string) ([]StoredMessage, error) {
	rows, err := t.db.Query(
		`SELECT turn_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var created int64
		if err := rows.Scan(&m.TurnID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = time.Unix(created, 0)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Sessions returns all recorded sessions, newest first.
func (t *Transcripts) Sessions() ([]Session, error) {
	rows, err := t.db.Query(
		`SELECT id, repo_root, model, started_at FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started int64
		if err := rows.Scan(&s.ID, &s.RepoRoot, &s.Model, &started); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.Unix(started, 0)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecordCall persists one API call log entry.
func (t *Transcripts) RecordCall(sessionID string, log llm.CallLog) error {
	_, err := t.db.Exec(
		`INSERT INTO api_call_logs (session_id, operation, endpoint, status, elapsed_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, log.Operation, log.Endpoint, log.Status, log.ElapsedMs, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record api call: %w", err)
	}
	return nil
}

// CallCount returns how many API calls a session has recorded.
func (t *Transcripts) CallCount(sessionID string) (int, error) {
	var n int
	err := t.db.QueryRow(
		`SELECT COUNT(*) FROM api_call_logs WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count api calls: %w", err)
	}
	return n, nil
}
