package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvSessionID names the variable that pins the current session.
const EnvSessionID = "HELLOAGENTS_SESSION_ID"

// MaxAgentHistory is the number of agent runs kept per session.
const MaxAgentHistory = 50

// Well-known event types.
const (
	EventSpawnAgent = "spawn_agent"
	EventFold       = "fold"
	EventToolCall   = "tool_call"
)

// Session is one rlm session.
type Session struct {
	ID         string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// SessionInfo is a session with its activity counters.
type SessionInfo struct {
	Session
	DBPath      string `json:"db_path"`
	TotalEvents int    `json:"total_events"`
	AgentCount  int    `json:"agent_count"`
}

// Event is one entry of the session event log.
type Event struct {
	ID        int64          `json:"-"`
	SessionID string         `json:"-"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// AgentRun records one sub-agent execution.
type AgentRun struct {
	SessionID string    `json:"-"`
	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role"`
	Task      string    `json:"task"`
	Status    string    `json:"status"`
	Depth     int       `json:"depth"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSessionID returns session_<YYYYMMDD_HHMMSS>_<8 hex chars>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

// ResolveSessionID returns explicit when set, then the environment
// override, then a fresh ID.
func ResolveSessionID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvSessionID); env != "" {
		return env
	}
	return NewSessionID(time.Now())
}

// CreateSession registers id if it is new and returns the stored session.
func (db *DB) CreateSession(id string) (*Session, error) {
	now := formatTime(db.now())
	_, err := db.Exec(`
		INSERT INTO sessions (id, created_at, last_active) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, now, now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return db.GetSession(id)
}

// GetSession retrieves a session by ID. It returns nil, nil when absent.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT id, created_at, last_active FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var s Session
	var created, active string
	if err := row.Scan(&s.ID, &created, &active); err != nil {
		return nil, err
	}
	s.CreatedAt, _ = parseTime(created)
	s.LastActive, _ = parseTime(active)
	return &s, nil
}

// Touch marks a session active now.
func (db *DB) Touch(id string) error {
	if _, err := db.Exec(`UPDATE sessions SET last_active = ? WHERE id = ?`, formatTime(db.now()), id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and everything recorded under it.
func (db *DB) DeleteSession(id string) error {
	if _, err := db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessions lists all sessions, most recently active first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(`SELECT id, created_at, last_active FROM sessions ORDER BY last_active DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Info returns a session with its counters, or nil, nil when absent.
func (db *DB) Info(id string) (*SessionInfo, error) {
	s, err := db.GetSession(id)
	if err != nil || s == nil {
		return nil, err
	}
	info := &SessionInfo{Session: *s, DBPath: db.path}
	if err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ?`, id).Scan(&info.TotalEvents); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM agent_runs WHERE session_id = ?`, id).Scan(&info.AgentCount); err != nil {
		return nil, fmt.Errorf("count agent runs: %w", err)
	}
	return info, nil
}

// LogEvent appends an event and marks the session active.
func (db *DB) LogEvent(sessionID, eventType string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	now := formatTime(db.now())

	return db.Transaction(func(tx *sql.Tx) error {
		if err := ensureSession(tx, sessionID, now); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO events (session_id, type, data, created_at) VALUES (?, ?, ?, ?)
		`, sessionID, eventType, string(raw), now); err != nil {
			return fmt.Errorf("log event: %w", err)
		}
		return nil
	})
}

// ensureSession creates the session row if needed and bumps last_active.
func ensureSession(tx *sql.Tx, id, now string) error {
	_, err := tx.Exec(`
		INSERT INTO sessions (id, created_at, last_active) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active
	`, id, now, now)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// Events returns events of a session in chronological order, optionally
// filtered by type and limited to the most recent limit entries.
func (db *DB) Events(sessionID, eventType string, limit int) ([]Event, error) {
	query := `SELECT id, session_id, type, data, created_at FROM events WHERE session_id = ?`
	args := []any{sessionID}
	if eventType != "" {
		query += ` AND type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var data, created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &data, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", e.ID, err)
		}
		e.Timestamp, _ = parseTime(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecentEventsSummary renders the last count events as a bullet list.
func (db *DB) RecentEventsSummary(sessionID string, count int) (string, error) {
	events, err := db.Events(sessionID, "", count)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "no recent events", nil
	}

	lines := make([]string, len(events))
	for i, e := range events {
		ts := e.Timestamp.Local().Format("2006-01-02T15:04:05")
		switch e.Type {
		case EventSpawnAgent:
			lines[i] = fmt.Sprintf("- [%s] spawn: %s - %s", ts, field(e.Data, "role"), clip(field(e.Data, "task"), 50))
		case EventFold:
			lines[i] = fmt.Sprintf("- [%s] fold: %s", ts, field(e.Data, "strategy"))
		case EventToolCall:
			lines[i] = fmt.Sprintf("- [%s] tool: %s", ts, field(e.Data, "tool"))
		default:
			lines[i] = fmt.Sprintf("- [%s] %s", ts, e.Type)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func field(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		return fmt.Sprint(v)
	}
	return "?"
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// RecordAgent stores an agent run, logs a spawn_agent event for it and
// trims the session's history to MaxAgentHistory runs.
func (db *DB) RecordAgent(run AgentRun) error {
	if run.Timestamp.IsZero() {
		run.Timestamp = db.now()
	}
	now := formatTime(run.Timestamp)
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode agent run: %w", err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		if err := ensureSession(tx, run.SessionID, now); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO agent_runs (session_id, agent_id, role, task, status, depth, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.SessionID, run.AgentID, run.Role, run.Task, run.Status, run.Depth, now); err != nil {
			return fmt.Errorf("record agent: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO events (session_id, type, data, created_at) VALUES (?, ?, ?, ?)
		`, run.SessionID, EventSpawnAgent, string(raw), now); err != nil {
			return fmt.Errorf("log agent event: %w", err)
		}
		if _, err := tx.Exec(`
			DELETE FROM agent_runs WHERE session_id = ? AND id NOT IN (
				SELECT id FROM agent_runs WHERE session_id = ? ORDER BY id DESC LIMIT ?
			)
		`, run.SessionID, run.SessionID, MaxAgentHistory); err != nil {
			return fmt.Errorf("trim agent history: %w", err)
		}
		return nil
	})
}

// AgentHistory returns up to limit of the most recent agent runs in
// chronological order. A non-positive limit returns all kept runs.
func (db *DB) AgentHistory(sessionID string, limit int) ([]AgentRun, error) {
	if limit <= 0 {
		limit = MaxAgentHistory
	}
	rows, err := db.Query(`
		SELECT session_id, agent_id, role, task, status, depth, created_at FROM (
			SELECT * FROM agent_runs WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query agent history: %w", err)
	}
	defer rows.Close()

	var out []AgentRun
	for rows.Next() {
		var r AgentRun
		var created string
		if err := rows.Scan(&r.SessionID, &r.AgentID, &r.Role, &r.Task, &r.Status, &r.Depth, &created); err != nil {
			return nil, fmt.Errorf("scan agent run: %w", err)
		}
		r.Timestamp, _ = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveState stores the session's state blob, stamping last_updated.
func (db *DB) SaveState(sessionID string, state map[string]any) error {
	if state == nil {
		state = map[string]any{}
	}
	ts := db.now()
	state["last_updated"] = ts.Format(time.RFC3339Nano)
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	now := formatTime(ts)

	return db.Transaction(func(tx *sql.Tx) error {
		if err := ensureSession(tx, sessionID, now); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO session_state (session_id, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, sessionID, string(raw), now); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		return nil
	})
}

// LoadState returns the session's state blob, or nil when none was saved.
func (db *DB) LoadState(sessionID string) (map[string]any, error) {
	var raw string
	err := db.QueryRow(`SELECT data FROM session_state WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
