package state

import "io"

// Recorder is the write side used while agents run.
type Recorder interface {
	LogEvent(sessionID, eventType string, data map[string]any) error
	RecordAgent(run AgentRun) error
}

// SessionStore handles the session registry.
type SessionStore interface {
	CreateSession(id string) (*Session, error)
	GetSession(id string) (*Session, error)
	Info(id string) (*SessionInfo, error)
	Touch(id string) error
	DeleteSession(id string) error
	ListSessions() ([]Session, error)
}

// HistoryStore reads back what a session recorded.
type HistoryStore interface {
	Events(sessionID, eventType string, limit int) ([]Event, error)
	RecentEventsSummary(sessionID string, count int) (string, error)
	AgentHistory(sessionID string, limit int) ([]AgentRun, error)
	SaveState(sessionID string, state map[string]any) error
	LoadState(sessionID string) (map[string]any, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StateStore is the full persistence surface.
type StateStore interface {
	io.Closer
	Migrator
	Recorder
	SessionStore
	HistoryStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore   = (*DB)(nil)
	_ Recorder     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ HistoryStore = (*DB)(nil)
)
