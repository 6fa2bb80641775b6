package models

import "encoding/json"

// TaskStatus represents the state of a shared task.
type TaskStatus string

const (
	// TaskStatusPending indicates nobody has claimed the task.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates an owner is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the owner finished the task.
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// SharedTask is a unit of work in a task list shared between processes.
// Timestamps are kept as the strings that were written so a document
// produced elsewhere survives a read/write cycle unchanged.
type SharedTask struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	// Owner is nil while nobody has claimed the task.
	Owner     *string  `json:"owner"`
	Blocks    []string `json:"blocks"`
	BlockedBy []string `json:"blocked_by"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// OwnerName returns the owner, or "" when unowned.
func (t SharedTask) OwnerName() string {
	if t.Owner == nil {
		return ""
	}
	return *t.Owner
}

// Available reports whether the task can be claimed right now.
func (t SharedTask) Available() bool {
	return t.Status == TaskStatusPending && t.OwnerName() == "" && len(t.BlockedBy) == 0
}

// MarshalJSON writes empty dependency lists as [] rather than null.
func (t SharedTask) MarshalJSON() ([]byte, error) {
	type plain SharedTask
	p := plain(t)
	p.Blocks = nonNil(p.Blocks)
	p.BlockedBy = nonNil(p.BlockedBy)
	return json.Marshal(p)
}

// TaskDocument is the on-disk form of one shared task list.
type TaskDocument struct {
	ListID      string       `json:"list_id"`
	CreatedAt   string       `json:"created_at"`
	LastUpdated string       `json:"last_updated"`
	Tasks       []SharedTask `json:"tasks"`
}

// MarshalJSON writes an empty task list as [].
func (d TaskDocument) MarshalJSON() ([]byte, error) {
	type plain TaskDocument
	p := plain(d)
	if p.Tasks == nil {
		p.Tasks = []SharedTask{}
	}
	return json.Marshal(p)
}

// Find returns a pointer to the task with the given ID, or nil.
func (d *TaskDocument) Find(id string) *SharedTask {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}
