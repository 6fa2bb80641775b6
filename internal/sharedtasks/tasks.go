package sharedtasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/helloagents/rlm/pkg/models"
)

// AddTask appends a pending, unowned task and returns its ID.
func (c *Coordinator) AddTask(ctx context.Context, subject, description string, blocks, blockedBy []string) (string, bool) {
	var id string
	ok := c.mutate(ctx, "add", func(doc *models.TaskDocument) bool {
		now := c.now()
		ts := now.Format(TimestampLayout)
		id = fmt.Sprintf("t%d_%s", len(doc.Tasks)+1, now.Format("150405"))
		doc.Tasks = append(doc.Tasks, models.SharedTask{
			ID:          id,
			Subject:     subject,
			Description: description,
			Status:      models.TaskStatusPending,
			Blocks:      append([]string{}, blocks...),
			BlockedBy:   append([]string{}, blockedBy...),
			CreatedAt:   ts,
			UpdatedAt:   ts,
		})
		return true
	})
	if !ok {
		return "", false
	}
	return id, true
}

// ClaimTask gives owner the task and marks it in progress. It fails when
// someone else owns the task, when it is still blocked, or when it is
// already completed. Reclaiming one's own task succeeds.
func (c *Coordinator) ClaimTask(ctx context.Context, id, owner string) bool {
	if owner == "" {
		return false
	}
	return c.mutate(ctx, "claim", func(doc *models.TaskDocument) bool {
		t := doc.Find(id)
		if t == nil {
			return false
		}
		if t.Owner != nil && *t.Owner != "" && *t.Owner != owner {
			return false
		}
		if len(t.BlockedBy) > 0 || t.Status == models.TaskStatusCompleted {
			return false
		}
		t.Owner = &owner
		t.Status = models.TaskStatusInProgress
		t.UpdatedAt = c.timestamp()
		return true
	})
}

// CompleteTask marks the task completed and unblocks its dependents in the
// same write. Only the current owner may complete a task.
func (c *Coordinator) CompleteTask(ctx context.Context, id, owner string) bool {
	return c.mutate(ctx, "complete", func(doc *models.TaskDocument) bool {
		t := doc.Find(id)
		if t == nil || t.Owner == nil || *t.Owner == "" || *t.Owner != owner {
			return false
		}
		t.Status = models.TaskStatusCompleted
		t.UpdatedAt = c.timestamp()
		c.resolveDependencies(doc, id)
		return true
	})
}

// UpdateTask sets status and/or owner without any ownership checks. An
// empty status or nil owner leaves that field unchanged. Setting status to
// completed unblocks dependents like CompleteTask does.
//
// This is the administrative path; workers should use ClaimTask and
// CompleteTask.
func (c *Coordinator) UpdateTask(ctx context.Context, id string, status models.TaskStatus, owner *string) bool {
	if status != "" && !status.Valid() {
		return false
	}
	return c.mutate(ctx, "update", func(doc *models.TaskDocument) bool {
		t := doc.Find(id)
		if t == nil {
			return false
		}
		if status != "" {
			t.Status = status
		}
		if owner != nil {
			o := *owner
			t.Owner = &o
		}
		t.UpdatedAt = c.timestamp()
		if status == models.TaskStatusCompleted {
			c.resolveDependencies(doc, id)
		}
		return true
	})
}

func (c *Coordinator) resolveDependencies(doc *models.TaskDocument, completedID string) {
	ts := c.timestamp()
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		if idx := slices.Index(t.BlockedBy, completedID); idx >= 0 {
			t.BlockedBy = slices.Delete(t.BlockedBy, idx, idx+1)
			t.UpdatedAt = ts
		}
	}
}

// Tasks returns every task in the list.
func (c *Coordinator) Tasks(ctx context.Context) []models.SharedTask {
	if !c.Enabled() {
		return nil
	}
	doc, _ := c.read(ctx)
	return doc.Tasks
}

// Refresh rereads the list to pick up changes from other processes.
func (c *Coordinator) Refresh(ctx context.Context) []models.SharedTask {
	return c.Tasks(ctx)
}

// AvailableTasks returns pending tasks that are unowned and unblocked.
func (c *Coordinator) AvailableTasks(ctx context.Context) []models.SharedTask {
	if !c.Enabled() {
		return nil
	}
	doc, _ := c.read(ctx)
	var out []models.SharedTask
	for _, t := range doc.Tasks {
		if t.Available() {
			out = append(out, t)
		}
	}
	return out
}

// Task returns a single task.
func (c *Coordinator) Task(ctx context.Context, id string) (models.SharedTask, bool) {
	if !c.Enabled() {
		return models.SharedTask{}, false
	}
	doc, _ := c.read(ctx)
	if t := doc.Find(id); t != nil {
		return *t, true
	}
	return models.SharedTask{}, false
}

// Status summarizes the list.
type Status struct {
	Mode        string `json:"mode"`
	Message     string `json:"message,omitempty"`
	ListID      string `json:"list_id,omitempty"`
	TasksFile   string `json:"tasks_file,omitempty"`
	Total       int    `json:"total"`
	Pending     int    `json:"pending"`
	InProgress  int    `json:"in_progress"`
	Completed   int    `json:"completed"`
	Blocked     int    `json:"blocked"`
	LastUpdated string `json:"last_updated,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Status counts tasks by state. Blocked counts tasks with open
// dependencies, regardless of status.
func (c *Coordinator) Status(ctx context.Context) Status {
	if !c.Enabled() {
		return Status{
			Mode:    "isolated",
			Message: "no shared task list set; running isolated (set " + EnvListID + " to collaborate)",
		}
	}

	doc, err := c.read(ctx)
	st := Status{
		Mode:        "collaborative",
		ListID:      c.listID,
		TasksFile:   c.path,
		Total:       len(doc.Tasks),
		LastUpdated: doc.LastUpdated,
	}
	if err != nil {
		st.Error = err.Error()
	}
	for _, t := range doc.Tasks {
		switch t.Status {
		case models.TaskStatusPending:
			st.Pending++
		case models.TaskStatusInProgress:
			st.InProgress++
		case models.TaskStatusCompleted:
			st.Completed++
		}
		if len(t.BlockedBy) > 0 {
			st.Blocked++
		}
	}
	return st
}
