package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/helloagents/rlm/internal/sharedtasks"
	"github.com/helloagents/rlm/pkg/models"
)

var _ Watcher = (*sharedtasks.Coordinator)(nil)

func sampleTasks() []models.SharedTask {
	alice := "alice"
	return []models.SharedTask{
		{ID: "1", Subject: "Design schema", Description: "tables and indexes", Status: models.TaskStatusCompleted, Owner: &alice},
		{ID: "2", Subject: "Write migrations", Status: models.TaskStatusPending},
		{ID: "3", Subject: "Wire API", Status: models.TaskStatusPending, BlockedBy: []string{"2"}},
		{ID: "4", Subject: "Load test", Status: models.TaskStatusInProgress, Owner: &alice},
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBoard_TasksMsg(t *testing.T) {
	b := NewBoard("sprint", nil)

	_, cmd := b.Update(TasksMsg{Tasks: sampleTasks()})
	if cmd != nil {
		t.Error("a nil update channel should not schedule another wait")
	}
	if got := len(b.table.Rows()); got != 4 {
		t.Fatalf("rows = %d, want 4", got)
	}

	row := b.table.Rows()[2]
	if row[1] != "⊘ blocked" || row[2] != "-" || row[4] != "2" {
		t.Errorf("blocked row = %v", row)
	}

	view := b.View()
	for _, want := range []string{"rlm tasks · sprint", "4 total  2 pending  1 in progress  1 completed  1 blocked", "Design schema", "tables and indexes"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestBoard_AvailableFilter(t *testing.T) {
	b := NewBoard("sprint", nil)
	b.Update(TasksMsg{Tasks: sampleTasks()})

	b.Update(key("a"))
	if got := len(b.table.Rows()); got != 1 {
		t.Fatalf("available rows = %d, want 1", got)
	}
	if sel, ok := b.Selected(); !ok || sel.ID != "2" {
		t.Errorf("selected = %+v, %v", sel, ok)
	}
	if !strings.Contains(b.View(), "(available)") {
		t.Error("title should show the filter")
	}

	b.Update(key("a"))
	if got := len(b.table.Rows()); got != 4 {
		t.Errorf("rows after toggling back = %d", got)
	}
}

func TestBoard_FollowsChannel(t *testing.T) {
	ch := make(chan []models.SharedTask, 1)
	b := NewBoard("live", ch)

	ch <- sampleTasks()[:1]
	msg := b.Init()()
	if tm, ok := msg.(TasksMsg); !ok || len(tm.Tasks) != 1 {
		t.Fatalf("first message = %#v", msg)
	}
	_, next := b.Update(msg)
	if next == nil {
		t.Fatal("board should keep listening")
	}

	close(ch)
	msg = next()
	if _, ok := msg.(watchClosedMsg); !ok {
		t.Fatalf("closed channel message = %#v", msg)
	}
	b.Update(msg)
	if !strings.Contains(b.View(), "watch stopped") {
		t.Error("view should report the stopped watch")
	}
}

func TestBoard_QuitAndResize(t *testing.T) {
	b := NewBoard("sprint", nil)

	b.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	cols := b.table.Columns()
	if cols[3].Title != "Subject" || cols[3].Width != 120-8-14-14-14-10 {
		t.Errorf("subject column = %+v", cols[3])
	}

	_, cmd := b.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
	if b.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestBoard_EmptyList(t *testing.T) {
	b := NewBoard("empty", nil)
	b.Update(TasksMsg{})
	if !strings.Contains(b.View(), "no tasks") {
		t.Errorf("view = %q", b.View())
	}
	if _, ok := b.Selected(); ok {
		t.Error("nothing should be selected")
	}
}

func TestRun_DisabledCoordinator(t *testing.T) {
	c, err := sharedtasks.New(context.Background(), t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := Run(context.Background(), c); err == nil {
		t.Error("a disabled coordinator cannot be watched")
	}
}
