// Package tui provides the live terminal board for shared task lists.
//
// The board is read-only. It follows a coordinator's Watch channel, so
// claims and completions made by other processes appear as they are
// written. Users can move the selection, toggle the available-only
// filter with 'a' and quit with 'q' or Ctrl+C.
//
// Usage:
//
//	updates, err := coord.Watch(ctx)
//	board := tui.NewBoard(coord.ListID(), updates)
//	_, err = tea.NewProgram(board, tea.WithAltScreen()).Run()
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/helloagents/rlm/pkg/models"
)

// TasksMsg carries a fresh snapshot of the task list.
type TasksMsg struct {
	Tasks []models.SharedTask
}

// watchClosedMsg is sent once the update channel is closed.
type watchClosedMsg struct{}

// chrome is the number of lines around the table: title, counts, blank,
// detail, blank, help.
const chrome = 7

// Board is the bubbletea model for one shared task list.
type Board struct {
	listID  string
	updates <-chan []models.SharedTask

	tasks         []models.SharedTask
	visible       []models.SharedTask
	table         table.Model
	onlyAvailable bool
	watchStopped  bool
	quitting      bool
	width         int
	height        int

	titleStyle  lipgloss.Style
	countsStyle lipgloss.Style
	detailStyle lipgloss.Style
	helpStyle   lipgloss.Style
	warnStyle   lipgloss.Style
}

// NewBoard creates a board for listID fed by updates. A nil channel
// leaves the board static until TasksMsg values are sent to it.
func NewBoard(listID string, updates <-chan []models.SharedTask) *Board {
	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("236")).
		Bold(true)
	t.SetStyles(styles)

	return &Board{
		listID:  listID,
		updates: updates,
		table:   t,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75")),
		countsStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		detailStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingLeft(1),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
	}
}

// columns sizes the table for a terminal width, giving the remainder to
// the subject column.
func columns(width int) []table.Column {
	const id, status, owner, blocked = 8, 14, 14, 14
	subject := max(width-id-status-owner-blocked-10, 16)
	return []table.Column{
		{Title: "ID", Width: id},
		{Title: "Status", Width: status},
		{Title: "Owner", Width: owner},
		{Title: "Subject", Width: subject},
		{Title: "Blocked by", Width: blocked},
	}
}

// Init starts listening for updates.
func (b *Board) Init() tea.Cmd {
	return waitForTasks(b.updates)
}

// waitForTasks turns the next snapshot on ch into a message.
func waitForTasks(ch <-chan []models.SharedTask) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		tasks, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return TasksMsg{Tasks: tasks}
	}
}

// Update implements tea.Model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			b.quitting = true
			return b, tea.Quit
		case "a":
			b.onlyAvailable = !b.onlyAvailable
			b.refresh()
			return b, nil
		}

	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		b.table.SetColumns(columns(msg.Width))
		b.table.SetWidth(msg.Width)
		b.table.SetHeight(max(msg.Height-chrome, 3))
		return b, nil

	case TasksMsg:
		b.tasks = msg.Tasks
		b.refresh()
		return b, waitForTasks(b.updates)

	case watchClosedMsg:
		b.watchStopped = true
		return b, nil
	}

	var cmd tea.Cmd
	b.table, cmd = b.table.Update(msg)
	return b, cmd
}

// refresh rebuilds the rows from the current snapshot and filter.
func (b *Board) refresh() {
	b.visible = b.visible[:0]
	rows := make([]table.Row, 0, len(b.tasks))
	for _, t := range b.tasks {
		if b.onlyAvailable && !t.Available() {
			continue
		}
		b.visible = append(b.visible, t)
		owner := t.OwnerName()
		if owner == "" {
			owner = "-"
		}
		rows = append(rows, table.Row{
			t.ID,
			statusLabel(t),
			owner,
			t.Subject,
			strings.Join(t.BlockedBy, ","),
		})
	}
	b.table.SetRows(rows)
	if b.table.Cursor() >= len(rows) {
		b.table.SetCursor(max(len(rows)-1, 0))
	}
}

func statusLabel(t models.SharedTask) string {
	switch {
	case t.Status == models.TaskStatusCompleted:
		return "✓ completed"
	case len(t.BlockedBy) > 0:
		return "⊘ blocked"
	case t.Status == models.TaskStatusInProgress:
		return "● in progress"
	default:
		return "○ pending"
	}
}

// Selected returns the highlighted task.
func (b *Board) Selected() (models.SharedTask, bool) {
	i := b.table.Cursor()
	if i < 0 || i >= len(b.visible) {
		return models.SharedTask{}, false
	}
	return b.visible[i], true
}

// View implements tea.Model.
func (b *Board) View() string {
	if b.quitting {
		return ""
	}

	var sb strings.Builder
	title := "rlm tasks · " + b.listID
	if b.onlyAvailable {
		title += " (available)"
	}
	sb.WriteString(b.titleStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(b.countsStyle.Render(b.counts()))
	sb.WriteString("\n\n")

	if len(b.visible) == 0 {
		sb.WriteString(b.countsStyle.Render("  no tasks"))
	} else {
		sb.WriteString(b.table.View())
	}
	sb.WriteString("\n")

	if t, ok := b.Selected(); ok && t.Description != "" {
		sb.WriteString(b.detailStyle.Render(t.Description))
	}
	sb.WriteString("\n\n")

	if b.watchStopped {
		sb.WriteString(b.warnStyle.Render("watch stopped; showing last snapshot"))
		sb.WriteString("  ")
	}
	sb.WriteString(b.helpStyle.Render("↑/↓ move • a available only • q quit"))
	return sb.String()
}

func (b *Board) counts() string {
	var pending, running, done, blocked int
	for _, t := range b.tasks {
		switch t.Status {
		case models.TaskStatusPending:
			pending++
		case models.TaskStatusInProgress:
			running++
		case models.TaskStatusCompleted:
			done++
		}
		if len(t.BlockedBy) > 0 {
			blocked++
		}
	}
	return fmt.Sprintf("%d total  %d pending  %d in progress  %d completed  %d blocked",
		len(b.tasks), pending, running, done, blocked)
}

// Watcher is the part of a shared task coordinator the board follows.
type Watcher interface {
	ListID() string
	Watch(ctx context.Context) (<-chan []models.SharedTask, error)
}

// Run shows the board for w until the user quits or ctx is done.
func Run(ctx context.Context, w Watcher) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	p := tea.NewProgram(NewBoard(w.ListID(), updates), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run task board: %w", err)
	}
	return nil
}
