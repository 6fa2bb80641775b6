package sharedtasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/helloagents/rlm/internal/filelock"
	"github.com/helloagents/rlm/pkg/models"
)

func newTestCoordinator(t *testing.T, root, list string, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), root, list, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func ids(tasks []models.SharedTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestDemoScenario(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, t.TempDir(), "demo")

	t1, ok := c.AddTask(ctx, "T1", "", nil, nil)
	if !ok {
		t.Fatal("add T1 failed")
	}
	t2, ok := c.AddTask(ctx, "T2", "", nil, []string{t1})
	if !ok {
		t.Fatal("add T2 failed")
	}

	if got := ids(c.AvailableTasks(ctx)); !reflect.DeepEqual(got, []string{t1}) {
		t.Fatalf("available = %v, want [%s]", got, t1)
	}

	if !c.ClaimTask(ctx, t1, "w1") {
		t.Fatal("w1 claim failed")
	}
	if c.ClaimTask(ctx, t1, "w2") {
		t.Error("w2 claim should fail")
	}
	task, _ := c.Task(ctx, t1)
	if task.OwnerName() != "w1" || task.Status != models.TaskStatusInProgress {
		t.Errorf("after contested claim owner=%q status=%q", task.OwnerName(), task.Status)
	}

	if c.ClaimTask(ctx, t2, "w2") {
		t.Error("blocked task should not be claimable")
	}
	if c.CompleteTask(ctx, t1, "w2") {
		t.Error("non-owner should not complete")
	}
	if !c.CompleteTask(ctx, t1, "w1") {
		t.Fatal("owner complete failed")
	}

	if got := ids(c.AvailableTasks(ctx)); !reflect.DeepEqual(got, []string{t2}) {
		t.Fatalf("available after complete = %v, want [%s]", got, t2)
	}
	task, _ = c.Task(ctx, t2)
	if len(task.BlockedBy) != 0 {
		t.Errorf("T2 blocked_by = %v, want empty", task.BlockedBy)
	}
}

func TestTaskIDFormat(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 6, 1, 13, 14, 15, 0, time.Local) }
	c := newTestCoordinator(t, t.TempDir(), "ids", WithClock(clock))

	a, _ := c.AddTask(context.Background(), "a", "", nil, nil)
	b, _ := c.AddTask(context.Background(), "b", "", nil, nil)
	if a != "t1_131415" || b != "t2_131415" {
		t.Errorf("ids = %q, %q", a, b)
	}
}

func TestDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	c := newTestCoordinator(t, root, "")

	if c.Enabled() {
		t.Fatal("empty list id should disable")
	}
	if id, ok := c.AddTask(ctx, "x", "", nil, nil); ok || id != "" {
		t.Error("AddTask should be a no-op")
	}
	if c.ClaimTask(ctx, "t1", "w") || c.CompleteTask(ctx, "t1", "w") || c.UpdateTask(ctx, "t1", models.TaskStatusCompleted, nil) {
		t.Error("mutations should return false")
	}
	if c.Tasks(ctx) != nil || c.AvailableTasks(ctx) != nil {
		t.Error("reads should return nil")
	}
	if _, ok := c.Task(ctx, "t1"); ok {
		t.Error("Task should report not found")
	}
	if st := c.Status(ctx); st.Mode != "isolated" {
		t.Errorf("mode = %q", st.Mode)
	}
	if _, err := c.Watch(ctx); err != ErrDisabled {
		t.Errorf("Watch err = %v", err)
	}
	if _, err := os.Stat(TasksDir(root)); !os.IsNotExist(err) {
		t.Error("disabled coordinator should not touch the filesystem")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvListID, "env-list")
	c, err := FromEnv(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.ListID() != "env-list" {
		t.Errorf("ListID = %q", c.ListID())
	}
	if _, err := os.Stat(c.Path()); err != nil {
		t.Errorf("document not initialized: %v", err)
	}
}

func TestUpdateTask_Unguarded(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, t.TempDir(), "admin")

	t1, _ := c.AddTask(ctx, "T1", "", nil, nil)
	t2, _ := c.AddTask(ctx, "T2", "", nil, []string{t1})
	c.ClaimTask(ctx, t1, "w1")

	other := "admin"
	if !c.UpdateTask(ctx, t1, "", &other) {
		t.Fatal("owner override failed")
	}
	if task, _ := c.Task(ctx, t1); task.OwnerName() != "admin" || task.Status != models.TaskStatusInProgress {
		t.Errorf("after owner override: %+v", task)
	}

	if !c.UpdateTask(ctx, t1, models.TaskStatusCompleted, nil) {
		t.Fatal("status override failed")
	}
	if task, _ := c.Task(ctx, t2); len(task.BlockedBy) != 0 {
		t.Error("completing via update should unblock dependents")
	}

	if c.UpdateTask(ctx, t1, models.TaskStatus("bogus"), nil) {
		t.Error("invalid status should be rejected")
	}
	if c.UpdateTask(ctx, "missing", models.TaskStatusPending, nil) {
		t.Error("missing task should fail")
	}
}

func TestUpdateTask_ReleaseMakesAvailable(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, t.TempDir(), "release")

	id, _ := c.AddTask(ctx, "T", "", nil, nil)
	c.ClaimTask(ctx, id, "w1")

	nobody := ""
	if !c.UpdateTask(ctx, id, models.TaskStatusPending, &nobody) {
		t.Fatal("release failed")
	}
	if got := ids(c.AvailableTasks(ctx)); !reflect.DeepEqual(got, []string{id}) {
		t.Errorf("available = %v, want [%s]", got, id)
	}
	if !c.ClaimTask(ctx, id, "w2") {
		t.Error("released task should be claimable by another worker")
	}
}

func TestClaimTask_Rules(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, t.TempDir(), "claims")
	id, _ := c.AddTask(ctx, "T", "", nil, nil)

	if c.ClaimTask(ctx, id, "") {
		t.Error("empty owner should not claim")
	}
	if !c.ClaimTask(ctx, id, "w1") || !c.ClaimTask(ctx, id, "w1") {
		t.Error("owner should be able to reclaim")
	}
	c.CompleteTask(ctx, id, "w1")
	if c.ClaimTask(ctx, id, "w1") {
		t.Error("completed task should not be claimable")
	}
	if c.ClaimTask(ctx, "nope", "w1") {
		t.Error("missing task should not be claimable")
	}
}

func TestDocumentRoundTripIsLossless(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, t.TempDir(), "rt")

	owner := "someone"
	doc := models.TaskDocument{
		ListID:    "rt",
		CreatedAt: "2024-12-31T23:59:59.999999",
		Tasks: []models.SharedTask{
			{
				ID: "t1_235959", Subject: "s <&> ü", Description: "d",
				Status: models.TaskStatusInProgress, Owner: &owner,
				Blocks: []string{"t2_000000"}, BlockedBy: []string{},
				CreatedAt: "2024-12-31T23:59:59.000001", UpdatedAt: "2024-12-31T23:59:59.000002",
			},
			{
				ID: "t2_000000", Subject: "", Status: models.TaskStatusPending,
				Blocks: []string{}, BlockedBy: []string{"t1_235959"},
				CreatedAt: "x", UpdatedAt: "y",
			},
		},
	}

	release, err := c.lock.Lock(ctx, true)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := c.writeFile(&doc); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	release()

	back, err := c.read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(back, doc) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, doc)
	}

	raw, _ := os.ReadFile(c.Path())
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}
	tasks := generic["tasks"].([]any)
	first := tasks[0].(map[string]any)
	if bb, ok := first["blocked_by"].([]any); !ok || len(bb) != 0 {
		t.Errorf("empty blocked_by should be [] on disk, got %#v", first["blocked_by"])
	}
	second := tasks[1].(map[string]any)
	if second["owner"] != nil {
		t.Errorf("unowned task should store null owner, got %#v", second["owner"])
	}
}

func TestStatus_Counts(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, t.TempDir(), "counts")
	a, _ := c.AddTask(ctx, "a", "", nil, nil)
	c.AddTask(ctx, "b", "", nil, []string{a})
	c.AddTask(ctx, "c", "", nil, nil)
	c.ClaimTask(ctx, a, "w")

	st := c.Status(ctx)
	want := Status{Mode: "collaborative", ListID: "counts", TasksFile: c.Path(),
		Total: 3, Pending: 2, InProgress: 1, Blocked: 1, LastUpdated: st.LastUpdated}
	if st != want {
		t.Errorf("Status = %+v, want %+v", st, want)
	}
	if st.LastUpdated == "" {
		t.Error("last_updated should be set")
	}
}

type toggleLocker struct {
	mu   sync.Mutex
	fail bool
	real filelock.Locker
}

func (l *toggleLocker) Lock(ctx context.Context, exclusive bool) (filelock.Release, error) {
	l.mu.Lock()
	fail := l.fail
	l.mu.Unlock()
	if fail {
		return nil, filelock.ErrLockTimeout
	}
	return l.real.Lock(ctx, exclusive)
}

func TestLockFailureDegrades(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	lk := &toggleLocker{real: filelock.New(filepath.Join(TasksDir(root), "locked.json"))}
	c := newTestCoordinator(t, root, "locked", WithLocker(lk))

	id, ok := c.AddTask(ctx, "T", "", nil, nil)
	if !ok {
		t.Fatal("add failed")
	}

	lk.mu.Lock()
	lk.fail = true
	lk.mu.Unlock()

	if tasks := c.Tasks(ctx); len(tasks) != 0 {
		t.Errorf("reads should degrade to empty, got %d tasks", len(tasks))
	}
	if st := c.Status(ctx); st.Error == "" {
		t.Error("status should carry the error flag")
	}
	if c.ClaimTask(ctx, id, "w") {
		t.Error("claim should fail without the lock")
	}
}

func TestConcurrentWritersLoseNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	const writers, perWriter = 4, 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		c := newTestCoordinator(t, root, "busy", WithLocker(filelock.New(
			filepath.Join(TasksDir(root), "busy.json"),
			filelock.WithAttempts(200),
			filelock.WithBackoff(2*time.Millisecond),
		)))
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, ok := c.AddTask(ctx, fmt.Sprintf("w%d-%d", w, i), "", nil, nil); !ok {
					t.Errorf("writer %d add %d failed", w, i)
				}
			}
		}(w)
	}
	wg.Wait()

	c := newTestCoordinator(t, root, "busy")
	if got := len(c.Tasks(ctx)); got != writers*perWriter {
		t.Errorf("tasks = %d, want %d", got, writers*perWriter)
	}
}

func TestWatch_SeesOtherWriters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	root := t.TempDir()
	watcher := newTestCoordinator(t, root, "live")
	writer := newTestCoordinator(t, root, "live")

	ch, err := watcher.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if initial := <-ch; len(initial) != 0 {
		t.Fatalf("initial snapshot = %d tasks", len(initial))
	}

	if _, ok := writer.AddTask(ctx, "from elsewhere", "", nil, nil); !ok {
		t.Fatal("add failed")
	}

	for {
		select {
		case tasks, ok := <-ch:
			if !ok {
				t.Fatal("watch closed early")
			}
			if len(tasks) == 1 && tasks[0].Subject == "from elsewhere" {
				return
			}
		case <-ctx.Done():
			t.Fatal("watch never delivered the new task")
		}
	}
}
