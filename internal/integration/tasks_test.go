//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/contextmgr"
	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/internal/filelock"
	"github.com/helloagents/rlm/internal/sharedtasks"
	"github.com/helloagents/rlm/pkg/models"
)

func openList(root string) (*sharedtasks.Coordinator, error) {
	return sharedtasks.New(context.Background(), root, "team",
		sharedtasks.WithLockOptions(filelock.WithAttempts(100), filelock.WithBackoff(5*time.Millisecond)))
}

func coordinator(t *testing.T, root string) *sharedtasks.Coordinator {
	t.Helper()
	c, err := openList(root)
	if err != nil {
		t.Fatalf("sharedtasks.New() error = %v", err)
	}
	return c
}

// TestSharedTasks_ConcurrentClaims has independent coordinators race for
// one task; exactly one wins and its completion unblocks the dependent.
func TestSharedTasks_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	admin := coordinator(t, root)

	first, ok := admin.AddTask(ctx, "migrate schema", "", nil, nil)
	if !ok {
		t.Fatal("AddTask failed")
	}
	second, ok := admin.AddTask(ctx, "backfill", "", nil, []string{first})
	if !ok {
		t.Fatal("AddTask failed")
	}

	const workers = 8
	racers := make([]*sharedtasks.Coordinator, workers)
	for i := range racers {
		racers[i] = coordinator(t, root)
	}

	var wins atomic.Int32
	var winner atomic.Value
	var wg sync.WaitGroup
	for i, c := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := fmt.Sprintf("worker-%d", i)
			if c.ClaimTask(ctx, first, owner) {
				wins.Add(1)
				winner.Store(owner)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("%d workers claimed the task, want 1", wins.Load())
	}
	if admin.ClaimTask(ctx, second, "eager") {
		t.Error("blocked task should not be claimable")
	}

	if !admin.CompleteTask(ctx, first, winner.Load().(string)) {
		t.Fatal("winner could not complete its task")
	}
	avail := admin.AvailableTasks(ctx)
	if len(avail) != 1 || avail[0].ID != second {
		t.Errorf("available = %+v", avail)
	}
}

// TestBatch_AgentsDrainSharedList runs a batch whose agents each claim and
// complete one task from the shared list.
func TestBatch_AgentsDrainSharedList(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	admin := coordinator(t, root)
	for _, s := range []string{"lint", "test", "docs"} {
		if _, ok := admin.AddTask(ctx, s, "", nil, nil); !ok {
			t.Fatal("AddTask failed")
		}
	}

	var next atomic.Int32
	var mu sync.Mutex
	claimed := map[string]string{}
	ex := &countingExecutor{hook: func(ctx context.Context, req agent.Request) {
		c, err := openList(root)
		if err != nil {
			return
		}
		owner := fmt.Sprintf("agent-%d", next.Add(1))
		for _, task := range c.AvailableTasks(ctx) {
			if c.ClaimTask(ctx, task.ID, owner) {
				mu.Lock()
				claimed[task.ID] = owner
				mu.Unlock()
				c.CompleteTask(ctx, task.ID, owner)
				return
			}
		}
	}}
	e := newEngine(t, ex, engine.Config{MaxParallel: 3}, contextmgr.DefaultConfig())

	reqs := make([]engine.SpawnRequest, 3)
	for i := range reqs {
		reqs[i] = engine.SpawnRequest{Role: models.RoleImplementer, Task: "take a task"}
	}
	for i, r := range e.Batch(ctx, reqs) {
		if r.Status != models.ResultCompleted {
			t.Errorf("agent %d: %+v", i, r)
		}
	}

	if len(claimed) != 3 {
		t.Errorf("claimed = %v", claimed)
	}
	st := admin.Status(ctx)
	if st.Completed != 3 || st.Pending != 0 {
		t.Errorf("status = %+v", st)
	}
}
