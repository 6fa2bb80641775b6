package ids

import (
	"sync"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
}

func TestGenerator_Next(t *testing.T) {
	g := NewWithClock(fixedClock, "")

	if got := g.Next("traj"); got != "traj_1_20250304050607" {
		t.Errorf("first id = %q", got)
	}
	if got := g.Next("traj"); got != "traj_2_20250304050607" {
		t.Errorf("second id = %q", got)
	}
	if got := g.Next("task"); got != "task_1_20250304050607" {
		t.Errorf("other prefix should have its own counter, got %q", got)
	}
	if g.Count("traj") != 2 {
		t.Errorf("Count(traj) = %d, want 2", g.Count("traj"))
	}

	g.Reset()
	if got := g.Next("traj"); got != "traj_1_20250304050607" {
		t.Errorf("after reset id = %q", got)
	}
}

func TestGenerator_ConcurrentUnique(t *testing.T) {
	g := NewWithClock(fixedClock, "150405")
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Next("x")
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d unique ids, want %d", len(seen), n)
	}
}
