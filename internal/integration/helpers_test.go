//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/contextmgr"
	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/internal/state"
)

// countingExecutor answers every request with its task as the only
// finding and counts calls.
type countingExecutor struct {
	calls atomic.Int32
	hook  func(ctx context.Context, req agent.Request)
}

func (e *countingExecutor) Execute(ctx context.Context, req agent.Request) (*agent.Response, error) {
	e.calls.Add(1)
	if e.hook != nil {
		e.hook(ctx, req)
	}
	_, rest, _ := strings.Cut(req.Prompt, "## Task\n")
	task, _, _ := strings.Cut(rest, "\n")
	out, _ := json.Marshal(map[string]any{
		"status":       "completed",
		"key_findings": []string{task},
	})
	return &agent.Response{Output: string(out)}, nil
}

func openStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newEngine(t *testing.T, ex agent.Executor, cfg engine.Config, cm contextmgr.Config, opts ...engine.Option) *engine.Engine {
	t.Helper()
	if cm.KnowledgeBase == "" {
		cm.KnowledgeBase = t.TempDir()
	}
	opts = append([]engine.Option{engine.WithContextManager(contextmgr.New(cm))}, opts...)
	return engine.New(ex, cfg, opts...)
}
