//go:build integration

package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/helloagents/rlm/internal/contextmgr"
	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/pkg/models"
)

// TestSpawns_CompactSessionTier checks spawned agents feed the session
// tier and trigger compaction at the configured interval.
func TestSpawns_CompactSessionTier(t *testing.T) {
	cm := contextmgr.DefaultConfig()
	cm.CompactionInterval = 4
	cm.OverlapSize = 1
	e := newEngine(t, &countingExecutor{}, engine.Config{}, cm)

	for i := range 6 {
		e.SpawnAgent(context.Background(), engine.SpawnRequest{
			Role: models.RoleExplorer,
			Task: fmt.Sprintf("look at package %d", i),
		})
	}

	ctx := e.Context()
	if got := len(ctx.CompactedSummaries()); got != 1 {
		t.Errorf("compacted summaries = %d, want 1", got)
	}
	if got := len(ctx.SessionEvents(0, "")); got != 3 {
		t.Errorf("session events = %d, want 3", got)
	}
}

// TestMemoryTier_SharedThroughKnowledgeBase checks a document saved by one
// engine is visible to a fresh engine on the same knowledge base.
func TestMemoryTier_SharedThroughKnowledgeBase(t *testing.T) {
	cm := contextmgr.DefaultConfig()
	cm.KnowledgeBase = t.TempDir()

	first := newEngine(t, &countingExecutor{}, engine.Config{}, cm)
	if err := first.SaveContext("decisions", "use sqlite for sessions"); err != nil {
		t.Fatalf("SaveContext() error = %v", err)
	}
	folded := first.Fold(strings.Repeat("## step\nread main.go\n", 50), "", "checkpoint")
	if folded.Summary == "" || folded.ID == "" {
		t.Fatalf("folded = %+v", folded)
	}

	second := newEngine(t, &countingExecutor{}, engine.Config{}, cm)
	got, ok := second.LoadContext("decisions")
	if !ok || got != "use sqlite for sessions" {
		t.Errorf("LoadContext() = %q, %v", got, ok)
	}
}
