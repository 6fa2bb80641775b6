package state

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID(time.Date(2026, 2, 3, 4, 5, 6, 0, time.Local))
	if !regexp.MustCompile(`^session_20260203_040506_[0-9a-f]{8}$`).MatchString(id) {
		t.Errorf("NewSessionID = %q", id)
	}
}

func TestResolveSessionID(t *testing.T) {
	t.Setenv(EnvSessionID, "from-env")

	if got := ResolveSessionID("explicit"); got != "explicit" {
		t.Errorf("explicit = %q", got)
	}
	if got := ResolveSessionID(""); got != "from-env" {
		t.Errorf("env = %q", got)
	}

	t.Setenv(EnvSessionID, "")
	if got := ResolveSessionID(""); !strings.HasPrefix(got, "session_") {
		t.Errorf("generated = %q", got)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	db := setupTestDB(t)
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	advance := fixedClock(db, start)

	s, err := db.CreateSession("s1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.ID != "s1" || !s.CreatedAt.Equal(start) {
		t.Errorf("session = %+v", s)
	}

	// Creating again keeps the original creation time.
	advance(time.Minute)
	again, err := db.CreateSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !again.CreatedAt.Equal(start) {
		t.Errorf("CreatedAt changed to %v", again.CreatedAt)
	}

	missing, err := db.GetSession("nope")
	if err != nil || missing != nil {
		t.Errorf("GetSession(nope) = %v, %v", missing, err)
	}
}

func TestListSessions_ByActivity(t *testing.T) {
	db := setupTestDB(t)
	advance := fixedClock(db, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	for _, id := range []string{"a", "b", "c"} {
		if _, err := db.CreateSession(id); err != nil {
			t.Fatal(err)
		}
		advance(time.Second)
	}
	if err := db.Touch("a"); err != nil {
		t.Fatal(err)
	}

	sessions, err := db.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	if got := strings.Join(ids, ","); got != "a,c,b" {
		t.Errorf("order = %s, want a,c,b", got)
	}
}

func TestLogEvent_CreatesSessionAndFilters(t *testing.T) {
	db := setupTestDB(t)
	advance := fixedClock(db, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	if err := db.LogEvent("s1", EventFold, map[string]any{"strategy": "summarize"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	advance(time.Second)
	if err := db.LogEvent("s1", EventToolCall, map[string]any{"tool": "Read"}); err != nil {
		t.Fatal(err)
	}
	advance(time.Second)
	if err := db.LogEvent("s1", EventToolCall, map[string]any{"tool": "Grep"}); err != nil {
		t.Fatal(err)
	}

	s, err := db.GetSession("s1")
	if err != nil || s == nil {
		t.Fatalf("LogEvent should create the session: %v", err)
	}
	if !s.LastActive.Equal(time.Date(2026, 1, 1, 9, 0, 2, 0, time.UTC)) {
		t.Errorf("LastActive = %v", s.LastActive)
	}

	all, err := db.Events("s1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Type != EventFold {
		t.Fatalf("events = %+v", all)
	}

	tools, err := db.Events("s1", EventToolCall, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].Data["tool"] != "Grep" {
		t.Errorf("most recent tool call = %+v", tools)
	}
}

func TestRecentEventsSummary(t *testing.T) {
	db := setupTestDB(t)
	fixedClock(db, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	empty, err := db.RecentEventsSummary("s1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if empty != "no recent events" {
		t.Errorf("empty summary = %q", empty)
	}

	long := strings.Repeat("x", 80)
	events := []struct {
		typ  string
		data map[string]any
	}{
		{EventSpawnAgent, map[string]any{"role": "explorer", "task": long}},
		{EventFold, map[string]any{"strategy": "truncate"}},
		{EventToolCall, map[string]any{"tool": "Glob"}},
		{"custom", nil},
	}
	for _, e := range events {
		if err := db.LogEvent("s1", e.typ, e.data); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := db.RecentEventsSummary("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(summary, "\n")
	if len(lines) != 4 {
		t.Fatalf("summary = %q", summary)
	}
	wants := []string{
		"spawn: explorer - " + long[:50],
		"fold: truncate",
		"tool: Glob",
		"] custom",
	}
	for i, want := range wants {
		if !strings.HasPrefix(lines[i], "- [") || !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], want)
		}
	}
}

func TestRecordAgent_HistoryIsCapped(t *testing.T) {
	db := setupTestDB(t)
	advance := fixedClock(db, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	for i := 0; i < MaxAgentHistory+5; i++ {
		err := db.RecordAgent(AgentRun{
			SessionID: "s1",
			AgentID:   fmt.Sprintf("a%d", i),
			Role:      "explorer",
			Task:      "look around",
			Status:    "completed",
			Depth:     1,
		})
		if err != nil {
			t.Fatalf("RecordAgent %d: %v", i, err)
		}
		advance(time.Second)
	}

	history, err := db.AgentHistory("s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != MaxAgentHistory {
		t.Fatalf("history length = %d, want %d", len(history), MaxAgentHistory)
	}
	if history[0].AgentID != "a5" || history[len(history)-1].AgentID != "a54" {
		t.Errorf("history spans %s..%s", history[0].AgentID, history[len(history)-1].AgentID)
	}

	last3, err := db.AgentHistory("s1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(last3) != 3 || last3[2].AgentID != "a54" {
		t.Errorf("last3 = %+v", last3)
	}

	info, err := db.Info("s1")
	if err != nil {
		t.Fatal(err)
	}
	if info.AgentCount != MaxAgentHistory || info.TotalEvents != MaxAgentHistory+5 {
		t.Errorf("info = %+v", info)
	}

	spawns, err := db.Events("s1", EventSpawnAgent, 1)
	if err != nil {
		t.Fatal(err)
	}
	if spawns[0].Data["role"] != "explorer" || spawns[0].Data["agent_id"] != "a54" {
		t.Errorf("spawn event data = %v", spawns[0].Data)
	}
}

func TestSaveLoadState(t *testing.T) {
	db := setupTestDB(t)
	fixedClock(db, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	got, err := db.LoadState("s1")
	if err != nil || got != nil {
		t.Fatalf("LoadState before save = %v, %v", got, err)
	}

	if err := db.SaveState("s1", map[string]any{"mode": "auto"}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := db.SaveState("s1", map[string]any{"mode": "manual", "folds": 2}); err != nil {
		t.Fatal(err)
	}

	got, err = db.LoadState("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got["mode"] != "manual" || got["folds"] != float64(2) {
		t.Errorf("state = %v", got)
	}
	if _, ok := got["last_updated"]; !ok {
		t.Error("last_updated should be stamped")
	}
}

func TestDeleteSession_Cascades(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordAgent(AgentRun{SessionID: "s1", AgentID: "a", Role: "tester", Task: "t", Status: "failed"}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveState("s1", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSession("s1"); err != nil {
		t.Fatal(err)
	}

	if info, err := db.Info("s1"); err != nil || info != nil {
		t.Errorf("Info after delete = %v, %v", info, err)
	}
	runs, err := db.AgentHistory("s1", 0)
	if err != nil || len(runs) != 0 {
		t.Errorf("runs after delete = %v, %v", runs, err)
	}
	if st, _ := db.LoadState("s1"); st != nil {
		t.Errorf("state after delete = %v", st)
	}
}
