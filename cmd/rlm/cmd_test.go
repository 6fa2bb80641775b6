package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/config"
	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/internal/state"
	"github.com/helloagents/rlm/internal/version"
	"github.com/helloagents/rlm/pkg/models"
)

// testEnv isolates a command run: a temp project, a config file with
// logging off and no inherited depth or session.
func testEnv(t *testing.T) (workDir, cfgPath string) {
	t.Helper()
	color.NoColor = true
	t.Setenv(agent.EnvDepth, "")
	t.Setenv(state.EnvSessionID, "")
	t.Setenv("hellotasks", "")

	workDir = t.TempDir()
	cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	content := "engine:\n  backend: codex\nlog:\n  file: \"off\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return workDir, cfgPath
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// completedExecutor answers with finding as both finding and recommendation.
func completedExecutor(finding string) agent.Executor {
	return agent.ExecutorFunc(func(_ context.Context, req agent.Request) (*agent.Response, error) {
		b, _ := json.Marshal(map[string]any{
			"status":          "completed",
			"key_findings":    []string{finding},
			"recommendations": []string{finding},
		})
		return &agent.Response{Output: string(b)}, nil
	})
}

func TestParseTaskSpec(t *testing.T) {
	tests := []struct {
		in       string
		wantRole models.Role
		wantTask string
	}{
		{"reviewer:check auth", models.RoleReviewer, "check auth"},
		{" tester : cover login ", models.RoleTester, "cover login"},
		{"look around", models.RoleExplorer, "look around"},
		{"note: not a role", models.RoleExplorer, "note: not a role"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseTaskSpec(tt.in)
			if got.Role != tt.wantRole || got.Task != tt.wantTask {
				t.Errorf("parseTaskSpec(%q) = %+v", tt.in, got)
			}
		})
	}
}

func TestBatchRequests(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tasks.yaml")
	content := `- role: analyzer
  task: map the packages
  context_hint: [internal/]
- role: tester
  task: cover the loader
`
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	reqs, err := batchRequests([]string{"reviewer:check it"}, file)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 3 {
		t.Fatalf("got %d requests", len(reqs))
	}
	if reqs[0].Role != models.RoleAnalyzer || len(reqs[0].ContextHint) != 1 {
		t.Errorf("first = %+v", reqs[0])
	}
	if reqs[2].Role != models.RoleReviewer || reqs[2].Task != "check it" {
		t.Errorf("last = %+v", reqs[2])
	}

	if _, err := batchRequests(nil, ""); err == nil {
		t.Error("expected error for no tasks")
	}
}

func TestConfigValues(t *testing.T) {
	cfg := config.Default()

	if err := setConfigValue(cfg, "engine.max_depth", "7"); err != nil {
		t.Fatal(err)
	}
	if err := setConfigValue(cfg, "Tasks.Lock_Backoff", "250ms"); err != nil {
		t.Fatal(err)
	}
	if err := setConfigValue(cfg, "anthropic.use_bedrock", "true"); err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.MaxDepth != 7 || cfg.Tasks.LockBackoff.String() != "250ms" || !cfg.Anthropic.UseBedrock {
		t.Errorf("cfg = %+v", cfg)
	}

	for _, bad := range [][2]string{
		{"engine.max_parallel", "many"},
		{"engine.default_timeout", "soon"},
		{"folding.preserve_code_blocks", "maybe"},
		{"nope.key", "1"},
	} {
		if err := setConfigValue(cfg, bad[0], bad[1]); err == nil {
			t.Errorf("setConfigValue(%q, %q) should fail", bad[0], bad[1])
		}
	}

	cfg.Anthropic.APIKey = "sk-ant-REDACTED"
	got, err := getConfigValue(cfg, "anthropic.api_key")
	if err != nil || strings.Contains(got, "abcdefgh") {
		t.Errorf("api key shown as %q (%v)", got, err)
	}
	for _, k := range configKeys {
		if _, err := getConfigValue(cfg, k); err != nil {
			t.Errorf("getConfigValue(%q): %v", k, err)
		}
	}
}

func TestConfigCmd_SetWritesConfigFile(t *testing.T) {
	workDir, cfgPath := testEnv(t)

	out, err := run(t, &app{}, "--config", cfgPath, "--workdir", workDir, "config", "engine.max_parallel", "6")
	if err != nil {
		t.Fatalf("config set: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Set engine.max_parallel = 6") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, &app{}, "--config", cfgPath, "--workdir", workDir, "config", "engine.max_parallel")
	if err != nil || strings.TrimSpace(out) != "6" {
		t.Errorf("config get = %q (%v)", out, err)
	}

	if _, err := run(t, &app{}, "--config", cfgPath, "--workdir", workDir, "config", "engine.mode", "frantic"); err == nil {
		t.Error("invalid mode should be rejected")
	}
}

func TestVersionCmd(t *testing.T) {
	workDir, cfgPath := testEnv(t)
	out, err := run(t, &app{}, "--config", cfgPath, "--workdir", workDir, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "rlm version "+version.Get()) {
		t.Errorf("output = %q", out)
	}
}

func TestSpawnCmd(t *testing.T) {
	workDir, cfgPath := testEnv(t)

	a := &app{executor: completedExecutor("found the entrypoint")}
	out, err := run(t, a, "--config", cfgPath, "--workdir", workDir, "--session", "s1", "--json",
		"spawn", "explorer", "find", "main")
	if err != nil {
		t.Fatalf("spawn: %v\n%s", err, out)
	}
	var res models.AgentResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Status != models.ResultCompleted || res.KeyFindings[0] != "found the entrypoint" {
		t.Errorf("result = %+v", res)
	}

	out, err = run(t, &app{}, "--config", cfgPath, "--workdir", workDir, "--json", "session", "history", "s1")
	if err != nil {
		t.Fatalf("session history: %v\n%s", err, out)
	}
	var runs []state.AgentRun
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Role != "explorer" || runs[0].Task != "find main" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestSpawnCmd_FailedResultExitsNonZero(t *testing.T) {
	workDir, cfgPath := testEnv(t)

	a := &app{executor: agent.ExecutorFunc(func(context.Context, agent.Request) (*agent.Response, error) {
		return &agent.Response{Stderr: "boom", ExitCode: 2}, nil
	})}
	out, err := run(t, a, "--config", cfgPath, "--workdir", workDir, "spawn", "tester", "run tests")
	if err == nil {
		t.Fatal("expected error for failed agent")
	}
	if !strings.Contains(out, "agent failed") {
		t.Errorf("output = %q", out)
	}
}

func TestBatchCmd_Merges(t *testing.T) {
	workDir, cfgPath := testEnv(t)

	a := &app{executor: completedExecutor("shared finding")}
	out, err := run(t, a, "--config", cfgPath, "--workdir", workDir, "--json",
		"batch", "-t", "reviewer:one", "-t", "reviewer:two", "--merge", "vote")
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	var got struct {
		Results []models.AgentResult `json:"results"`
		Merged  string               `json:"merged"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 2 {
		t.Errorf("results = %d", len(got.Results))
	}
	if !strings.Contains(got.Merged, "shared finding (2 votes)") {
		t.Errorf("merged = %q", got.Merged)
	}

	if _, err := run(t, a, "--config", cfgPath, "--workdir", workDir, "batch", "-t", "x", "--merge", "mash"); err == nil {
		t.Error("unknown merge strategy should fail")
	}
}

func TestPlanExampleCmd(t *testing.T) {
	workDir, cfgPath := testEnv(t)
	out, err := run(t, &app{}, "--config", cfgPath, "--workdir", workDir, "plan", "example")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "mode: sequential") {
		t.Errorf("output = %q", out)
	}
}

func TestTasksCmd(t *testing.T) {
	workDir, cfgPath := testEnv(t)
	base := []string{"--config", cfgPath, "--workdir", workDir}

	if _, err := run(t, &app{}, append(base, "tasks", "list")...); err == nil {
		t.Fatal("tasks list without a list id should fail")
	}

	t.Setenv("hellotasks", "team")
	out, err := run(t, &app{}, append(base, "--json", "tasks", "add", "write docs", "-d", "the README")...)
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	var added map[string]string
	if err := json.Unmarshal([]byte(out), &added); err != nil {
		t.Fatal(err)
	}
	id := added["id"]

	if out, err := run(t, &app{}, append(base, "tasks", "claim", id, "--owner", "me")...); err != nil {
		t.Fatalf("claim: %v\n%s", err, out)
	}
	if _, err := run(t, &app{}, append(base, "tasks", "complete", id, "--owner", "someone-else")...); err == nil {
		t.Error("completing another owner's task should fail")
	}

	out, err = run(t, &app{}, append(base, "--json", "tasks", "list")...)
	if err != nil {
		t.Fatal(err)
	}
	var tasks []models.SharedTask
	if err := json.Unmarshal([]byte(out), &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Status != models.TaskStatusInProgress || tasks[0].OwnerName() != "me" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestStatusCmd(t *testing.T) {
	workDir, cfgPath := testEnv(t)

	a := &app{executor: completedExecutor("ok")}
	out, err := run(t, a, "--config", cfgPath, "--workdir", workDir, "--session", "s9", "--json", "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var report struct {
		Engine engine.Diagnostics `json:"engine"`
		Tasks  struct {
			Mode string `json:"mode"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Engine.Mode != models.ModeActive || report.Engine.SessionID != "s9" || report.Engine.Backend != models.BackendCodex {
		t.Errorf("engine = %+v", report.Engine)
	}
	if report.Tasks.Mode != "isolated" {
		t.Errorf("tasks mode = %q", report.Tasks.Mode)
	}
}

func TestSessionCmd_NoStore(t *testing.T) {
	workDir, cfgPath := testEnv(t)
	if _, err := run(t, &app{}, "--config", cfgPath, "--workdir", workDir, "session", "list"); err == nil {
		t.Error("expected error without a session store")
	}
}
