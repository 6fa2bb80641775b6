package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"explorer is valid", RoleExplorer, true},
		{"analyzer is valid", RoleAnalyzer, true},
		{"implementer is valid", RoleImplementer, true},
		{"reviewer is valid", RoleReviewer, true},
		{"tester is valid", RoleTester, true},
		{"synthesizer is valid", RoleSynthesizer, true},
		{"empty string is invalid", Role(""), false},
		{"unknown role is invalid", Role("hacker"), false},
		{"case matters", Role("Explorer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRole_Preset(t *testing.T) {
	for _, r := range Roles {
		p, ok := r.Preset()
		if !ok {
			t.Errorf("Role(%q).Preset() missing", r)
			continue
		}
		if p.Description == "" {
			t.Errorf("Role(%q) preset has empty description", r)
		}
	}

	if p, _ := RoleImplementer.Preset(); p.Sandbox != SandboxWorkspaceWrite {
		t.Errorf("implementer sandbox = %q, want %q", p.Sandbox, SandboxWorkspaceWrite)
	}
	if p, _ := RoleReviewer.Preset(); p.Sandbox != SandboxReadOnly {
		t.Errorf("reviewer sandbox = %q, want %q", p.Sandbox, SandboxReadOnly)
	}
	if _, ok := Role("nope").Preset(); ok {
		t.Error("unknown role should have no preset")
	}
}

func TestBackendAndMode_Valid(t *testing.T) {
	for _, b := range []Backend{BackendCodex, BackendGemini, BackendQwen, BackendClaude, BackendGrok, BackendAnthropic} {
		if !b.Valid() {
			t.Errorf("Backend(%q).Valid() = false", b)
		}
	}
	if Backend("openai").Valid() {
		t.Error("Backend(openai) should be invalid")
	}

	tests := []struct {
		mode      Mode
		valid     bool
		autoFolds bool
	}{
		{ModeDisabled, true, false},
		{ModePassive, true, false},
		{ModeActive, true, true},
		{ModeAggressive, true, true},
		{Mode("turbo"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.mode.AutoFolds(); got != tt.autoFolds {
				t.Errorf("AutoFolds() = %v, want %v", got, tt.autoFolds)
			}
		})
	}
}

func TestAgentResult_Summary(t *testing.T) {
	tests := []struct {
		name   string
		result AgentResult
		want   string
	}{
		{
			name:   "status only",
			result: AgentResult{Status: ResultCompleted},
			want:   "[COMPLETED]",
		},
		{
			name: "findings capped at three",
			result: AgentResult{
				Status:      ResultPartial,
				KeyFindings: []string{"a", "b", "c", "d"},
			},
			want: "[PARTIAL] | findings: a; b; c",
		},
		{
			name: "changes and issues counted",
			result: AgentResult{
				Status:      ResultFailed,
				KeyFindings: []string{"boom"},
				ChangesMade: []Change{{File: "a.go"}, {File: "b.go"}},
				IssuesFound: []Issue{{Description: "x"}},
			},
			want: "[FAILED] | findings: boom | changes: 2 files | issues: 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAgentResult_JSON(t *testing.T) {
	r := AgentResult{
		ThreadID:      "th-1",
		Status:        ResultCompleted,
		KeyFindings:   []string{"found"},
		RawOutput:     "secret raw output",
		ExecutionTime: 1500 * time.Millisecond,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "secret raw output") {
		t.Errorf("raw output leaked into JSON: %s", s)
	}
	if !strings.Contains(s, `"execution_time":1.5`) {
		t.Errorf("execution_time not in seconds: %s", s)
	}
	if !strings.Contains(s, `"changes_made":[]`) {
		t.Errorf("empty changes should encode as []: %s", s)
	}

	var back AgentResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ExecutionTime != r.ExecutionTime {
		t.Errorf("ExecutionTime = %v, want %v", back.ExecutionTime, r.ExecutionTime)
	}
	if back.ThreadID != "th-1" || back.Status != ResultCompleted {
		t.Errorf("round trip lost fields: %+v", back)
	}
}

func TestChangeAndIssue_LenientDecode(t *testing.T) {
	var changes []Change
	if err := json.Unmarshal([]byte(`["a.go", {"file": "b.go", "type": "create"}]`), &changes); err != nil {
		t.Fatalf("Unmarshal changes: %v", err)
	}
	if len(changes) != 2 || changes[0].File != "a.go" || changes[1].Type != "create" {
		t.Errorf("changes = %+v", changes)
	}

	var issues []Issue
	if err := json.Unmarshal([]byte(`["plain", {"severity": "high", "description": "bad"}]`), &issues); err != nil {
		t.Fatalf("Unmarshal issues: %v", err)
	}
	if issues[0].SeverityOrDefault() != "medium" {
		t.Errorf("default severity = %q, want medium", issues[0].SeverityOrDefault())
	}
	if issues[1].SeverityOrDefault() != "high" {
		t.Errorf("severity = %q, want high", issues[1].SeverityOrDefault())
	}
}

func TestFailedResult(t *testing.T) {
	r := FailedResult("maximum recursion depth %d reached", 5)
	if !r.Failed() {
		t.Error("FailedResult should be failed")
	}
	if len(r.KeyFindings) != 1 || r.KeyFindings[0] != "maximum recursion depth 5 reached" {
		t.Errorf("KeyFindings = %v", r.KeyFindings)
	}
}
