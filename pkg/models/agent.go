package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the fixed set of sub-agent specializations.
type Role string

const (
	// RoleExplorer surveys a codebase and gathers context.
	RoleExplorer Role = "explorer"
	// RoleAnalyzer performs deep analysis of code, requirements or architecture.
	RoleAnalyzer Role = "analyzer"
	// RoleImplementer writes or modifies code.
	RoleImplementer Role = "implementer"
	// RoleReviewer reviews work for quality.
	RoleReviewer Role = "reviewer"
	// RoleTester writes and runs tests.
	RoleTester Role = "tester"
	// RoleSynthesizer combines the output of several agents.
	RoleSynthesizer Role = "synthesizer"
)

// Roles lists every valid role in presentation order.
var Roles = []Role{
	RoleExplorer, RoleAnalyzer, RoleImplementer,
	RoleReviewer, RoleTester, RoleSynthesizer,
}

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleExplorer, RoleAnalyzer, RoleImplementer,
		RoleReviewer, RoleTester, RoleSynthesizer:
		return true
	default:
		return false
	}
}

// Sandbox is the capability hint handed to the executor.
type Sandbox string

const (
	SandboxReadOnly       Sandbox = "read-only"
	SandboxWorkspaceWrite Sandbox = "workspace-write"
)

// RolePreset describes what a role is for and what it may touch.
type RolePreset struct {
	Description string
	Sandbox     Sandbox
	Tools       []string
}

var rolePresets = map[Role]RolePreset{
	RoleExplorer: {
		Description: "Explore the codebase and collect context",
		Sandbox:     SandboxReadOnly,
		Tools:       []string{"read", "grep", "glob"},
	},
	RoleAnalyzer: {
		Description: "Analyze code, requirements or architecture in depth",
		Sandbox:     SandboxReadOnly,
		Tools:       []string{"read", "grep", "glob", "test"},
	},
	RoleImplementer: {
		Description: "Write or modify code",
		Sandbox:     SandboxWorkspaceWrite,
		Tools:       []string{"read", "write", "edit", "bash"},
	},
	RoleReviewer: {
		Description: "Review code and check quality",
		Sandbox:     SandboxReadOnly,
		Tools:       []string{"read", "grep", "glob", "test"},
	},
	RoleTester: {
		Description: "Write and run tests",
		Sandbox:     SandboxWorkspaceWrite,
		Tools:       []string{"read", "write", "edit", "bash", "test"},
	},
	RoleSynthesizer: {
		Description: "Combine the output of several agents",
		Sandbox:     SandboxReadOnly,
		Tools:       []string{"read"},
	},
}

// Preset returns the preset for the role. The second value is false for
// unknown roles.
func (r Role) Preset() (RolePreset, bool) {
	p, ok := rolePresets[r]
	return p, ok
}

// Backend identifies the executor implementation used to run sub-agents.
type Backend string

const (
	BackendCodex     Backend = "codex"
	BackendGemini    Backend = "gemini"
	BackendQwen      Backend = "qwen"
	BackendClaude    Backend = "claude"
	BackendGrok      Backend = "grok"
	BackendAnthropic Backend = "anthropic"
)

// Valid returns true if the backend is a known value.
func (b Backend) Valid() bool {
	switch b {
	case BackendCodex, BackendGemini, BackendQwen, BackendClaude, BackendGrok, BackendAnthropic:
		return true
	default:
		return false
	}
}

// Mode controls how eagerly the engine delegates and folds.
type Mode string

const (
	// ModeDisabled refuses to spawn sub-agents.
	ModeDisabled Mode = "disabled"
	// ModePassive spawns on request but never folds on its own.
	ModePassive Mode = "passive"
	// ModeActive folds long agent output before it enters working context.
	ModeActive Mode = "active"
	// ModeAggressive behaves like active and is meant for hosts that
	// delegate every subtask.
	ModeAggressive Mode = "aggressive"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeDisabled, ModePassive, ModeActive, ModeAggressive:
		return true
	default:
		return false
	}
}

// AutoFolds reports whether the mode folds long output automatically.
func (m Mode) AutoFolds() bool {
	return m == ModeActive || m == ModeAggressive
}

// ResultStatus is the outcome of one sub-agent call.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultPartial   ResultStatus = "partial"
	// ResultInfo means the backend did not run anything and returned
	// instructions for the host instead.
	ResultInfo ResultStatus = "info"
)

// Valid returns true if the status is a known value.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultCompleted, ResultFailed, ResultPartial, ResultInfo:
		return true
	default:
		return false
	}
}

// Change is one file touched by a sub-agent.
type Change struct {
	File string `json:"file"`
	Type string `json:"type,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare file path.
func (c *Change) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Change{File: s}
		return nil
	}
	type plain Change
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Change(p)
	return nil
}

// Issue is one problem reported by a sub-agent.
type Issue struct {
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts either an object or a bare description.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = Issue{Description: s}
		return nil
	}
	type plain Issue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Issue(p)
	return nil
}

// SeverityOrDefault returns the severity, or "medium" when none was given.
func (i Issue) SeverityOrDefault() string {
	if i.Severity == "" {
		return "medium"
	}
	return i.Severity
}

// AgentResult is the outcome of one sub-agent call.
type AgentResult struct {
	// ThreadID is the executor's conversation identifier, if it reported one.
	ThreadID string `json:"thread_id"`
	// Status is the reported or derived outcome.
	Status ResultStatus `json:"status"`
	// KeyFindings are the agent's main observations, in order.
	KeyFindings []string `json:"key_findings"`
	// ChangesMade lists files the agent touched.
	ChangesMade []Change `json:"changes_made"`
	// IssuesFound lists problems the agent reported.
	IssuesFound []Issue `json:"issues_found"`
	// Recommendations are suggested next steps.
	Recommendations []string `json:"recommendations"`
	// NeedsFollowup is set when the agent could not finish on its own.
	NeedsFollowup bool `json:"needs_followup"`
	// FollowupContext explains what the follow-up needs.
	FollowupContext string `json:"followup_context"`
	// RawOutput is the unparsed executor output.
	RawOutput string `json:"-"`
	// ExecutionTime is the wall-clock duration of the call.
	ExecutionTime time.Duration `json:"-"`
}

// FailedResult builds a failed result carrying a single finding.
func FailedResult(format string, args ...any) AgentResult {
	return AgentResult{
		Status:      ResultFailed,
		KeyFindings: []string{fmt.Sprintf(format, args...)},
	}
}

// Failed reports whether the result has failed status.
func (r AgentResult) Failed() bool {
	return r.Status == ResultFailed
}

// Summary renders a one-line digest of the result.
func (r AgentResult) Summary() string {
	parts := []string{"[" + strings.ToUpper(string(r.Status)) + "]"}
	if len(r.KeyFindings) > 0 {
		n := min(len(r.KeyFindings), 3)
		parts = append(parts, "findings: "+strings.Join(r.KeyFindings[:n], "; "))
	}
	if len(r.ChangesMade) > 0 {
		parts = append(parts, fmt.Sprintf("changes: %d files", len(r.ChangesMade)))
	}
	if len(r.IssuesFound) > 0 {
		parts = append(parts, fmt.Sprintf("issues: %d", len(r.IssuesFound)))
	}
	return strings.Join(parts, " | ")
}

type agentResultJSON struct {
	agentResultAlias
	ExecutionTime float64 `json:"execution_time"`
}

type agentResultAlias AgentResult

// MarshalJSON writes execution_time in seconds and never includes raw output.
func (r AgentResult) MarshalJSON() ([]byte, error) {
	out := agentResultJSON{
		agentResultAlias: agentResultAlias(r),
		ExecutionTime:    r.ExecutionTime.Seconds(),
	}
	out.KeyFindings = nonNil(out.KeyFindings)
	out.Recommendations = nonNil(out.Recommendations)
	if out.ChangesMade == nil {
		out.ChangesMade = []Change{}
	}
	if out.IssuesFound == nil {
		out.IssuesFound = []Issue{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (r *AgentResult) UnmarshalJSON(data []byte) error {
	var in agentResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = AgentResult(in.agentResultAlias)
	r.ExecutionTime = time.Duration(in.ExecutionTime * float64(time.Second))
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
