package agent

import (
	"os"

	"github.com/helloagents/rlm/pkg/models"
)

// BackendSpec describes how to drive one agent CLI. Empty flag fields mean
// the CLI does not take that flag.
type BackendSpec struct {
	Command      []string
	JSONFlag     string
	SkipGitFlag  string
	SandboxFlag  string
	ModelFlag    string
	DefaultModel string
	// Binary is the executable looked up on PATH during detection.
	Binary string
	// EnvMarker is set by the host CLI when rlm runs inside it.
	EnvMarker string
}

// Backends holds the spec of every CLI-driven backend. The claude and
// anthropic backends do not shell out and are not listed.
var Backends = map[models.Backend]BackendSpec{
	models.BackendCodex: {
		Command:      []string{"codex", "exec"},
		JSONFlag:     "--json",
		SkipGitFlag:  "--skip-git-repo-check",
		SandboxFlag:  "--sandbox",
		ModelFlag:    "--model",
		DefaultModel: "gpt-5.2-codex",
		Binary:       "codex",
		EnvMarker:    "CODEX_CLI",
	},
	models.BackendGemini: {
		Command:      []string{"gemini"},
		JSONFlag:     "--json",
		ModelFlag:    "--model",
		DefaultModel: "gemini-3",
		Binary:       "gemini",
		EnvMarker:    "GEMINI_CLI",
	},
	models.BackendQwen: {
		Command:      []string{"qwen-code"},
		JSONFlag:     "--json",
		ModelFlag:    "--model",
		DefaultModel: "qwen3-coder",
		Binary:       "qwen-code",
		EnvMarker:    "QWEN_CODE",
	},
	models.BackendGrok: {
		Command:      []string{"grok", "agent"},
		JSONFlag:     "--json",
		ModelFlag:    "--model",
		DefaultModel: "grok-code-fast-1",
		Binary:       "grok",
		EnvMarker:    "GROK_CLI",
	},
}

// ClaudeDefaultModel is reported for the claude backend, which never runs
// a model itself.
const ClaudeDefaultModel = "claude-sonnet-4"

// DefaultModel returns the model a backend uses when none is configured.
func DefaultModel(b models.Backend) string {
	if spec, ok := Backends[b]; ok {
		return spec.DefaultModel
	}
	if b == models.BackendClaude {
		return ClaudeDefaultModel
	}
	return ""
}

// detectOrder is the lookup order for both env markers and PATH.
var detectOrder = []models.Backend{
	models.BackendCodex,
	models.BackendGemini,
	models.BackendQwen,
	models.BackendClaude,
	models.BackendGrok,
}

// Detect picks the backend for the current environment: a host env marker
// wins, then the first CLI found on PATH, then codex.
func Detect(getenv func(string) string, lookPath func(string) (string, error)) models.Backend {
	if getenv == nil {
		getenv = os.Getenv
	}

	for _, b := range detectOrder {
		marker := "CLAUDE_CODE"
		if spec, ok := Backends[b]; ok {
			marker = spec.EnvMarker
		}
		if getenv(marker) != "" {
			return b
		}
	}

	if lookPath != nil {
		for _, b := range detectOrder {
			spec, ok := Backends[b]
			if !ok {
				continue
			}
			if _, err := lookPath(spec.Binary); err == nil {
				return b
			}
		}
	}
	return models.BackendCodex
}
