// Package agent runs a single sub-agent: it builds the role prompt, hands
// it to a backend, and turns whatever comes back into a structured result.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/helloagents/rlm/pkg/models"
)

// Environment variables passed to child processes so a nested engine
// continues the parent's recursion budget and session.
const (
	EnvDepth     = "RLM_DEPTH"
	EnvSessionID = "HELLOAGENTS_SESSION_ID"
)

// ErrBackendNotInstalled is returned when the backend binary is missing.
var ErrBackendNotInstalled = errors.New("backend not installed")

// Request is everything a backend needs to run one sub-agent.
type Request struct {
	Role      models.Role
	Prompt    string
	Sandbox   models.Sandbox
	Timeout   time.Duration
	Depth     int
	SessionID string
}

// Response is the raw outcome of a backend call.
type Response struct {
	Output   string
	Stderr   string
	ExitCode int
}

// Executor runs sub-agents. Implementations must honor ctx cancellation and
// be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (*Response, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Interpret converts a completed backend call into a result. It does not
// handle cancellation; callers map context errors themselves.
func Interpret(resp *Response, err error) models.AgentResult {
	switch {
	case errors.Is(err, ErrBackendNotInstalled):
		return models.FailedResult("CLI not installed or not in PATH")
	case err != nil:
		return models.FailedResult("executor error: %v", err)
	case resp == nil:
		return models.FailedResult("executor error: empty response")
	}

	if resp.ExitCode != 0 && resp.Stderr != "" {
		res := models.FailedResult("executor error: %s", truncate(resp.Stderr, 500))
		res.RawOutput = resp.Output
		return res
	}
	return ParseOutput(resp.Output)
}

var _ Executor = ExecutorFunc(nil)
