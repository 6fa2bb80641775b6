package api

import (
	"context"
	"log/slog"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/protect"
)

const systemPrompt = `You are a sub-agent working inside a software project.
Use the tools to inspect the workspace and do the task you are given.
When you are done, end your reply with the JSON result object on a line of its own.`

// Executor runs sub-agents through the Messages API. Each request gets its
// own tool loop rooted at the workspace.
type Executor struct {
	client        *Client
	workDir       string
	maxIterations int
	protected     *protect.Detector
	log           *slog.Logger
}

// NewExecutor creates an API-backed executor.
func NewExecutor(client *Client, workDir string, maxIterations int, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		client:        client,
		workDir:       workDir,
		maxIterations: maxIterations,
		log:           log,
	}
}

// Execute implements agent.Executor.
func (e *Executor) Execute(ctx context.Context, req agent.Request) (*agent.Response, error) {
	tools := NewToolExecutor(e.workDir, req.Sandbox).Protect(e.protected)
	loop := NewAgentLoop(e.client, tools, e.maxIterations, e.log.With("role", req.Role, "depth", req.Depth))

	res, err := loop.Run(ctx, systemPrompt, req.Prompt, ToolDefinitions(req.Sandbox))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	e.log.Debug("api agent finished",
		"role", req.Role,
		"iterations", res.Iterations,
		"tool_calls", res.ToolCalls,
		"tokens_in", res.TokensIn,
		"tokens_out", res.TokensOut,
	)
	return &agent.Response{Output: res.Output}, nil
}

// WithProtected sets the paths sub-agents may not modify.
func (e *Executor) WithProtected(d *protect.Detector) *Executor {
	e.protected = d
	return e
}

var _ agent.Executor = (*Executor)(nil)
