package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// TaskToolExecutor is used when rlm runs inside a host that spawns its own
// sub-agents. Nothing is executed; the response tells the host how to run
// the agent with its Task tool.
type TaskToolExecutor struct{}

// Execute returns an info envelope describing the Task tool call.
func (TaskToolExecutor) Execute(_ context.Context, req Request) (*Response, error) {
	env := map[string]any{
		"status":       "info",
		"key_findings": []string{"Claude Code environment: use the Task tool to spawn sub-agents"},
		"recommendations": []string{
			fmt.Sprintf("Task(subagent_type='%s', prompt='%s...')", req.Sandbox, truncate(req.Prompt, 100)),
		},
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return &Response{Output: string(out)}, nil
}

var _ Executor = TaskToolExecutor{}
