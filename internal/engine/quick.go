package engine

import (
	"context"
	"os"

	"github.com/helloagents/rlm/pkg/models"
)

// QuickAnalyze spawns one analyzer on target. When target names an
// existing path it is passed along as a context hint.
func (e *Engine) QuickAnalyze(ctx context.Context, target string) models.AgentResult {
	req := SpawnRequest{
		Role: models.RoleAnalyzer,
		Task: "Analyze the following target: " + target,
	}
	if _, err := os.Stat(target); err == nil {
		req.ContextHint = []string{target}
	}
	return e.SpawnAgent(ctx, req)
}

// QuickImplement spawns one implementer for spec.
func (e *Engine) QuickImplement(ctx context.Context, spec string) models.AgentResult {
	return e.SpawnAgent(ctx, SpawnRequest{Role: models.RoleImplementer, Task: spec})
}
