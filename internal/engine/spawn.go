package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/folding"
	"github.com/helloagents/rlm/internal/state"
	"github.com/helloagents/rlm/pkg/models"
)

// DefaultRole is used for requests that name no role.
const DefaultRole = models.RoleExplorer

// SpawnRequest describes one sub-agent call.
type SpawnRequest struct {
	Role        models.Role   `json:"role" yaml:"role"`
	Task        string        `json:"task" yaml:"task"`
	ContextHint []string      `json:"context_hint,omitempty" yaml:"context_hint,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SpawnAgent runs one sub-agent in its own context. It never returns an
// error: refusals, timeouts, executor failures and panics all come back
// as failed results. A request without a role runs as an explorer.
func (e *Engine) SpawnAgent(ctx context.Context, req SpawnRequest) models.AgentResult {
	start := time.Now()
	cfg := e.Config()
	if req.Role == "" {
		req.Role = DefaultRole
	}

	if cfg.Mode == models.ModeDisabled {
		return models.FailedResult("rlm is disabled")
	}

	depth := e.Depth(ctx)
	if depth >= cfg.MaxDepth {
		e.log.Warn("spawn refused", "reason", "max depth", "depth", depth, "role", req.Role)
		return models.FailedResult("maximum recursion depth %d reached", cfg.MaxDepth)
	}

	preset, ok := req.Role.Preset()
	if !ok {
		return models.FailedResult("unknown role %s, available roles: %v", req.Role, models.Roles)
	}

	child := depth + 1
	if err := e.enter(ctx, child); err != nil {
		return models.FailedResult("execution error: %v", err)
	}
	defer e.leave(child)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}

	e.addSessionEvent(state.EventSpawnAgent, string(req.Role)+": "+req.Task, map[string]any{
		"role":         string(req.Role),
		"task":         req.Task,
		"context_hint": req.ContextHint,
		"depth":        child,
	})
	e.log.Info("spawning agent", "role", req.Role, "depth", child, "timeout", timeout)

	callCtx, cancel := context.WithTimeout(WithDepth(ctx, child), timeout)
	defer cancel()

	res := e.execute(callCtx, agent.Request{
		Role:      req.Role,
		Prompt:    e.prompts.Build(req.Role, req.Task, req.ContextHint),
		Sandbox:   preset.Sandbox,
		Timeout:   timeout,
		Depth:     child,
		SessionID: cfg.SessionID,
	}, timeout)
	res.ExecutionTime = time.Since(start)

	e.log.Info("agent finished", "role", req.Role, "depth", child,
		"status", res.Status, "elapsed", res.ExecutionTime.Round(time.Millisecond))
	e.afterSpawn(cfg, req, child, res)
	return res
}

// execute calls the executor and maps every outcome to a result.
func (e *Engine) execute(ctx context.Context, req agent.Request, timeout time.Duration) (res models.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("executor panicked", "role", req.Role, "panic", r)
			res = models.FailedResult("execution error: panic: %v", r)
		}
	}()

	resp, err := e.executor.Execute(ctx, req)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.FailedResult("execution timed out (%s)", timeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.FailedResult("execution error: %v", ctxErr)
	}
	return agent.Interpret(resp, err)
}

// afterSpawn feeds the result into working context and the recorder.
func (e *Engine) afterSpawn(cfg Config, req SpawnRequest, depth int, res models.AgentResult) {
	summary := res.Summary()
	if cfg.Mode.AutoFolds() && folding.ShouldFold(res.RawOutput, cfg.AutoFoldTokens) {
		folded := e.Fold(res.RawOutput, "", "auto")
		summary = summary + "\n" + folded.Summary
	}
	e.context.AddToWorking(models.ContextEvent{
		Type:    "agent_result",
		Content: summary,
		Metadata: map[string]any{
			"role":   string(req.Role),
			"status": string(res.Status),
		},
	})

	if e.recorder == nil || cfg.SessionID == "" {
		return
	}
	agentID := res.ThreadID
	if agentID == "" {
		agentID = e.ids.Next("agent")
	}
	err := e.recorder.RecordAgent(state.AgentRun{
		SessionID: cfg.SessionID,
		AgentID:   agentID,
		Role:      string(req.Role),
		Task:      req.Task,
		Status:    string(res.Status),
		Depth:     depth,
	})
	if err != nil {
		e.log.Warn("record agent failed", "agent", agentID, "error", err)
	}
}

// Batch runs reqs in consecutive waves of at most MaxParallel concurrent
// spawns. A wave starts only after the previous one has fully finished.
// Results are in request order and one failure never affects a sibling.
func (e *Engine) Batch(ctx context.Context, reqs []SpawnRequest) []models.AgentResult {
	results := make([]models.AgentResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	size := e.Config().MaxParallel
	for wave, lo := 1, 0; lo < len(reqs); wave, lo = wave+1, lo+size {
		hi := min(lo+size, len(reqs))
		e.log.Debug("batch wave", "wave", wave, "from", lo, "to", hi)

		// Plain Group: a failed sibling must not cancel the others.
		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						results[i] = models.FailedResult("batch execution error: %v", r)
					}
				}()
				results[i] = e.SpawnAgent(ctx, reqs[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			e.log.Warn("batch wave error", "wave", wave, "error", err)
		}
	}
	return results
}

// Merge combines several results into text.
func (e *Engine) Merge(results []models.AgentResult, strategy models.MergeStrategy) string {
	return Merge(results, strategy)
}

// Merge combines several results into text. An unknown strategy or empty
// input yields "".
func Merge(results []models.AgentResult, strategy models.MergeStrategy) string {
	if len(results) == 0 {
		return ""
	}
	switch strategy {
	case models.MergeConcat:
		return mergeConcat(results)
	case models.MergeSynthesize:
		return mergeSynthesize(results)
	case models.MergeVote:
		return mergeVote(results)
	default:
		return ""
	}
}

func mergeConcat(results []models.AgentResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		body := r.RawOutput
		if body == "" {
			body = r.Summary()
		}
		parts[i] = fmt.Sprintf("## Agent %d (%s)\n\n%s", i+1, r.Status, body)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func mergeSynthesize(results []models.AgentResult) string {
	var findings, recs []string
	var issues []models.Issue
	for _, r := range results {
		findings = append(findings, r.KeyFindings...)
		recs = append(recs, r.Recommendations...)
		issues = append(issues, r.IssuesFound...)
	}
	findings = unique(findings)
	recs = unique(recs)

	var lines []string
	if len(findings) > 0 {
		lines = append(lines, "### Key findings")
		lines = append(lines, bullets(findings[:min(len(findings), 10)])...)
	}
	if len(recs) > 0 {
		lines = append(lines, "\n### Recommendations")
		lines = append(lines, bullets(recs[:min(len(recs), 10)])...)
	}
	if len(issues) > 0 {
		lines = append(lines, fmt.Sprintf("\n### Issues (%d)", len(issues)))
		for _, is := range issues[:min(len(issues), 5)] {
			lines = append(lines, fmt.Sprintf("- [%s] %s", is.SeverityOrDefault(), is.Description))
		}
	}
	return strings.Join(lines, "\n")
}

// Vote is one recommendation and how many results made it.
type Vote struct {
	Item  string
	Count int
}

// Tally counts recommendation frequency across results, highest first,
// ties in first-seen order.
func Tally(results []models.AgentResult) []Vote {
	index := make(map[string]int)
	var votes []Vote
	for _, r := range results {
		for _, rec := range r.Recommendations {
			if i, ok := index[rec]; ok {
				votes[i].Count++
				continue
			}
			index[rec] = len(votes)
			votes = append(votes, Vote{Item: rec, Count: 1})
		}
	}
	// Insertion sort keeps equal counts in first-seen order.
	for i := 1; i < len(votes); i++ {
		for j := i; j > 0 && votes[j].Count > votes[j-1].Count; j-- {
			votes[j], votes[j-1] = votes[j-1], votes[j]
		}
	}
	return votes
}

func mergeVote(results []models.AgentResult) string {
	votes := Tally(results)
	if len(votes) == 0 {
		return "no consensus recommendations"
	}
	lines := make([]string, 0, 5)
	for _, v := range votes[:min(len(votes), 5)] {
		lines = append(lines, fmt.Sprintf("- %s (%d votes)", v.Item, v.Count))
	}
	return strings.Join(lines, "\n")
}

func unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

func bullets(items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = "- " + it
	}
	return out
}
