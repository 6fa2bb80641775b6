package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/internal/graph"
	"github.com/helloagents/rlm/pkg/models"
)

// ErrUnknownMode is returned for plans whose mode is not one of the four
// patterns.
var ErrUnknownMode = errors.New("unknown orchestration mode")

// ExecutePlan dispatches plan to the pattern named by its mode and writes
// each node's status and result back onto the plan. Declared dependencies
// order execution only in sequential mode.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *models.OrchestrationPlan) (models.PlanResult, error) {
	start := time.Now()

	if !plan.Mode.Valid() {
		return models.PlanResult{}, fmt.Errorf("%w: %q", ErrUnknownMode, plan.Mode)
	}
	strategy := plan.MergeStrategy
	if strategy == "" {
		strategy = models.MergeSynthesize
	}
	assignIDs(plan)

	o.log.Info("executing plan", "mode", plan.Mode, "nodes", len(plan.Nodes))

	var results []models.AgentResult
	var merged string

	switch plan.Mode {
	case models.PlanSequential:
		order, err := sequentialOrder(plan.Nodes)
		if err != nil {
			return models.PlanResult{}, err
		}
		tasks := make([]engine.SpawnRequest, len(order))
		for i, idx := range order {
			tasks[i] = nodeRequest(plan.Nodes[idx])
		}
		results = o.ExecuteSequential(ctx, tasks, true)
		for i, idx := range order {
			if i < len(results) {
				setResult(&plan.Nodes[idx], results[i])
			} else {
				plan.Nodes[idx].Status = models.NodeSkipped
			}
		}
		merged = engine.Merge(results, strategy)

	case models.PlanParallel:
		tasks := make([]engine.SpawnRequest, len(plan.Nodes))
		for i := range plan.Nodes {
			tasks[i] = nodeRequest(plan.Nodes[i])
		}
		results = o.parallelInChunks(ctx, tasks, plan.MaxParallel)
		for i := range plan.Nodes {
			setResult(&plan.Nodes[i], results[i])
		}
		merged = engine.Merge(results, strategy)

	case models.PlanDivide:
		mainTask := plan.Metadata["main_task"]
		if mainTask == "" {
			mainTask = DefaultMainTask
		}
		final := o.ExecuteDivideConquer(ctx, DivideRequest{
			Task:              mainTask,
			Subtasks:          plan.Nodes,
			SynthesizerPrompt: plan.Metadata["synthesizer_prompt"],
		})
		for i := range plan.Nodes {
			plan.Nodes[i].Status = nodeStatus(final)
		}
		results = []models.AgentResult{final}
		merged = final.Summary()

	case models.PlanExpert:
		perspectives := make([]string, len(plan.Nodes))
		for i, n := range plan.Nodes {
			perspectives[i] = n.Task
		}
		experts, final := o.ExecuteExpertConsultation(ctx, plan.Metadata["question"], perspectives, plan.Metadata["decision_prompt"])
		for i := range plan.Nodes {
			setResult(&plan.Nodes[i], experts[i])
		}
		results = append(experts, final)
		merged = final.Summary()
	}

	return models.PlanResult{
		Mode:          plan.Mode,
		Results:       results,
		Merged:        merged,
		ExecutionTime: time.Since(start).Seconds(),
		NodeCount:     len(plan.Nodes),
	}, nil
}

// parallelInChunks honors a plan-level parallelism cap below the engine's
// by batching chunk by chunk; each chunk finishes before the next starts.
func (o *Orchestrator) parallelInChunks(ctx context.Context, tasks []engine.SpawnRequest, size int) []models.AgentResult {
	if size <= 0 || size >= len(tasks) {
		results, _ := o.ExecuteParallel(ctx, tasks, models.MergeConcat)
		return results
	}
	results := make([]models.AgentResult, 0, len(tasks))
	for lo := 0; lo < len(tasks); lo += size {
		chunk, _ := o.ExecuteParallel(ctx, tasks[lo:min(lo+size, len(tasks))], models.MergeConcat)
		results = append(results, chunk...)
	}
	return results
}

// sequentialOrder returns node indexes in dependency order.
func sequentialOrder(nodes []models.TaskNode) ([]int, error) {
	ptrs := make([]*models.TaskNode, len(nodes))
	index := make(map[string]int, len(nodes))
	for i := range nodes {
		ptrs[i] = &nodes[i]
		index[nodes[i].ID] = i
	}

	g := graph.New()
	if err := g.Build(ptrs); err != nil {
		return nil, fmt.Errorf("order sequential plan: %w", err)
	}
	ids, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("order sequential plan: %w", err)
	}
	order := make([]int, len(ids))
	for i, id := range ids {
		order[i] = index[id]
	}
	return order, nil
}

func assignIDs(plan *models.OrchestrationPlan) {
	for i := range plan.Nodes {
		if plan.Nodes[i].ID == "" {
			plan.Nodes[i].ID = fmt.Sprintf("node_%d", i+1)
		}
		if plan.Nodes[i].Status == "" {
			plan.Nodes[i].Status = models.NodePending
		}
	}
}

func nodeRequest(n models.TaskNode) engine.SpawnRequest {
	role := n.Role
	if role == "" {
		role = models.RoleExplorer
	}
	return engine.SpawnRequest{Role: role, Task: n.Task, ContextHint: n.ContextHint, Timeout: n.Timeout}
}

func setResult(n *models.TaskNode, res models.AgentResult) {
	n.Status = nodeStatus(res)
	n.Result = &res
}

func nodeStatus(res models.AgentResult) models.NodeStatus {
	if res.Failed() {
		return models.NodeFailed
	}
	return models.NodeCompleted
}

// NewSequentialPlan chains tasks, each depending on the one before.
func NewSequentialPlan(tasks []engine.SpawnRequest) *models.OrchestrationPlan {
	nodes := make([]models.TaskNode, len(tasks))
	for i, t := range tasks {
		nodes[i] = fromRequest(fmt.Sprintf("seq_%d", i), t)
		if i > 0 {
			nodes[i].DependsOn = []string{fmt.Sprintf("seq_%d", i-1)}
		}
	}
	return &models.OrchestrationPlan{Mode: models.PlanSequential, Nodes: nodes, MergeStrategy: models.MergeSynthesize}
}

// NewParallelPlan fans tasks out and merges with strategy.
func NewParallelPlan(tasks []engine.SpawnRequest, strategy models.MergeStrategy) *models.OrchestrationPlan {
	if strategy == "" {
		strategy = models.MergeSynthesize
	}
	nodes := make([]models.TaskNode, len(tasks))
	for i, t := range tasks {
		nodes[i] = fromRequest(fmt.Sprintf("par_%d", i), t)
	}
	return &models.OrchestrationPlan{Mode: models.PlanParallel, Nodes: nodes, MergeStrategy: strategy}
}

// NewExpertPlan consults one analyzer per perspective on question.
func NewExpertPlan(question string, perspectives []string) *models.OrchestrationPlan {
	nodes := make([]models.TaskNode, len(perspectives))
	for i, p := range perspectives {
		nodes[i] = models.TaskNode{ID: fmt.Sprintf("expert_%d", i), Role: models.RoleAnalyzer, Task: p, Status: models.NodePending}
	}
	return &models.OrchestrationPlan{
		Mode:          models.PlanExpert,
		Nodes:         nodes,
		MergeStrategy: models.MergeSynthesize,
		Metadata:      map[string]string{"question": question},
	}
}

// NewDividePlan splits mainTask into subtasks, which may nest.
func NewDividePlan(mainTask string, subtasks []models.TaskNode) *models.OrchestrationPlan {
	nodes := append([]models.TaskNode(nil), subtasks...)
	for i := range nodes {
		if nodes[i].ID == "" {
			nodes[i].ID = fmt.Sprintf("div_%d", i)
		}
		nodes[i].Status = models.NodePending
	}
	return &models.OrchestrationPlan{
		Mode:          models.PlanDivide,
		Nodes:         nodes,
		MergeStrategy: models.MergeSynthesize,
		Metadata:      map[string]string{"main_task": mainTask},
	}
}

func fromRequest(id string, t engine.SpawnRequest) models.TaskNode {
	role := t.Role
	if role == "" {
		role = models.RoleExplorer
	}
	return models.TaskNode{
		ID:          id,
		Role:        role,
		Task:        t.Task,
		ContextHint: t.ContextHint,
		Timeout:     t.Timeout,
		Status:      models.NodePending,
	}
}
