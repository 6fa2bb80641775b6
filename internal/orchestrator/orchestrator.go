// Package orchestrator composes engine spawns into reusable patterns:
// sequential chains, parallel fan-out, divide and conquer, and expert
// consultation, plus a declarative plan executor on top of them.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/pkg/models"
)

// PreviousOutput is replaced with the previous result's summary in
// sequential chains.
const PreviousOutput = "{{previous_output}}"

// Defaults used when a request leaves them empty.
const (
	DefaultDivideDepth       = 3
	DefaultSynthesizerPrompt = "Synthesize the following subtask results"
	DefaultDecisionPrompt    = "Make a final decision based on the expert opinions above"
	DefaultMainTask          = "Execute the task"
)

// Spawner is the part of the engine the patterns are built on.
type Spawner interface {
	SpawnAgent(ctx context.Context, req engine.SpawnRequest) models.AgentResult
	Batch(ctx context.Context, reqs []engine.SpawnRequest) []models.AgentResult
}

var _ Spawner = (*engine.Engine)(nil)

// LogEntry records one pattern step.
type LogEntry struct {
	Mode      models.PlanMode     `json:"mode"`
	Index     int                 `json:"index"`
	Role      models.Role         `json:"role"`
	Task      string              `json:"task"`
	Status    models.ResultStatus `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock overrides the timestamp source of the execution log.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs composed agent work. It is safe for concurrent use.
type Orchestrator struct {
	spawner Spawner
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries []LogEntry
}

// New creates an Orchestrator on top of spawner.
func New(spawner Spawner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		spawner: spawner,
		log:     slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteSequential runs tasks in order and stops after the first failed
// result, returning everything gathered so far. With passOutput each task
// receives the previous result's summary, either in place of
// {{previous_output}} or appended.
func (o *Orchestrator) ExecuteSequential(ctx context.Context, tasks []engine.SpawnRequest, passOutput bool) []models.AgentResult {
	results := make([]models.AgentResult, 0, len(tasks))
	previous := ""

	for i, req := range tasks {
		if passOutput && previous != "" {
			if strings.Contains(req.Task, PreviousOutput) {
				req.Task = strings.ReplaceAll(req.Task, PreviousOutput, previous)
			} else {
				req.Task += "\n\nPrevious task output:\n" + previous
			}
		}

		res := o.spawner.SpawnAgent(ctx, req)
		results = append(results, res)
		o.record(models.PlanSequential, i, req, res)

		if res.Failed() {
			o.log.Info("sequential chain stopped", "step", i, "of", len(tasks))
			break
		}
		previous = res.Summary()
	}
	return results
}

// ExecuteParallel batches all tasks and merges the results.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, tasks []engine.SpawnRequest, strategy models.MergeStrategy) ([]models.AgentResult, string) {
	results := o.spawner.Batch(ctx, tasks)
	for i := range tasks {
		o.record(models.PlanParallel, i, tasks[i], results[i])
	}
	return results, engine.Merge(results, strategy)
}

// DivideRequest describes a divide-and-conquer run.
type DivideRequest struct {
	// Task is the overall task; it runs as one flat call at MaxDepth.
	Task string
	// Subtasks may nest further subtasks.
	Subtasks []models.TaskNode
	// SynthesizerPrompt leads the reduce call at every level.
	SynthesizerPrompt string
	// MaxDepth bounds the expansion of nested subtasks.
	MaxDepth int
}

// ExecuteDivideConquer expands nested subtasks up to MaxDepth, runs the
// leaves of each level as one batch, and reduces every level's results
// with a synthesizer call.
func (o *Orchestrator) ExecuteDivideConquer(ctx context.Context, req DivideRequest) models.AgentResult {
	if req.SynthesizerPrompt == "" {
		req.SynthesizerPrompt = DefaultSynthesizerPrompt
	}
	if req.MaxDepth <= 0 {
		req.MaxDepth = DefaultDivideDepth
	}
	return o.divide(ctx, req.Task, req.Subtasks, req, 0)
}

func (o *Orchestrator) divide(ctx context.Context, task string, subtasks []models.TaskNode, req DivideRequest, level int) models.AgentResult {
	if level >= req.MaxDepth {
		leaf := engine.SpawnRequest{Role: models.RoleImplementer, Task: task}
		res := o.spawner.SpawnAgent(ctx, leaf)
		o.record(models.PlanDivide, level, leaf, res)
		return res
	}

	results := make([]models.AgentResult, len(subtasks))

	var leaves []engine.SpawnRequest
	var leafIdx []int
	for i, st := range subtasks {
		if len(st.Subtasks) == 0 {
			leaves = append(leaves, leafRequest(st))
			leafIdx = append(leafIdx, i)
		}
	}
	for j, res := range o.spawner.Batch(ctx, leaves) {
		results[leafIdx[j]] = res
		o.record(models.PlanDivide, leafIdx[j], leaves[j], res)
	}

	for i, st := range subtasks {
		if len(st.Subtasks) > 0 {
			results[i] = o.divide(ctx, st.Task, st.Subtasks, req, level+1)
		}
	}

	merged := engine.Merge(results, models.MergeSynthesize)
	synth := engine.SpawnRequest{
		Role: models.RoleSynthesizer,
		Task: req.SynthesizerPrompt + "\n\nSubtask results:\n" + merged,
	}
	res := o.spawner.SpawnAgent(ctx, synth)
	o.record(models.PlanDivide, len(subtasks), synth, res)
	return res
}

func leafRequest(n models.TaskNode) engine.SpawnRequest {
	role := n.Role
	if role == "" {
		role = models.RoleImplementer
	}
	return engine.SpawnRequest{Role: role, Task: n.Task, ContextHint: n.ContextHint, Timeout: n.Timeout}
}

// ExecuteExpertConsultation asks one analyzer per perspective in
// parallel, synthesizes their opinions and makes one decision call that
// quotes both the synthesis and the question.
func (o *Orchestrator) ExecuteExpertConsultation(ctx context.Context, question string, perspectives []string, decisionPrompt string) ([]models.AgentResult, models.AgentResult) {
	if decisionPrompt == "" {
		decisionPrompt = DefaultDecisionPrompt
	}

	tasks := make([]engine.SpawnRequest, len(perspectives))
	for i, p := range perspectives {
		tasks[i] = engine.SpawnRequest{
			Role: models.RoleAnalyzer,
			Task: "Analyze from the " + p + " perspective: " + question,
		}
	}
	experts, merged := o.ExecuteParallel(ctx, tasks, models.MergeSynthesize)

	decision := engine.SpawnRequest{
		Role: models.RoleSynthesizer,
		Task: decisionPrompt + "\n\nPerspective analyses:\n" + merged + "\n\nOriginal question: " + question,
	}
	final := o.spawner.SpawnAgent(ctx, decision)
	o.record(models.PlanExpert, len(perspectives), decision, final)
	return experts, final
}

func (o *Orchestrator) record(mode models.PlanMode, index int, req engine.SpawnRequest, res models.AgentResult) {
	task := req.Task
	if r := []rune(task); len(r) > 100 {
		task = string(r[:100])
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	role := req.Role
	if role == "" {
		role = engine.DefaultRole
	}
	o.entries = append(o.entries, LogEntry{
		Mode:      mode,
		Index:     index,
		Role:      role,
		Task:      task,
		Status:    res.Status,
		Timestamp: o.now(),
	})
}

// ExecutionLog returns a copy of every recorded step.
func (o *Orchestrator) ExecutionLog() []LogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]LogEntry(nil), o.entries...)
}

// ClearExecutionLog drops the recorded steps.
func (o *Orchestrator) ClearExecutionLog() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = nil
}
