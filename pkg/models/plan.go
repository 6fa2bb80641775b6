package models

import "time"

// PlanMode selects which orchestration pattern runs a plan.
type PlanMode string

const (
	PlanSequential PlanMode = "sequential"
	PlanParallel   PlanMode = "parallel"
	PlanDivide     PlanMode = "divide"
	PlanExpert     PlanMode = "expert"
)

// Valid returns true if the mode is a known value.
func (m PlanMode) Valid() bool {
	switch m {
	case PlanSequential, PlanParallel, PlanDivide, PlanExpert:
		return true
	default:
		return false
	}
}

// MergeStrategy selects how several agent results are combined into text.
type MergeStrategy string

const (
	MergeConcat     MergeStrategy = "concat"
	MergeSynthesize MergeStrategy = "synthesize"
	MergeVote       MergeStrategy = "vote"
)

// Valid returns true if the strategy is a known value.
func (s MergeStrategy) Valid() bool {
	switch s {
	case MergeConcat, MergeSynthesize, MergeVote:
		return true
	default:
		return false
	}
}

// NodeStatus tracks a plan node through execution.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	// NodeSkipped marks nodes a sequential plan never reached.
	NodeSkipped NodeStatus = "skipped"
)

// TaskNode is one step of an orchestration plan.
type TaskNode struct {
	ID          string        `json:"id" yaml:"id"`
	Role        Role          `json:"role" yaml:"role"`
	Task        string        `json:"task" yaml:"task"`
	ContextHint []string      `json:"context_hint,omitempty" yaml:"context_hint,omitempty"`
	DependsOn   []string      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Subtasks nests further work under this node for divide-and-conquer plans.
	Subtasks []TaskNode   `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`
	Status   NodeStatus   `json:"status,omitempty" yaml:"status,omitempty"`
	Result   *AgentResult `json:"result,omitempty" yaml:"-"`
}

// OrchestrationPlan is a declarative description of composed agent work.
type OrchestrationPlan struct {
	Mode          PlanMode          `json:"mode" yaml:"mode"`
	Nodes         []TaskNode        `json:"nodes" yaml:"nodes"`
	MergeStrategy MergeStrategy     `json:"merge_strategy,omitempty" yaml:"merge_strategy,omitempty"`
	MaxParallel   int               `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// PlanResult is the uniform envelope returned for every executed plan.
type PlanResult struct {
	Mode          PlanMode      `json:"mode"`
	Results       []AgentResult `json:"results"`
	Merged        string        `json:"merged"`
	ExecutionTime float64       `json:"execution_time"`
	NodeCount     int           `json:"node_count"`
}
