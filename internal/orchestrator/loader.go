package orchestrator

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/helloagents/rlm/pkg/models"
)

// planFile is the on-disk plan shape. JSON files parse as YAML too.
type planFile struct {
	Mode          string            `yaml:"mode"`
	MergeStrategy string            `yaml:"merge_strategy"`
	MaxParallel   int               `yaml:"max_parallel"`
	Metadata      map[string]string `yaml:"metadata"`
	Nodes         []nodeFile        `yaml:"nodes"`
}

type nodeFile struct {
	ID          string     `yaml:"id"`
	Role        string     `yaml:"role"`
	Task        string     `yaml:"task"`
	ContextHint []string   `yaml:"context_hint"`
	DependsOn   []string   `yaml:"depends_on"`
	Timeout     string     `yaml:"timeout"`
	Subtasks    []nodeFile `yaml:"subtasks"`
}

// LoadPlan reads a YAML or JSON plan file.
func LoadPlan(path string) (*models.OrchestrationPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes and validates a plan document. Node timeouts are
// either Go durations ("90s") or bare seconds.
func ParsePlan(data []byte) (*models.OrchestrationPlan, error) {
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	plan := &models.OrchestrationPlan{
		Mode:          models.PlanMode(f.Mode),
		MergeStrategy: models.MergeStrategy(f.MergeStrategy),
		MaxParallel:   f.MaxParallel,
		Metadata:      f.Metadata,
	}
	if !plan.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, f.Mode)
	}
	if plan.MergeStrategy != "" && !plan.MergeStrategy.Valid() {
		return nil, fmt.Errorf("unknown merge strategy %q", f.MergeStrategy)
	}

	nodes, err := convertNodes(f.Nodes, "nodes")
	if err != nil {
		return nil, err
	}
	plan.Nodes = nodes
	return plan, nil
}

func convertNodes(in []nodeFile, where string) ([]models.TaskNode, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]models.TaskNode, len(in))
	for i, n := range in {
		at := fmt.Sprintf("%s[%d]", where, i)

		role := models.Role(n.Role)
		if n.Role != "" && !role.Valid() {
			return nil, fmt.Errorf("%s: unknown role %q", at, n.Role)
		}
		timeout, err := parseTimeout(n.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", at, err)
		}
		subtasks, err := convertNodes(n.Subtasks, at+".subtasks")
		if err != nil {
			return nil, err
		}
		out[i] = models.TaskNode{
			ID:          n.ID,
			Role:        role,
			Task:        n.Task,
			ContextHint: n.ContextHint,
			DependsOn:   n.DependsOn,
			Timeout:     timeout,
			Subtasks:    subtasks,
			Status:      models.NodePending,
		}
	}
	return out, nil
}

func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	return d, nil
}

// ExamplePlan is a commented plan file showing every field.
const ExamplePlan = `# rlm orchestration plan
# mode: sequential | parallel | divide | expert
mode: sequential
merge_strategy: synthesize   # concat | synthesize | vote
max_parallel: 4
metadata:
  main_task: ""              # divide mode
  question: ""               # expert mode
nodes:
  - id: explore
    role: explorer
    task: Map the packages involved in request handling
    context_hint: [internal/]
  - id: analyze
    role: analyzer
    task: "Find the bottleneck using these notes: {{previous_output}}"
    depends_on: [explore]
    timeout: 180s
  - id: fix
    role: implementer
    task: Apply the smallest fix for the bottleneck
    depends_on: [analyze]
`
