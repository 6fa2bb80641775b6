package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/pkg/models"
)

func (a *app) spawnCmd() *cobra.Command {
	var hints []string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "spawn <role> <task...>",
		Short: "Run one sub-agent",
		Long: `Spawn one role-specialised sub-agent and print its structured result.

Roles: explorer, analyzer, implementer, reviewer, tester, synthesizer.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, release, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			res := e.SpawnAgent(cmd.Context(), engine.SpawnRequest{
				Role:        models.Role(args[0]),
				Task:        strings.Join(args[1:], " "),
				ContextHint: hints,
				Timeout:     timeout,
			})
			return a.finishResult(res)
		},
	}
	cmd.Flags().StringSliceVarP(&hints, "context", "c", nil, "files or directories relevant to the task")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-agent timeout (default from config)")
	return cmd
}

// finishResult prints res and turns a failed result into a non-zero exit.
func (a *app) finishResult(res models.AgentResult) error {
	if a.jsonOut {
		if err := a.printJSON(res); err != nil {
			return err
		}
	} else {
		a.printResult("agent", res)
	}
	if res.Failed() {
		return fmt.Errorf("agent failed")
	}
	return nil
}

func (a *app) batchCmd() *cobra.Command {
	var specs []string
	var file, merge string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run sub-agents in parallel waves",
		Long: `Run several sub-agents in waves of at most engine.max_parallel and merge
their results.

Tasks come from repeated --task role:text flags or from a YAML/JSON file
holding a list of {role, task, context_hint, timeout} objects.`,
		Example: `  rlm batch -t "reviewer:check auth" -t "tester:cover login" --merge vote
  rlm batch -f tasks.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := batchRequests(specs, file)
			if err != nil {
				return err
			}
			strategy := models.MergeStrategy(merge)
			if !strategy.Valid() {
				return fmt.Errorf("unknown merge strategy %q", merge)
			}

			e, release, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			results := e.Batch(cmd.Context(), reqs)
			merged := e.Merge(results, strategy)

			if a.jsonOut {
				return a.printJSON(map[string]any{"results": results, "merged": merged})
			}
			for i, r := range results {
				a.printResult(fmt.Sprintf("agent %d/%d %s", i+1, len(results), reqs[i].Role), r)
			}
			a.printf("\n%s\n%s\n", heading("Merged ("+merge+")"), merged)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&specs, "task", "t", nil, "task as role:text (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file with a list of tasks")
	cmd.Flags().StringVar(&merge, "merge", string(models.MergeSynthesize), "merge strategy: concat|synthesize|vote")
	return cmd
}

// batchRequests collects tasks from flags and an optional file.
func batchRequests(specs []string, file string) ([]engine.SpawnRequest, error) {
	var reqs []engine.SpawnRequest
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read tasks: %w", err)
		}
		if err := yaml.Unmarshal(data, &reqs); err != nil {
			return nil, fmt.Errorf("parse tasks %s: %w", file, err)
		}
	}
	for _, s := range specs {
		reqs = append(reqs, parseTaskSpec(s))
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no tasks given; use --task or --file")
	}
	return reqs, nil
}

// parseTaskSpec splits "role:text". Text without a known role prefix
// goes to an explorer.
func parseTaskSpec(s string) engine.SpawnRequest {
	if role, task, ok := strings.Cut(s, ":"); ok && models.Role(strings.TrimSpace(role)).Valid() {
		return engine.SpawnRequest{Role: models.Role(strings.TrimSpace(role)), Task: strings.TrimSpace(task)}
	}
	return engine.SpawnRequest{Role: models.RoleExplorer, Task: s}
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <target>",
		Short: "Spawn one analyzer on a path or topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, release, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return a.finishResult(e.QuickAnalyze(cmd.Context(), args[0]))
		},
	}
}

func (a *app) implementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "implement <description...>",
		Short: "Spawn one implementer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, release, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return a.finishResult(e.QuickImplement(cmd.Context(), strings.Join(args, " ")))
		},
	}
}
