package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helloagents/rlm/internal/orchestrator"
	"github.com/helloagents/rlm/pkg/models"
)

func (a *app) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Run declarative orchestration plans",
	}
	cmd.AddCommand(a.planRunCmd(), a.planExampleCmd())
	return cmd
}

func (a *app) planRunCmd() *cobra.Command {
	var merge string

	cmd := &cobra.Command{
		Use:   "run <plan.yaml|plan.json>",
		Short: "Execute a plan file",
		Long: `Execute a plan in one of four modes:

  sequential  nodes run in dependency order; each sees the previous output
  parallel    nodes run in waves and their results are merged
  divide      nested subtasks run level by level, then get synthesized
  expert      each node is a perspective on metadata.question`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := orchestrator.LoadPlan(args[0])
			if err != nil {
				return err
			}
			if merge != "" {
				plan.MergeStrategy = models.MergeStrategy(merge)
				if !plan.MergeStrategy.Valid() {
					return fmt.Errorf("unknown merge strategy %q", merge)
				}
			}

			e, release, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			o := orchestrator.New(e, orchestrator.WithLogger(a.log.Logger))
			res, err := o.ExecutePlan(cmd.Context(), plan)
			if err != nil {
				return err
			}

			if a.jsonOut {
				return a.printJSON(map[string]any{"result": res, "nodes": plan.Nodes, "log": o.ExecutionLog()})
			}
			a.printPlan(plan, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&merge, "merge", "", "override the plan's merge strategy")
	return cmd
}

func (a *app) printPlan(plan *models.OrchestrationPlan, res models.PlanResult) {
	a.printf("%s %s plan, %d nodes, %.1fs\n\n", heading("Plan"), res.Mode, res.NodeCount, res.ExecutionTime)
	for _, n := range plan.Nodes {
		sym, attr := nodeSymbol(n.Status)
		line := fmt.Sprintf("%-12s %-11s %s", n.ID, n.Role, n.Status)
		if n.Result != nil {
			line += "  " + n.Result.Summary()
		}
		a.printStatus(sym, line, attr)
	}
	if res.Merged != "" {
		a.printf("\n%s\n%s\n", heading("Result"), indent(res.Merged, "  "))
	}
}

func (a *app) planExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print a commented plan file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printf("%s", orchestrator.ExamplePlan)
			return nil
		},
	}
}
