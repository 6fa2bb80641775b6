package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helloagents/rlm/internal/sharedtasks"
	"github.com/helloagents/rlm/internal/state"
	"github.com/helloagents/rlm/internal/tui"
	"github.com/helloagents/rlm/pkg/models"
)

func (a *app) tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Work with the shared task list",
		Long: `Coordinate work with other processes through a shared task list.

The list is chosen by the environment variable named in tasks.list_env
(hellotasks by default). Without it every command runs isolated.`,
	}
	cmd.AddCommand(
		a.tasksStatusCmd(),
		a.tasksListCmd(),
		a.tasksAvailableCmd(),
		a.tasksAddCmd(),
		a.tasksClaimCmd(),
		a.tasksCompleteCmd(),
		a.tasksUpdateCmd(),
		a.tasksWatchCmd(),
	)
	return cmd
}

// withTasks opens the coordinator and refuses to run when it is disabled.
func (a *app) withTasks(ctx context.Context, fn func(*sharedtasks.Coordinator) error) error {
	c, err := a.newCoordinator(ctx)
	if err != nil {
		return err
	}
	if !c.Enabled() {
		return fmt.Errorf("%w: set %s to a list id", sharedtasks.ErrDisabled, a.cfg.Tasks.ListEnv)
	}
	return fn(c)
}

// owner resolves the claiming identity: flag, then session env.
func owner(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(state.EnvSessionID); env != "" {
		return env, nil
	}
	return "", errors.New("owner required: pass --owner or set " + state.EnvSessionID)
}

func (a *app) tasksStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the shared task list",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newCoordinator(cmd.Context())
			if err != nil {
				return err
			}
			st := c.Status(cmd.Context())
			if a.jsonOut {
				return a.printJSON(st)
			}
			if !c.Enabled() {
				a.printStatus("ℹ", st.Message, color.FgCyan)
				return nil
			}
			a.printf("%s %s (%s)\n", heading("Task list"), st.ListID, st.TasksFile)
			a.printf("  %d total, %d pending, %d in progress, %d completed, %d blocked\n",
				st.Total, st.Pending, st.InProgress, st.Completed, st.Blocked)
			if st.LastUpdated != "" {
				a.printf("  last updated %s\n", st.LastUpdated)
			}
			if st.Error != "" {
				a.printStatus("⚠", st.Error, color.FgYellow)
			}
			return nil
		},
	}
}

func (a *app) tasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(c *sharedtasks.Coordinator) error {
				return a.printTasks(c.Tasks(cmd.Context()))
			})
		},
	}
}

func (a *app) tasksAvailableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "List tasks that can be claimed now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(c *sharedtasks.Coordinator) error {
				return a.printTasks(c.AvailableTasks(cmd.Context()))
			})
		},
	}
}

func (a *app) printTasks(tasks []models.SharedTask) error {
	if a.jsonOut {
		if tasks == nil {
			tasks = []models.SharedTask{}
		}
		return a.printJSON(tasks)
	}
	if len(tasks) == 0 {
		a.printf("no tasks\n")
		return nil
	}
	for _, t := range tasks {
		sym, attr := taskSymbol(t)
		line := fmt.Sprintf("#%s %s", t.ID, t.Subject)
		if o := t.OwnerName(); o != "" {
			line += color.HiBlackString(" @" + o)
		}
		if len(t.BlockedBy) > 0 {
			line += color.YellowString(fmt.Sprintf(" blocked by %v", t.BlockedBy))
		}
		a.printStatus(sym, line, attr)
	}
	return nil
}

func taskSymbol(t models.SharedTask) (string, color.Attribute) {
	switch {
	case t.Status == models.TaskStatusCompleted:
		return "✓", color.FgGreen
	case len(t.BlockedBy) > 0:
		return "⊘", color.FgYellow
	case t.Status == models.TaskStatusInProgress:
		return "●", color.FgBlue
	default:
		return "○", color.FgWhite
	}
}

func (a *app) tasksAddCmd() *cobra.Command {
	var description string
	var blocks, blockedBy []string

	cmd := &cobra.Command{
		Use:   "add <subject>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(c *sharedtasks.Coordinator) error {
				id, ok := c.AddTask(cmd.Context(), args[0], description, blocks, blockedBy)
				if !ok {
					return errors.New("task not added")
				}
				if a.jsonOut {
					return a.printJSON(map[string]string{"id": id})
				}
				a.printStatus("✓", fmt.Sprintf("added task #%s", id), color.FgGreen)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringSliceVar(&blocks, "blocks", nil, "ids of tasks this one blocks")
	cmd.Flags().StringSliceVar(&blockedBy, "blocked-by", nil, "ids of tasks this one waits for")
	return cmd
}

func (a *app) tasksClaimCmd() *cobra.Command {
	var ownerFlag string

	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim an available task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := owner(ownerFlag)
			if err != nil {
				return err
			}
			return a.withTasks(cmd.Context(), func(c *sharedtasks.Coordinator) error {
				return a.reportMutation(c.ClaimTask(cmd.Context(), args[0], who), "claimed #"+args[0],
					"task #"+args[0]+" is not claimable")
			})
		},
	}
	cmd.Flags().StringVar(&ownerFlag, "owner", "", "claiming identity (default $"+state.EnvSessionID+")")
	return cmd
}

func (a *app) tasksCompleteCmd() *cobra.Command {
	var ownerFlag string

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := owner(ownerFlag)
			if err != nil {
				return err
			}
			return a.withTasks(cmd.Context(), func(c *sharedtasks.Coordinator) error {
				return a.reportMutation(c.CompleteTask(cmd.Context(), args[0], who), "completed #"+args[0],
					"task #"+args[0]+" is not owned by "+who)
			})
		},
	}
	cmd.Flags().StringVar(&ownerFlag, "owner", "", "owning identity (default $"+state.EnvSessionID+")")
	return cmd
}

func (a *app) tasksUpdateCmd() *cobra.Command {
	var status, ownerFlag string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Set a task's status or owner directly",
		Long:  `Administrative override: sets status and owner without ownership checks.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st models.TaskStatus
			if status != "" {
				st = models.TaskStatus(status)
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			var who *string
			if cmd.Flags().Changed("owner") {
				who = &ownerFlag
			}
			return a.withTasks(cmd.Context(), func(c *sharedtasks.Coordinator) error {
				return a.reportMutation(c.UpdateTask(cmd.Context(), args[0], st, who), "updated #"+args[0],
					"task #"+args[0]+" not found")
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending|in_progress|completed")
	cmd.Flags().StringVar(&ownerFlag, "owner", "", "new owner")
	return cmd
}

func (a *app) reportMutation(ok bool, done, refused string) error {
	if a.jsonOut {
		if err := a.printJSON(map[string]bool{"ok": ok}); err != nil {
			return err
		}
	} else if ok {
		a.printStatus("✓", done, color.FgGreen)
	}
	if !ok {
		return errors.New(refused)
	}
	return nil
}

func (a *app) tasksWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live board of the task list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(c *sharedtasks.Coordinator) error {
				return tui.Run(cmd.Context(), c)
			})
		},
	}
}
