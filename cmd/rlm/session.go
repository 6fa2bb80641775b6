package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helloagents/rlm/internal/state"
)

func (a *app) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect recorded sessions",
	}
	cmd.AddCommand(
		a.sessionListCmd(),
		a.sessionInfoCmd(),
		a.sessionEventsCmd(),
		a.sessionHistoryCmd(),
		a.sessionCleanupCmd(),
	)
	return cmd
}

// sessionArg picks the session from the argument, the --session flag or
// the environment, in that order.
func (a *app) sessionArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if a.sessionID != "" {
		return a.sessionID, nil
	}
	if env := os.Getenv(state.EnvSessionID); env != "" {
		return env, nil
	}
	return "", errors.New("session id required: pass it, use --session or set " + state.EnvSessionID)
}

func (a *app) sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := db.ListSessions()
			if err != nil {
				return err
			}
			if a.jsonOut {
				if sessions == nil {
					sessions = []state.Session{}
				}
				return a.printJSON(sessions)
			}
			if len(sessions) == 0 {
				a.printf("no sessions\n")
				return nil
			}
			for _, s := range sessions {
				a.printf("%s  %s  last active %s ago\n", s.ID,
					color.HiBlackString(s.CreatedAt.Local().Format(time.DateTime)),
					formatDuration(time.Since(s.LastActive).Round(time.Second)))
			}
			return nil
		},
	}
}

func (a *app) sessionInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [id]",
		Short: "Show one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.sessionArg(args)
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			info, err := db.Info(id)
			if err != nil {
				return err
			}
			if info == nil {
				return fmt.Errorf("session %s not found", id)
			}
			if a.jsonOut {
				return a.printJSON(info)
			}
			a.printf("%s %s\n", heading("Session"), info.ID)
			a.printf("  created:     %s\n", info.CreatedAt.Local().Format(time.DateTime))
			a.printf("  last active: %s\n", info.LastActive.Local().Format(time.DateTime))
			a.printf("  events:      %d\n", info.TotalEvents)
			a.printf("  agents:      %d\n", info.AgentCount)
			a.printf("  database:    %s\n", info.DBPath)

			summary, err := db.RecentEventsSummary(id, 5)
			if err != nil {
				return err
			}
			a.printf("%s\n%s\n", heading("Recent"), summary)
			return nil
		},
	}
}

func (a *app) sessionEventsCmd() *cobra.Command {
	var eventType string
	var limit int

	cmd := &cobra.Command{
		Use:   "events [id]",
		Short: "Show a session's event log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.sessionArg(args)
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			events, err := db.Events(id, eventType, limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				if events == nil {
					events = []state.Event{}
				}
				return a.printJSON(events)
			}
			for _, e := range events {
				a.printf("%s  %-12s %v\n", color.HiBlackString(e.Timestamp.Local().Format(time.TimeOnly)), e.Type, e.Data)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type (spawn_agent, fold, tool_call)")
	cmd.Flags().IntVar(&limit, "limit", 50, "most recent events to show")
	return cmd
}

func (a *app) sessionHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show the agents a session spawned",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.sessionArg(args)
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.AgentHistory(id, limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				if runs == nil {
					runs = []state.AgentRun{}
				}
				return a.printJSON(runs)
			}
			for _, r := range runs {
				a.printf("%s  %-12s %-11s d%d  %s\n", color.HiBlackString(r.Timestamp.Local().Format(time.TimeOnly)),
					r.Status, r.Role, r.Depth, r.Task)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "most recent agents to show")
	return cmd
}

func (a *app) sessionCleanupCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions inactive for longer than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.PurgeOldSessions(olderThan)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(map[string]int64{"deleted": n})
			}
			a.printStatus("✓", fmt.Sprintf("deleted %d sessions", n), color.FgGreen)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "inactivity threshold")
	return cmd
}
