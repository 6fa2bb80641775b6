package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helloagents/rlm/internal/config"
	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/internal/sharedtasks"
	"github.com/helloagents/rlm/internal/state"
)

// statusReport is the JSON shape of rlm status.
type statusReport struct {
	Engine       engine.Diagnostics `json:"engine"`
	BackendError string             `json:"backend_error,omitempty"`
	KeySource    string             `json:"anthropic_key_source"`
	Tasks        sharedtasks.Status `json:"tasks"`
	Session      *state.SessionInfo `json:"session,omitempty"`
	ConfigFiles  map[string]string  `json:"config_files"`
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine, task list and session state",
		Long: `Display what rlm would run with right now.

Shows:
  - Mode, backend and spawn budgets
  - Where Anthropic credentials come from
  - Shared task list counters
  - The current session's recorded activity`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			report := statusReport{
				KeySource: string(config.GetAPIKeySource(a.cfg)),
				ConfigFiles: map[string]string{
					"user":    config.GetUserConfigPath(),
					"project": config.GetProjectConfigPath(),
				},
			}

			e, release, err := a.newEngine(ctx)
			if err != nil {
				report.BackendError = err.Error()
				eCfg := a.cfg.EngineConfig()
				eCfg.SessionID = a.session()
				e, release = engine.New(nil, eCfg), func() {}
			}
			report.Engine = e.Status()
			release()

			c, err := a.newCoordinator(ctx)
			if err != nil {
				return err
			}
			report.Tasks = c.Status(ctx)

			if db, err := a.openStore(); err == nil {
				report.Session, _ = db.Info(report.Engine.SessionID)
				db.Close()
			}

			if a.jsonOut {
				return a.printJSON(report)
			}
			a.printStatusReport(report)
			return nil
		},
	}
}

func (a *app) printStatusReport(r statusReport) {
	d := r.Engine
	a.printf("%s\n", heading("Engine"))
	a.printf("  mode:     %s\n", d.Mode)
	if r.BackendError != "" {
		a.printStatus("  ✗", "backend: "+r.BackendError, color.FgRed)
	} else {
		a.printf("  backend:  %s\n", d.Backend)
	}
	a.printf("  depth:    %d/%d\n", d.CurrentDepth, d.MaxDepth)
	a.printf("  parallel: %d\n", d.MaxParallel)
	a.printf("  api key:  %s\n", r.KeySource)

	a.printf("%s\n", heading("Tasks"))
	if r.Tasks.Mode == "collaborative" {
		a.printf("  %s: %d total, %d pending, %d in progress, %d completed, %d blocked\n",
			r.Tasks.ListID, r.Tasks.Total, r.Tasks.Pending, r.Tasks.InProgress, r.Tasks.Completed, r.Tasks.Blocked)
	} else {
		a.printf("  %s\n", r.Tasks.Message)
	}

	a.printf("%s %s\n", heading("Session"), d.SessionID)
	if r.Session == nil {
		a.printf("  no recorded activity\n")
	} else {
		a.printf("  %d events, %d agents\n", r.Session.TotalEvents, r.Session.AgentCount)
	}

	a.printf("%s\n", heading("Config"))
	for _, k := range []string{"user", "project"} {
		path := r.ConfigFiles[k]
		if path == "" {
			path = color.HiBlackString("(none)")
		}
		a.printf("  %-8s %s\n", k+":", path)
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rlm version %s\n", Version())
		},
	}
}
