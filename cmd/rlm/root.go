package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/config"
	"github.com/helloagents/rlm/internal/contextmgr"
	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/internal/folding"
	"github.com/helloagents/rlm/internal/logging"
	"github.com/helloagents/rlm/internal/sharedtasks"
	"github.com/helloagents/rlm/internal/state"
	"github.com/helloagents/rlm/pkg/models"
)

// app carries global flags and the per-invocation runtime.
type app struct {
	configPath string
	jsonOut    bool
	backend    string
	mode       string
	sessionID  string
	workDir    string

	// executor replaces backend construction; set by tests.
	executor agent.Executor

	cfg *config.Config
	log *logging.Logger
	out io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rlm",
		Short: "Recursive sub-agent delegation engine",
		Long: `rlm spawns role-specialised sub-agents on external CLI backends or the
Anthropic API, runs them in bounded parallel waves, and merges their
structured results.

Core capabilities:
- Depth- and parallelism-bounded spawning with per-agent timeouts
- Sequential, parallel, divide-and-conquer and expert orchestration plans
- Trajectory folding and tiered working/session/memory context
- Shared task lists coordinated across processes
- Session history in a project-local SQLite store`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.log.Close()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default: user config plus .rlm.yaml)")
	f.BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")
	f.StringVar(&a.backend, "backend", "", "backend override: codex|gemini|qwen|claude|grok|anthropic")
	f.StringVar(&a.mode, "mode", "", "mode override: disabled|passive|active|aggressive")
	f.StringVar(&a.sessionID, "session", "", "session id (default: $"+state.EnvSessionID+" or a new id)")
	f.StringVar(&a.workDir, "workdir", "", "project root (default: current directory)")

	root.AddCommand(
		a.statusCmd(),
		a.spawnCmd(),
		a.batchCmd(),
		a.analyzeCmd(),
		a.implementCmd(),
		a.planCmd(),
		a.foldCmd(),
		a.tasksCmd(),
		a.sessionCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

// Execute runs the root command. An interrupt cancels the command's
// context so in-flight agents are stopped.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(&app{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and opens the log.
func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFromPath(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.backend != "" {
		a.cfg.Engine.Backend = a.backend
	}
	if a.mode != "" {
		a.cfg.Engine.Mode = a.mode
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.workDir == "" {
		if a.workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	switch a.cfg.Log.File {
	case "off":
		a.log = logging.Nop()
	case "":
		a.log = logging.ForKnowledgeBase(a.knowledgeBase(), a.cfg.Log.Level)
	default:
		if a.log, err = logging.New(a.cfg.Log.File, a.cfg.Log.Level); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) knowledgeBase() string {
	if kb := a.cfg.Context.KnowledgeBase; kb != "" {
		return kb
	}
	return contextmgr.DefaultKnowledgeBase(a.workDir)
}

// session resolves the session id once per invocation.
func (a *app) session() string {
	if a.sessionID == "" {
		a.sessionID = state.ResolveSessionID("")
	}
	return a.sessionID
}

// newEngine wires the configured executor, context tiers and session
// store into an engine. The returned func releases the store.
func (a *app) newEngine(ctx context.Context) (*engine.Engine, func(), error) {
	ex := a.executor
	backend := models.Backend(a.cfg.Engine.Backend)
	if ex == nil {
		exCfg := a.cfg.ExecutorConfig(a.workDir)
		exCfg.Logger = a.log.Logger
		var err error
		ex, backend, err = engine.NewExecutor(ctx, exCfg)
		if err != nil {
			return nil, nil, err
		}
	}

	cmCfg := a.cfg.ContextManagerConfig()
	cmCfg.KnowledgeBase = a.knowledgeBase()

	eCfg := a.cfg.EngineConfig()
	eCfg.Backend = backend
	eCfg.SessionID = a.session()

	opts := []engine.Option{
		engine.WithLogger(a.log.Logger),
		engine.WithFolder(folding.New(a.cfg.FolderConfig())),
		engine.WithContextManager(contextmgr.New(cmCfg, contextmgr.WithLogger(a.log.Logger))),
		engine.WithPromptBuilder(agent.PromptBuilder{RolesDir: a.cfg.Engine.RolesDir}),
		engine.WithBaseDepth(inheritedDepth()),
	}

	release := func() {}
	db, err := state.OpenProject(a.workDir)
	if err != nil {
		a.log.Warn("session store unavailable; history will not be recorded", "err", err)
	} else {
		if _, err := db.CreateSession(eCfg.SessionID); err != nil {
			a.log.Warn("create session", "session", eCfg.SessionID, "err", err)
		}
		opts = append(opts, engine.WithRecorder(db))
		release = func() { db.Close() }
	}

	return engine.New(ex, eCfg, opts...), release, nil
}

// inheritedDepth reads the depth a parent rlm process passed down.
func inheritedDepth() int {
	d, err := strconv.Atoi(os.Getenv(agent.EnvDepth))
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// newCoordinator opens the shared task list named by the configured
// environment variable.
func (a *app) newCoordinator(ctx context.Context) (*sharedtasks.Coordinator, error) {
	return sharedtasks.New(ctx, a.workDir, a.cfg.TaskListID(),
		sharedtasks.WithLockOptions(a.cfg.LockOptions()...),
		sharedtasks.WithLogger(a.log.Logger),
	)
}

// openStore opens the project store without creating it.
func (a *app) openStore() (*state.DB, error) {
	path := state.ProjectDBPath(a.workDir)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no session store at %s", path)
	}
	return state.OpenProject(a.workDir)
}
