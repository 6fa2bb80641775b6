package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/api"
	"github.com/helloagents/rlm/internal/exec"
	"github.com/helloagents/rlm/internal/protect"
	"github.com/helloagents/rlm/pkg/models"
)

// ExecutorConfig selects and configures the backend that runs sub-agents.
type ExecutorConfig struct {
	// Backend to use. Empty means detect from the environment.
	Backend models.Backend
	// Model overrides the backend's default model.
	Model string
	// WorkDir is where CLI agents run and API tools are confined to.
	WorkDir string
	// Anthropic configures the anthropic backend.
	Anthropic api.ClientConfig
	// ProtectedPaths adds globs and extensions the anthropic backend's
	// write tools refuse, on top of protect.DefaultPatterns.
	ProtectedPaths []string
	// MaxIterations bounds the anthropic backend's tool loop.
	MaxIterations int
	// Runner overrides how CLI backends are started.
	Runner exec.CommandRunner
	// Getenv overrides environment lookups during detection.
	Getenv func(string) string
	Logger *slog.Logger
}

// NewExecutor builds the executor for cfg.Backend, detecting the backend
// first when none is set. It returns the backend actually chosen.
func NewExecutor(ctx context.Context, cfg ExecutorConfig) (agent.Executor, models.Backend, error) {
	runner := cfg.Runner
	if runner == nil {
		runner = exec.NewRunner()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	backend := cfg.Backend
	if backend == "" {
		backend = agent.Detect(getenv, runner.LookPath)
		log.Debug("detected backend", "backend", backend)
	}
	if !backend.Valid() {
		return nil, "", fmt.Errorf("unknown backend %q", backend)
	}

	switch backend {
	case models.BackendClaude:
		return agent.TaskToolExecutor{}, backend, nil

	case models.BackendAnthropic:
		clientCfg := cfg.Anthropic
		if cfg.Model != "" {
			clientCfg.Model = anthropic.Model(cfg.Model)
		}
		client, err := api.NewClient(ctx, clientCfg)
		if err != nil {
			return nil, backend, fmt.Errorf("create anthropic client: %w", err)
		}
		ex := api.NewExecutor(client, cfg.WorkDir, cfg.MaxIterations, log).
			WithProtected(protect.New(cfg.ProtectedPaths...))
		return ex, backend, nil

	default:
		opts := []agent.CLIOption{
			agent.WithRunner(runner),
			agent.WithWorkDir(cfg.WorkDir),
			agent.WithLogger(log),
		}
		if cfg.Model != "" {
			opts = append(opts, agent.WithModel(cfg.Model))
		}
		ex, err := agent.NewCLIExecutor(backend, opts...)
		if err != nil {
			return nil, backend, err
		}
		return ex, backend, nil
	}
}
