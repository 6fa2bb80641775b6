// Package engine spawns sub-agents under a recursion and parallelism
// budget, merges what they return and folds long trajectories so the
// calling agent's context stays small.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/helloagents/rlm/internal/agent"
	"github.com/helloagents/rlm/internal/contextmgr"
	"github.com/helloagents/rlm/internal/folding"
	"github.com/helloagents/rlm/internal/ids"
	"github.com/helloagents/rlm/internal/state"
	"github.com/helloagents/rlm/pkg/models"
)

// Defaults for a zero Config.
const (
	DefaultMaxDepth       = 5
	DefaultMaxParallel    = 24
	DefaultTimeout        = 120 * time.Second
	DefaultAutoFoldTokens = folding.DefaultFoldThreshold
)

// Config controls the engine's budgets.
type Config struct {
	// Mode decides whether agents may be spawned and whether their output
	// is folded automatically.
	Mode models.Mode
	// Backend is reported by Status; the executor decides what really runs.
	Backend models.Backend
	// MaxDepth bounds nested spawns.
	MaxDepth int
	// MaxParallel bounds the size of one batch wave and the number of
	// agents in flight at any one depth, across all callers.
	MaxParallel int
	// DefaultTimeout applies to spawns that do not set their own.
	DefaultTimeout time.Duration
	// AutoFoldTokens is the estimated size above which raw output is
	// folded before entering working context.
	AutoFoldTokens int
	// CacheDir receives persisted Store data. Defaults to
	// <knowledge base>/.rlm_cache.
	CacheDir string
	// SessionID tags recorded events and is passed to child processes.
	SessionID string
}

// DefaultConfig returns the stock budgets in active mode.
func DefaultConfig() Config {
	return Config{
		Mode:           models.ModeActive,
		MaxDepth:       DefaultMaxDepth,
		MaxParallel:    DefaultMaxParallel,
		DefaultTimeout: DefaultTimeout,
		AutoFoldTokens: DefaultAutoFoldTokens,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithFolder sets the context folder.
func WithFolder(f *folding.Folder) Option {
	return func(e *Engine) { e.folder = f }
}

// WithContextManager sets the three-tier context store.
func WithContextManager(m *contextmgr.Manager) Option {
	return func(e *Engine) { e.context = m }
}

// WithRecorder persists spawns and folds, typically to the session database.
func WithRecorder(r state.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithPromptBuilder sets where role instructions come from.
func WithPromptBuilder(b agent.PromptBuilder) Option {
	return func(e *Engine) { e.prompts = b }
}

// WithIDs sets the identifier generator.
func WithIDs(g *ids.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithBaseDepth sets the depth of calls whose context carries none, which
// is how a nested rlm process continues its parent's budget.
func WithBaseDepth(d int) Option {
	return func(e *Engine) { e.baseDepth = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the orchestration engine. It is safe for concurrent use.
type Engine struct {
	executor  agent.Executor
	folder    *folding.Folder
	context   *contextmgr.Manager
	recorder  state.Recorder
	prompts   agent.PromptBuilder
	ids       *ids.Generator
	log       *slog.Logger
	baseDepth int

	mu       sync.Mutex
	cfg      Config
	inFlight map[int]int
	slots    map[int]*semaphore.Weighted
	active   int
	folded   map[string]models.FoldedTrajectory
	refs     map[string]string
	stored   map[string]string
}

// New creates an engine that runs agents through executor. Non-positive
// budgets fall back to DefaultConfig values.
func New(executor agent.Executor, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if !cfg.Mode.Valid() {
		cfg.Mode = def.Mode
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.AutoFoldTokens <= 0 {
		cfg.AutoFoldTokens = def.AutoFoldTokens
	}

	e := &Engine{
		executor: executor,
		log:      slog.New(slog.DiscardHandler),
		cfg:      cfg,
		inFlight: make(map[int]int),
		slots:    make(map[int]*semaphore.Weighted),
		folded:   make(map[string]models.FoldedTrajectory),
		refs:     make(map[string]string),
		stored:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.folder == nil {
		e.folder = folding.New(folding.DefaultConfig())
	}
	if e.context == nil {
		e.context = contextmgr.New(contextmgr.DefaultConfig(), contextmgr.WithLogger(e.log))
	}
	if e.ids == nil {
		e.ids = ids.New()
	}
	if e.cfg.CacheDir == "" {
		e.cfg.CacheDir = filepath.Join(e.context.Config().KnowledgeBase, ".rlm_cache")
	}
	return e
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetMode switches the engine mode.
func (e *Engine) SetMode(m models.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Mode = m
}

// Context exposes the engine's context manager.
func (e *Engine) Context() *contextmgr.Manager {
	return e.context
}

// Folder exposes the engine's context folder.
func (e *Engine) Folder() *folding.Folder {
	return e.folder
}

type depthKey struct{}

// WithDepth returns a context recording the recursion depth of the agent
// running under it.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// DepthFrom returns the depth recorded in ctx.
func DepthFrom(ctx context.Context) (int, bool) {
	d, ok := ctx.Value(depthKey{}).(int)
	return d, ok
}

// Depth returns the recursion depth a spawn made under ctx starts from.
func (e *Engine) Depth(ctx context.Context) int {
	if d, ok := DepthFrom(ctx); ok {
		return d
	}
	return e.baseDepth
}

// enter waits for one of the MaxParallel slots at depth. Each depth has its
// own slots, so a parent holding one never waits on its children.
func (e *Engine) enter(ctx context.Context, depth int) error {
	e.mu.Lock()
	sem, ok := e.slots[depth]
	if !ok {
		sem = semaphore.NewWeighted(int64(e.cfg.MaxParallel))
		e.slots[depth] = sem
	}
	e.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight[depth]++
	e.active++
	return nil
}

func (e *Engine) leave(depth int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.slots[depth].Release(1)
	e.inFlight[depth]--
	if e.inFlight[depth] <= 0 {
		delete(e.inFlight, depth)
	}
	e.active--
}

// currentDepthLocked is the deepest depth with an agent in flight.
func (e *Engine) currentDepthLocked() int {
	d := e.baseDepth
	for depth := range e.inFlight {
		d = max(d, depth)
	}
	return d
}

// Diagnostics is a snapshot of the engine.
type Diagnostics struct {
	Mode              models.Mode    `json:"mode"`
	Backend           models.Backend `json:"backend,omitempty"`
	CurrentDepth      int            `json:"current_depth"`
	MaxDepth          int            `json:"max_depth"`
	ActiveAgents      int            `json:"active_agents"`
	MaxParallel       int            `json:"max_parallel"`
	FoldedCount       int            `json:"folded_count"`
	SessionEventCount int            `json:"session_events_count"`
	MemoryRefCount    int            `json:"memory_refs_count"`
	SessionID         string         `json:"session_id,omitempty"`
}

// Status reports current depth, load and context sizes.
func (e *Engine) Status() Diagnostics {
	ctxStatus := e.context.Status()

	e.mu.Lock()
	defer e.mu.Unlock()
	return Diagnostics{
		Mode:              e.cfg.Mode,
		Backend:           e.cfg.Backend,
		CurrentDepth:      e.currentDepthLocked(),
		MaxDepth:          e.cfg.MaxDepth,
		ActiveAgents:      e.active,
		MaxParallel:       e.cfg.MaxParallel,
		FoldedCount:       len(e.folded),
		SessionEventCount: ctxStatus.SessionEvents,
		MemoryRefCount:    len(e.refs),
		SessionID:         e.cfg.SessionID,
	}
}

// Reset drops folded trajectories, stored references and all context tiers.
// Configuration and agents already in flight are unaffected.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.folded = make(map[string]models.FoldedTrajectory)
	e.refs = make(map[string]string)
	e.stored = make(map[string]string)
	e.mu.Unlock()

	e.ids.Reset()
	e.context.Reset()
}

// addSessionEvent appends to the in-process session log.
func (e *Engine) addSessionEvent(eventType, content string, meta map[string]any) {
	e.context.AddSessionEvent(models.ContextEvent{
		Type:     eventType,
		Content:  content,
		Metadata: meta,
	})
}

// record forwards an event to the recorder. Failures are logged only.
func (e *Engine) record(eventType string, data map[string]any) {
	if e.recorder == nil || e.cfg.SessionID == "" {
		return
	}
	if err := e.recorder.LogEvent(e.cfg.SessionID, eventType, data); err != nil {
		e.log.Warn("record event failed", "type", eventType, "error", err)
	}
}
