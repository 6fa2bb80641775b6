// Package contextmgr keeps an agent's context bounded across three tiers:
// a token-capped working set, a sliding session log with periodic
// compaction, and file-backed long-term memory.
package contextmgr

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/helloagents/rlm/internal/folding"
	"github.com/helloagents/rlm/pkg/models"
)

// WorkingSummaryType is the event type of a compacted working tier.
const WorkingSummaryType = "working_context_summary"

// Config controls compaction.
type Config struct {
	// CompactionInterval is the number of session events between compactions.
	CompactionInterval int
	// OverlapSize is the number of recent session events kept across a compaction.
	OverlapSize int
	// MaxWorkingTokens is the estimated-token ceiling of the working tier.
	MaxWorkingTokens int
	// KnowledgeBase is the directory backing the memory tier.
	KnowledgeBase string
}

// DefaultConfig returns the stock compaction settings rooted at cwd.
func DefaultConfig() Config {
	cwd, _ := os.Getwd()
	return Config{
		CompactionInterval: 10,
		OverlapSize:        2,
		MaxWorkingTokens:   8000,
		KnowledgeBase:      DefaultKnowledgeBase(cwd),
	}
}

// DefaultKnowledgeBase returns the knowledge base directory of a project.
func DefaultKnowledgeBase(projectRoot string) string {
	return filepath.Join(projectRoot, "helloagents")
}

// Option configures a Manager.
type Option func(*Manager)

// WithSummarizer replaces the default keyword summarizer.
func WithSummarizer(s folding.Summarizer) Option {
	return func(m *Manager) { m.summarizer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the three-tier context store. All methods are safe for
// concurrent use.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	summarizer folding.Summarizer
	log        *slog.Logger
	now        func() time.Time

	working       []models.ContextEvent
	workingTokens int

	session            []models.ContextEvent
	summaries          []string
	sinceCompaction    int
	workingCompactions int

	memory map[string]string
}

// New creates a Manager. Non-positive numeric fields fall back to
// DefaultConfig values.
func New(cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.CompactionInterval <= 0 {
		cfg.CompactionInterval = def.CompactionInterval
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = def.OverlapSize
	}
	if cfg.MaxWorkingTokens <= 0 {
		cfg.MaxWorkingTokens = def.MaxWorkingTokens
	}
	if cfg.KnowledgeBase == "" {
		cfg.KnowledgeBase = def.KnowledgeBase
	}

	m := &Manager{
		cfg:        cfg,
		summarizer: folding.KeywordSummarizer{},
		log:        slog.New(slog.DiscardHandler),
		now:        time.Now,
		memory:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the active configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) stamp(e models.ContextEvent, layer models.Layer) models.ContextEvent {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	e.Layer = layer
	return e
}

// AddToWorking appends an event to the working tier. When the event would
// push the tier over its ceiling, the tier is compacted first.
func (m *Manager) AddToWorking(e models.ContextEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	est := folding.EstimateTokens(e.Content)
	if m.workingTokens+est > m.cfg.MaxWorkingTokens {
		m.compactWorkingLocked()
	}
	m.working = append(m.working, m.stamp(e, models.LayerWorking))
	m.workingTokens += est
}

func (m *Manager) compactWorkingLocked() {
	if len(m.working) == 0 {
		return
	}

	contents := make([]string, len(m.working))
	for i, e := range m.working {
		contents[i] = e.Content
		e.Layer = models.LayerSession
		m.session = append(m.session, e)
	}
	summary := m.summarizer.Summarize(strings.Join(contents, "\n"))

	m.log.Debug("compacted working context",
		"events", len(m.working),
		"tokens", m.workingTokens,
	)

	m.working = []models.ContextEvent{{
		Type:      WorkingSummaryType,
		Content:   summary,
		Timestamp: m.now(),
		Layer:     models.LayerWorking,
		Metadata:  map[string]any{"original_count": len(contents)},
	}}
	m.workingTokens = folding.EstimateTokens(summary)
	m.workingCompactions++
}

// WorkingContext returns a copy of the working tier.
func (m *Manager) WorkingContext() []models.ContextEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ContextEvent(nil), m.working...)
}

// WorkingTokens returns the estimated token count of the working tier.
func (m *Manager) WorkingTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workingTokens
}

// ClearWorking moves every working event to the session tier.
func (m *Manager) ClearWorking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.working {
		e.Layer = models.LayerSession
		m.session = append(m.session, e)
	}
	m.working = nil
	m.workingTokens = 0
}

// AddSessionEvent appends an event to the session log, compacting the log
// once CompactionInterval events have arrived since the last compaction.
func (m *Manager) AddSessionEvent(e models.ContextEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = append(m.session, m.stamp(e, models.LayerSession))
	m.sinceCompaction++
	if m.sinceCompaction >= m.cfg.CompactionInterval {
		m.compactSessionLocked()
	}
}

func (m *Manager) compactSessionLocked() {
	if len(m.session) < m.cfg.CompactionInterval {
		return
	}
	end := len(m.session) - m.cfg.OverlapSize
	if end <= 0 {
		return
	}

	contents := make([]string, end)
	for i, e := range m.session[:end] {
		contents[i] = e.Content
	}
	m.summaries = append(m.summaries, m.summarizer.Summarize(strings.Join(contents, "\n")))
	m.session = append([]models.ContextEvent(nil), m.session[end:]...)
	m.sinceCompaction = 0

	m.log.Debug("compacted session events", "summarized", end, "kept", len(m.session))
}

// SessionEvents returns session events, optionally filtered by type and
// limited to the most recent limit entries. A non-positive limit returns all.
func (m *Manager) SessionEvents(limit int, eventType string) []models.ContextEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ContextEvent
	for _, e := range m.session {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// CompactedSummaries returns the summaries produced by session compaction.
func (m *Manager) CompactedSummaries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.summaries...)
}

// Status is a snapshot of all three tiers.
type Status struct {
	WorkingEvents      int      `json:"working_events"`
	WorkingTokens      int      `json:"working_tokens"`
	WorkingLimit       int      `json:"working_limit"`
	WorkingCompactions int      `json:"working_compactions"`
	SessionEvents      int      `json:"session_events"`
	CompactedSummaries int      `json:"compacted_summaries"`
	SinceCompaction    int      `json:"since_compaction"`
	CachedMemoryKeys   []string `json:"cached_memory_keys"`
	KnowledgeBase      string   `json:"knowledge_base"`
}

// Status reports tier sizes.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		WorkingEvents:      len(m.working),
		WorkingTokens:      m.workingTokens,
		WorkingLimit:       m.cfg.MaxWorkingTokens,
		WorkingCompactions: m.workingCompactions,
		SessionEvents:      len(m.session),
		CompactedSummaries: len(m.summaries),
		SinceCompaction:    m.sinceCompaction,
		CachedMemoryKeys:   m.cachedKeysLocked(),
		KnowledgeBase:      m.cfg.KnowledgeBase,
	}
}

// Export is a full dump of the in-process tiers.
type Export struct {
	WorkingContext     []models.ContextEvent `json:"working_context"`
	SessionEvents      []models.ContextEvent `json:"session_events"`
	CompactedSummaries []string              `json:"compacted_summaries"`
	MemoryCacheKeys    []string              `json:"memory_cache_keys"`
}

// Export returns copies of every tier.
func (m *Manager) Export() Export {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Export{
		WorkingContext:     append([]models.ContextEvent{}, m.working...),
		SessionEvents:      append([]models.ContextEvent{}, m.session...),
		CompactedSummaries: append([]string{}, m.summaries...),
		MemoryCacheKeys:    m.cachedKeysLocked(),
	}
}

// Reset drops all in-process state. Memory files are left alone.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.working = nil
	m.workingTokens = 0
	m.workingCompactions = 0
	m.session = nil
	m.summaries = nil
	m.sinceCompaction = 0
	m.memory = make(map[string]string)
}

// PersistSession writes the compacted summaries and the live session log
// to memory under key and marks the written events as memory-layer. The
// session log is held for the whole call, so events arriving meanwhile
// wait and stay in the session layer.
func (m *Manager) PersistSession(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	for i, s := range m.summaries {
		fmt.Fprintf(&b, "## Summary %d\n\n%s\n\n", i+1, s)
	}
	if len(m.session) > 0 {
		contents := make([]string, len(m.session))
		for i, e := range m.session {
			contents[i] = e.Content
		}
		fmt.Fprintf(&b, "## Recent events\n\n%s\n", m.summarizer.Summarize(strings.Join(contents, "\n")))
	}

	content := b.String()
	if err := m.writeMemoryFile(key, content); err != nil {
		return err
	}
	m.memory[key] = content
	for i := range m.session {
		m.session[i].Layer = models.LayerMemory
	}
	return nil
}
