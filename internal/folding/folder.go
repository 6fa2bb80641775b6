// Package folding compresses long agent trajectories into short summaries
// plus a handful of preserved artifact references.
//
// Selection is a deterministic line heuristic: marker lines, short fenced
// code blocks and nothing else survive, trimmed head-and-tail to a budget
// set by the strategy. It is exposed through the Summarizer interface so
// a model-backed summarizer can replace it.
package folding

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/helloagents/rlm/pkg/models"
)

// Summarizer turns arbitrary text into a shorter representation.
type Summarizer interface {
	Summarize(content string) string
}

// Defaults for a zero Config.
const (
	DefaultMaxSummaryLength = 500
	DefaultFoldThreshold    = 2000
	minRetainedLines        = 5
	maxCodeBlockLines       = 10
	ellipsis                = "..."
	noKeyContent            = "[no key content]"
)

var keyPatterns = compileAll(`(?i)`,
	`^#{1,3}\s+`,
	`^\*\*.*\*\*`,
	`✅|❌|⚠️|🔵|🟣|💡`,
	`\[completed\]|\[failed\]|\[success\]|\[error\]`,
	"```\\w*",
	`def\s+\w+|class\s+\w+|function\s+\w+|func\s+\w+`,
	`created?|modified?|deleted?|updated?`,
	`file:|path:`,
)

var omitPatterns = compileAll(``,
	`^\s*$`,
	`^[-=]{3,}$`,
	`^\s*\.\.\.\s*$`,
)

func compileAll(flags string, exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(flags + e)
	}
	return out
}

var typeLabels = map[models.TrajectoryType]string{
	models.TrajectoryExploration:    "📂 exploration",
	models.TrajectoryImplementation: "💻 implementation",
	models.TrajectoryReview:         "🔍 review",
	models.TrajectoryMerged:         "📋 merged",
	models.TrajectoryGeneral:        "📝 general",
}

// Trajectory is a piece of text to fold.
type Trajectory struct {
	ID        string
	Content   string
	Type      models.TrajectoryType
	Artifacts []string
}

// Config tunes a Folder.
type Config struct {
	// Strategy is used when a call does not name one. Defaults to balanced.
	Strategy models.FoldStrategy
	// MaxSummaryLength caps summaries, in runes. Defaults to 500.
	MaxSummaryLength int
	// PreserveCodeBlocks keeps short fenced code blocks verbatim.
	PreserveCodeBlocks bool
}

// DefaultConfig returns the balanced configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:           models.FoldBalanced,
		MaxSummaryLength:   DefaultMaxSummaryLength,
		PreserveCodeBlocks: true,
	}
}

// Folder is the pattern-based context folder. It is stateless apart from
// its configuration and safe for concurrent use.
type Folder struct {
	cfg Config
	now func() time.Time
}

// New creates a Folder. An invalid Strategy or non-positive
// MaxSummaryLength falls back to the DefaultConfig value.
func New(cfg Config) *Folder {
	if !cfg.Strategy.Valid() {
		cfg.Strategy = models.FoldBalanced
	}
	if cfg.MaxSummaryLength <= 0 {
		cfg.MaxSummaryLength = DefaultMaxSummaryLength
	}
	return &Folder{cfg: cfg, now: time.Now}
}

// Strategy returns the default strategy.
func (f *Folder) Strategy() models.FoldStrategy {
	return f.cfg.Strategy
}

func (f *Folder) pick(s models.FoldStrategy) models.FoldStrategy {
	if s.Valid() {
		return s
	}
	return f.cfg.Strategy
}

// Fold compresses one trajectory. An empty strategy selects the default.
// The prompt is accepted for Summarizer implementations that use one; the
// heuristic ignores it.
func (f *Folder) Fold(t Trajectory, strategy models.FoldStrategy, prompt string) models.FoldedTrajectory {
	strategy = f.pick(strategy)

	keyLines := f.KeyLines(t.Content, strategy)
	artifacts := dedupe(append(ExtractArtifacts(t.Content), t.Artifacts...))
	summary := f.summarize(keyLines, t.Type)

	return models.FoldedTrajectory{
		ID:               t.ID,
		OriginalLength:   utf8.RuneCountInString(t.Content),
		Summary:          summary,
		Artifacts:        artifacts,
		Strategy:         strategy,
		CompressionRatio: ratio(summary, utf8.RuneCountInString(t.Content)),
		Timestamp:        f.now(),
	}
}

// FoldMultiple flattens several trajectories into one merged summary.
// It is a single merge over all key lines, not a fold of folds.
func (f *Folder) FoldMultiple(ts []Trajectory, strategy models.FoldStrategy) models.FoldedTrajectory {
	strategy = f.pick(strategy)

	var keyLines, artifacts []string
	total := 0
	for _, t := range ts {
		keyLines = append(keyLines, f.KeyLines(t.Content, strategy)...)
		artifacts = append(artifacts, ExtractArtifacts(t.Content)...)
		total += utf8.RuneCountInString(t.Content)
	}

	summary := f.summarize(keyLines, models.TrajectoryMerged)
	return models.FoldedTrajectory{
		ID:               "merged_" + strconv.Itoa(len(ts)),
		OriginalLength:   total,
		Summary:          summary,
		Artifacts:        dedupe(artifacts),
		Strategy:         strategy,
		CompressionRatio: ratio(summary, total),
		Timestamp:        f.now(),
	}
}

// Summarize implements Summarizer using the default strategy.
func (f *Folder) Summarize(content string) string {
	return f.summarize(f.KeyLines(content, f.cfg.Strategy), models.TrajectoryGeneral)
}

// QuickFold folds content as a general trajectory and returns the summary.
func (f *Folder) QuickFold(content string, strategy models.FoldStrategy) string {
	return f.Fold(Trajectory{ID: "quick_fold", Content: content}, strategy, "").Summary
}

// EstimateTokens is the shared cheap token heuristic: characters / 4.
func EstimateTokens(content string) int {
	return utf8.RuneCountInString(content) / 4
}

// ShouldFold reports whether content is long enough to be worth folding.
// A non-positive threshold selects DefaultFoldThreshold.
func ShouldFold(content string, thresholdTokens int) bool {
	if thresholdTokens <= 0 {
		thresholdTokens = DefaultFoldThreshold
	}
	return EstimateTokens(content) > thresholdTokens
}

// Savings is the projected effect of folding some content.
type Savings struct {
	OriginalTokens  int     `json:"original_tokens"`
	EstimatedTokens int     `json:"estimated_tokens"`
	SavingsPercent  float64 `json:"savings_percent"`
}

// EstimateSavings projects the token reduction folding would achieve.
func (f *Folder) EstimateSavings(content string, strategy models.FoldStrategy) Savings {
	strategy = f.pick(strategy)

	original := EstimateTokens(content)
	summaryLen := 0
	for _, l := range f.KeyLines(content, strategy) {
		summaryLen += utf8.RuneCountInString(l)
	}
	summaryLen = min(summaryLen, f.cfg.MaxSummaryLength)
	estimated := summaryLen / 4

	var pct float64
	if original > 0 {
		pct = (1 - float64(estimated)/float64(original)) * 100
		pct = math.Round(pct*10) / 10
	}
	return Savings{
		OriginalTokens:  original,
		EstimatedTokens: estimated,
		SavingsPercent:  pct,
	}
}

// KeyLines selects the lines of content worth keeping under strategy.
func (f *Folder) KeyLines(content string, strategy models.FoldStrategy) []string {
	lines := strings.Split(content, "\n")
	maxLines := max(int(float64(len(lines))*f.pick(strategy).Retention()), minRetainedLines)

	var keep []string
	var block []string
	inBlock := false

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inBlock = !inBlock
			if inBlock {
				block = []string{line}
			} else {
				block = append(block, line)
				if f.cfg.PreserveCodeBlocks && len(block) <= maxCodeBlockLines {
					keep = append(keep, block...)
				}
				block = nil
			}
			continue
		}
		if inBlock {
			block = append(block, line)
			continue
		}
		if matchesAny(omitPatterns, line) {
			continue
		}
		if matchesAny(keyPatterns, line) {
			keep = append(keep, line)
		}
	}

	if len(keep) > maxLines {
		half := maxLines / 2
		trimmed := make([]string, 0, 2*half+1)
		trimmed = append(trimmed, keep[:half]...)
		trimmed = append(trimmed, ellipsis)
		trimmed = append(trimmed, keep[len(keep)-half:]...)
		keep = trimmed
	}
	return keep
}

func (f *Folder) summarize(keyLines []string, kind models.TrajectoryType) string {
	if len(keyLines) == 0 {
		return truncateRunes(noKeyContent, f.cfg.MaxSummaryLength)
	}
	label, ok := typeLabels[kind]
	if !ok {
		label = "📝"
	}
	summary := label + " summary:\n" + strings.Join(keyLines, "\n")
	return truncateRunes(summary, f.cfg.MaxSummaryLength)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	if limit <= len(ellipsis) {
		return string(r[:max(limit, 0)])
	}
	return string(r[:limit-len(ellipsis)]) + ellipsis
}

func matchesAny(patterns []*regexp.Regexp, line string) bool {
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func ratio(summary string, originalLen int) float64 {
	if originalLen == 0 {
		return 0
	}
	return float64(utf8.RuneCountInString(summary)) / float64(originalLen)
}
