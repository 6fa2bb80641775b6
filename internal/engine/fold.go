package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/helloagents/rlm/internal/folding"
	"github.com/helloagents/rlm/internal/state"
	"github.com/helloagents/rlm/pkg/models"
)

// DefaultFoldPrompt is used when Fold is called without a prompt.
const DefaultFoldPrompt = "Keep the key information and produce a concise summary"

// ErrInvalidKey is returned by Store for keys that cannot name a cache file.
var ErrInvalidKey = errors.New("invalid data key")

const memoryScheme = "memory://"

// Fold compresses trajectory. The folded summary is what callers carry
// forward; the raw text goes verbatim into the session log for audit.
func (e *Engine) Fold(trajectory, prompt, reason string) models.FoldedTrajectory {
	if prompt == "" {
		prompt = DefaultFoldPrompt
	}
	if reason == "" {
		reason = "manual"
	}

	id := e.ids.Next("traj")
	folded := e.folder.Fold(folding.Trajectory{ID: id, Content: trajectory}, "", prompt)
	folded.Reason = reason

	e.addSessionEvent("folded_trajectory", trajectory, map[string]any{
		"trajectory_id": id,
		"summary":       folded.Summary,
		"artifacts":     folded.Artifacts,
		"reason":        reason,
	})
	e.record(state.EventFold, map[string]any{
		"trajectory_id": id,
		"strategy":      string(folded.Strategy),
		"reason":        reason,
		"original":      trajectory,
		"summary":       folded.Summary,
	})

	e.mu.Lock()
	e.folded[id] = folded
	e.mu.Unlock()

	e.log.Debug("folded trajectory", "id", id, "original", folded.OriginalLength,
		"ratio", folded.CompressionRatio, "reason", reason)
	return folded
}

// Folded returns a previously folded trajectory by ID.
func (e *Engine) Folded(id string) (models.FoldedTrajectory, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.folded[id]
	return f, ok
}

// FoldedTrajectories lists every folded trajectory ordered by ID.
func (e *Engine) FoldedTrajectories() []models.FoldedTrajectory {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.FoldedTrajectory, 0, len(e.folded))
	for _, f := range e.folded {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Store keeps data under key so it can be peeked at later without loading
// it whole. With persist the data is written to the cache directory;
// otherwise it stays in process.
func (e *Engine) Store(key, data string, persist bool) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	ref := memoryScheme + key
	if persist {
		if err := os.MkdirAll(e.cfg.CacheDir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
		ref = filepath.Join(e.cfg.CacheDir, key+".txt")
		if err := os.WriteFile(ref, []byte(data), 0644); err != nil {
			return fmt.Errorf("write %s: %w", ref, err)
		}
	}

	e.mu.Lock()
	e.refs[key] = ref
	if persist {
		delete(e.stored, key)
	} else {
		e.stored[key] = data
	}
	e.mu.Unlock()

	e.addSessionEvent("store", key, map[string]any{
		"key":     key,
		"persist": persist,
		"size":    len(data),
	})
	return nil
}

// Peek returns runes [start:end) of stored data, clamped to its bounds.
// Problems are reported in the returned text as "[ERROR] ..." lines.
func (e *Engine) Peek(key string, start, end int) string {
	e.mu.Lock()
	ref, ok := e.refs[key]
	data := e.stored[key]
	e.mu.Unlock()

	if !ok {
		return fmt.Sprintf("[ERROR] Data key '%s' not found in memory_refs", key)
	}

	if !strings.HasPrefix(ref, memoryScheme) {
		raw, err := os.ReadFile(ref)
		if errors.Is(err, os.ErrNotExist) {
			return "[ERROR] File not found: " + ref
		}
		if err != nil {
			return fmt.Sprintf("[ERROR] Failed to read '%s': %v", key, err)
		}
		data = string(raw)
	}
	return sliceRunes(data, start, end)
}

func sliceRunes(s string, start, end int) string {
	r := []rune(s)
	start = max(0, min(start, len(r)))
	end = max(start, min(end, len(r)))
	return string(r[start:end])
}

// LoadContext reads a memory-tier document.
func (e *Engine) LoadContext(key string) (string, bool) {
	return e.context.LoadMemory(key)
}

// SaveContext writes a memory-tier document.
func (e *Engine) SaveContext(key, content string) error {
	return e.context.SaveMemory(key, content)
}
