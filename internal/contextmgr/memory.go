package contextmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var wellKnownMemory = map[string]string{
	"context":   "context.md",
	"index":     "INDEX.md",
	"changelog": "CHANGELOG.md",
}

const modulesPrefix = "modules/"

// MemoryPath maps a memory key to its file under the knowledge base.
func (m *Manager) MemoryPath(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty memory key")
	}
	if name, ok := wellKnownMemory[key]; ok {
		return filepath.Join(m.cfg.KnowledgeBase, name), nil
	}

	var rel string
	if name, ok := strings.CutPrefix(key, modulesPrefix); ok {
		rel = filepath.Join("modules", name+".md")
	} else {
		rel = key + ".md"
	}
	rel = filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("memory key %q escapes knowledge base", key)
	}
	return filepath.Join(m.cfg.KnowledgeBase, rel), nil
}

// LoadMemory returns the content stored under key, reading the backing file
// on first access. The second value is false when nothing is stored.
func (m *Manager) LoadMemory(key string) (string, bool) {
	m.mu.Lock()
	if content, ok := m.memory[key]; ok {
		m.mu.Unlock()
		return content, true
	}
	m.mu.Unlock()

	path, err := m.MemoryPath(key)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.log.Warn("read memory", "key", key, "error", err)
		}
		return "", false
	}

	content := string(data)
	m.mu.Lock()
	m.memory[key] = content
	m.mu.Unlock()
	return content, true
}

// SaveMemory writes content to the backing file and the cache.
func (m *Manager) SaveMemory(key, content string) error {
	if err := m.writeMemoryFile(key, content); err != nil {
		return err
	}

	m.mu.Lock()
	m.memory[key] = content
	m.mu.Unlock()
	return nil
}

func (m *Manager) writeMemoryFile(key, content string) error {
	path, err := m.MemoryPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create memory directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write memory %s: %w", key, err)
	}
	return nil
}

// InvalidateMemory drops key from the read cache.
func (m *Manager) InvalidateMemory(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.memory, key)
}

// InvalidateAllMemory empties the read cache.
func (m *Manager) InvalidateAllMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = make(map[string]string)
}

func (m *Manager) cachedKeysLocked() []string {
	keys := make([]string, 0, len(m.memory))
	for k := range m.memory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
