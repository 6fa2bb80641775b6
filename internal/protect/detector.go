package protect

import (
	"path/filepath"
	"strings"
	"sync"
)

// Detector checks workspace-relative paths against protected patterns
// and file types.
type Detector struct {
	mu        sync.RWMutex
	patterns  []string
	fileTypes []string
}

// New creates a detector with the defaults plus extra patterns. An extra
// entry of the form ".ext" is treated as a file type.
func New(extra ...string) *Detector {
	d := &Detector{
		patterns:  append([]string{}, DefaultPatterns...),
		fileTypes: append([]string{}, DefaultFileTypes...),
	}
	for _, e := range extra {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case strings.HasPrefix(e, ".") && !strings.ContainsAny(e, "/*"):
			d.AddFileType(e)
		default:
			d.AddPattern(e)
		}
	}
	return d
}

// IsProtected reports whether path may not be modified.
func (d *Detector) IsProtected(path string) bool {
	protected, _ := d.IsProtectedWithReason(path)
	return protected
}

// IsProtectedWithReason reports whether path may not be modified and which
// rule matched.
func (d *Detector) IsProtectedWithReason(path string) (bool, string) {
	if d == nil {
		return false, ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	normalized := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "./")
	for _, pattern := range d.patterns {
		if matchGlobPattern(normalized, pattern) {
			return true, "path matches protected pattern " + pattern
		}
	}

	ext := strings.ToLower(filepath.Ext(normalized))
	for _, ft := range d.fileTypes {
		if ext != "" && ext == strings.ToLower(ft) {
			return true, "file type " + ft + " is protected"
		}
	}
	return false, ""
}

// AddPattern protects paths matching a glob with ** support.
func (d *Detector) AddPattern(pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = append(d.patterns, filepath.ToSlash(pattern))
}

// AddFileType protects files with the given extension.
func (d *Detector) AddFileType(ext string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fileTypes = append(d.fileTypes, ext)
}
