// Package ids mints human-readable identifiers from an injected clock and
// a per-generator monotonic counter.
package ids

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// Generator produces identifiers of the form <prefix>_<n>_<timestamp>.
// Counters are per prefix and never reset except by Reset.
type Generator struct {
	mu       sync.Mutex
	now      Clock
	layout   string
	counters map[string]int
}

// DefaultLayout is the timestamp layout used by New.
const DefaultLayout = "20060102150405"

// New returns a generator using the wall clock.
func New() *Generator {
	return NewWithClock(time.Now, DefaultLayout)
}

// NewWithClock returns a generator driven by the given clock and layout.
func NewWithClock(now Clock, layout string) *Generator {
	if now == nil {
		now = time.Now
	}
	if layout == "" {
		layout = DefaultLayout
	}
	return &Generator{
		now:      now,
		layout:   layout,
		counters: make(map[string]int),
	}
}

// Next returns the next identifier for prefix.
func (g *Generator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[prefix]++
	return fmt.Sprintf("%s_%d_%s", prefix, g.counters[prefix], g.now().Format(g.layout))
}

// Count returns how many identifiers have been issued for prefix.
func (g *Generator) Count(prefix string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters[prefix]
}

// Now exposes the generator's clock.
func (g *Generator) Now() time.Time {
	return g.now()
}

// Reset clears all counters.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters = make(map[string]int)
}
