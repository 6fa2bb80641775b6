package models

import "time"

// Layer is the retention tier a context event currently lives in.
type Layer string

const (
	LayerWorking Layer = "working"
	LayerSession Layer = "session"
	LayerMemory  Layer = "memory"
)

// Valid returns true if the layer is a known value.
func (l Layer) Valid() bool {
	switch l {
	case LayerWorking, LayerSession, LayerMemory:
		return true
	default:
		return false
	}
}

// ContextEvent is a tagged unit of context. Events move between layers
// and may be summarized, but are never deleted outright.
type ContextEvent struct {
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Layer     Layer          `json:"layer"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FoldStrategy selects how much of a trajectory survives folding.
type FoldStrategy string

const (
	// FoldAggressive keeps roughly 10% of the lines.
	FoldAggressive FoldStrategy = "aggressive"
	// FoldBalanced keeps roughly 25% of the lines.
	FoldBalanced FoldStrategy = "balanced"
	// FoldConservative keeps roughly 50% of the lines.
	FoldConservative FoldStrategy = "conservative"
)

// Valid returns true if the strategy is a known value.
func (s FoldStrategy) Valid() bool {
	switch s {
	case FoldAggressive, FoldBalanced, FoldConservative:
		return true
	default:
		return false
	}
}

// Retention returns the fraction of lines kept by the strategy.
// Unknown strategies retain like FoldBalanced.
func (s FoldStrategy) Retention() float64 {
	switch s {
	case FoldAggressive:
		return 0.10
	case FoldConservative:
		return 0.50
	default:
		return 0.25
	}
}

// TrajectoryType labels what kind of work a trajectory records.
type TrajectoryType string

const (
	TrajectoryGeneral        TrajectoryType = "general"
	TrajectoryExploration    TrajectoryType = "exploration"
	TrajectoryImplementation TrajectoryType = "implementation"
	TrajectoryReview         TrajectoryType = "review"
	TrajectoryMerged         TrajectoryType = "merged"
)

// FoldedTrajectory is the compressed, forward-facing view of a trajectory.
type FoldedTrajectory struct {
	ID               string       `json:"id"`
	OriginalLength   int          `json:"original_length"`
	Summary          string       `json:"summary"`
	Artifacts        []string     `json:"key_artifacts"`
	Strategy         FoldStrategy `json:"strategy"`
	CompressionRatio float64      `json:"compression_ratio"`
	Reason           string       `json:"fold_reason,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}
