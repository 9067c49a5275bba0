package continual

import "fmt"

// Strategy identifies a continual-learning update policy. A strategy is
// selected once per run and applies uniformly across all tasks.
type Strategy string

const (
	// StrategyVanilla trains on the current task batch only.
	StrategyVanilla Strategy = "VAN"
	// StrategyFeatureExtraction freezes the feature layers after task 0.
	StrategyFeatureExtraction Strategy = "FTR_EXT"
	// StrategyEWC is elastic weight consolidation (online Fisher).
	StrategyEWC Strategy = "EWC"
	// StrategyPI is path-integral synaptic intelligence.
	StrategyPI Strategy = "PI"
	// StrategyMAS is memory-aware synapses.
	StrategyMAS Strategy = "MAS"
	// StrategyRWalk is Riemannian walk.
	StrategyRWalk Strategy = "RWALK"
	// StrategyAGEM projects gradients against an episodic reference gradient.
	StrategyAGEM Strategy = "A-GEM"
	// StrategyERReservoir replays from a reservoir-sampled buffer.
	StrategyERReservoir Strategy = "ER-Reservoir"
	// StrategyERRing replays from a class-balanced FIFO ring buffer.
	StrategyERRing Strategy = "ER-Ring"
	// StrategyMER is meta-experience replay with within-batch reptile blending.
	StrategyMER Strategy = "MER"
	// StrategyHindsight is experience replay with hindsight anchors.
	StrategyHindsight Strategy = "ER-Hindsight-Anchors"
)

// Strategies lists every recognized strategy.
var Strategies = []Strategy{
	StrategyVanilla,
	StrategyFeatureExtraction,
	StrategyEWC,
	StrategyPI,
	StrategyMAS,
	StrategyRWalk,
	StrategyAGEM,
	StrategyERReservoir,
	StrategyERRing,
	StrategyMER,
	StrategyHindsight,
}

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range Strategies {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %v)", ErrUnknownStrategy, name, Strategies)
}

// UsesReservoir reports whether the strategy maintains a reservoir buffer.
func (s Strategy) UsesReservoir() bool {
	return s == StrategyERReservoir || s == StrategyMER
}

// UsesRing reports whether the strategy maintains a class-balanced FIFO ring.
func (s Strategy) UsesRing() bool {
	return s == StrategyAGEM || s == StrategyERRing || s == StrategyHindsight
}

// UsesEpisodicMemory reports whether the strategy keeps any episodic buffer.
func (s Strategy) UsesEpisodicMemory() bool {
	return s.UsesReservoir() || s.UsesRing()
}

// UsesAnchors reports whether the strategy maintains a hindsight-anchor store.
func (s Strategy) UsesAnchors() bool {
	return s == StrategyHindsight
}

// RegularizationFamily reports whether the strategy is importance-weighted
// regularization toward old parameters.
func (s Strategy) RegularizationFamily() bool {
	switch s {
	case StrategyEWC, StrategyPI, StrategyMAS, StrategyRWalk:
		return true
	}
	return false
}
