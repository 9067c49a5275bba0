// Package trainer orchestrates continual-learning runs: task sequencing,
// episodic memory maintenance, strategy dispatch and evaluation.
package trainer

import (
	"log/slog"
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/infrastructure/memory"
)

// avgImageDecay is the exponential moving-average decay for the per-class
// running average inputs, which seed hindsight anchor synthesis.
const avgImageDecay = 0.9

// runState is the mutable state of a single run. It is created fresh per
// run so that nothing leaks between repetitions.
type runState struct {
	rng     *rand.Rand
	learner continual.Learner
	log     *slog.Logger

	reservoir *memory.Reservoir
	ring      *memory.ClassRing
	anchors   *memory.AnchorStore

	// avgImage holds one EMA of mean inputs per class over the current
	// task. It resets at every task boundary.
	avgImage [][]float64
	avgSeen  []bool

	task        int
	numTasks    int
	numClasses  int
	inputDim    int
	sampleBatch int
	anchorEta   float64
}

func newRunState(strategy continual.Strategy, learner continual.Learner, rng *rand.Rand, log *slog.Logger, numTasks, numClasses, inputDim, memPerClass, sampleBatch int, anchorEta float64) *runState {
	s := &runState{
		rng:         rng,
		learner:     learner,
		log:         log,
		numTasks:    numTasks,
		numClasses:  numClasses,
		inputDim:    inputDim,
		sampleBatch: sampleBatch,
		anchorEta:   anchorEta,
	}
	if strategy.UsesReservoir() {
		s.reservoir = memory.NewReservoir(memPerClass * numClasses * numTasks)
	}
	if strategy.UsesRing() {
		s.ring = memory.NewClassRing(memPerClass, numClasses, numTasks)
	}
	if strategy.UsesAnchors() {
		s.anchors = memory.NewAnchorStore(numTasks, numClasses, inputDim)
	}
	return s
}

// sampleRing draws up to k examples from the ring. A short sample is a
// silent local degradation, surfaced only at debug level.
func (s *runState) sampleRing(k int) continual.Batch {
	b := s.ring.Sample(k, s.rng)
	if b.Len() < k {
		s.log.Debug("episodic memory underflow", "task", s.task, "requested", k, "returned", b.Len())
	}
	return b
}

// sampleReservoir draws up to k examples from the reservoir, with the same
// underflow handling as sampleRing.
func (s *runState) sampleReservoir(k int) continual.Batch {
	b := s.reservoir.Sample(k, s.rng)
	if b.Len() < k {
		s.log.Debug("episodic memory underflow", "task", s.task, "requested", k, "returned", b.Len())
	}
	return b
}

// observeAverage folds each class's mean input from the batch into that
// class's running average.
func (s *runState) observeAverage(batch continual.Batch) {
	if batch.Len() == 0 {
		return
	}
	if s.avgImage == nil {
		s.avgImage = make([][]float64, s.numClasses)
		s.avgSeen = make([]bool, s.numClasses)
	}

	dim := len(batch.X[0])
	sums := make([][]float64, s.numClasses)
	counts := make([]int, s.numClasses)
	for i := 0; i < batch.Len(); i++ {
		class := continual.ClassOf(batch.Y[i])
		if sums[class] == nil {
			sums[class] = make([]float64, dim)
		}
		counts[class]++
		for j, v := range batch.X[i] {
			sums[class][j] += v
		}
	}

	for class, sum := range sums {
		if counts[class] == 0 {
			continue
		}
		n := float64(counts[class])
		for j := range sum {
			sum[j] /= n
		}
		if !s.avgSeen[class] {
			s.avgImage[class] = sum
			s.avgSeen[class] = true
			continue
		}
		avg := s.avgImage[class]
		for j := range avg {
			avg[j] = avgImageDecay*avg[j] + (1-avgImageDecay)*sum[j]
		}
	}
}

// classAverage returns the class's running average input, if observed.
func (s *runState) classAverage(class int) ([]float64, bool) {
	if s.avgSeen == nil || !s.avgSeen[class] {
		return nil, false
	}
	return s.avgImage[class], true
}

// resetAverage clears the running averages at a task boundary.
func (s *runState) resetAverage() {
	s.avgImage = nil
	s.avgSeen = nil
}
