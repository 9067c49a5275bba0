package trainer

import (
	"fmt"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// Meta-replay constants: learning-rate amplification for the current-batch
// step and the reptile interpolation coefficient.
const (
	merAmplification = 10
	merBeta          = 0.1
)

// policy is the per-strategy training behavior. step performs one
// iteration and returns its loss; afterTask runs the strategy's inter-task
// update once a task's training loop finishes.
type policy interface {
	step(s *runState, batch continual.Batch, p continual.StepParams) float64
	afterTask(s *runState)
}

// newPolicy resolves the strategy to its policy and verifies the learner
// carries every capability the strategy dispatches on.
func newPolicy(strategy continual.Strategy, learner continual.Learner) (policy, error) {
	switch strategy {
	case continual.StrategyVanilla,
		continual.StrategyEWC,
		continual.StrategyPI,
		continual.StrategyMAS,
		continual.StrategyRWalk:
		// The regularization family shares the vanilla step: the penalty
		// and importance bookkeeping live inside the learner.
		return plainPolicy{}, nil

	case continual.StrategyFeatureExtraction:
		return featureExtractionPolicy{}, nil

	case continual.StrategyAGEM:
		if _, ok := learner.(continual.GradientProjector); !ok {
			return nil, fmt.Errorf("%w: %s requires gradient projection", continual.ErrIncompatibleLearner, strategy)
		}
		return agemPolicy{}, nil

	case continual.StrategyERReservoir:
		return reservoirReplayPolicy{}, nil

	case continual.StrategyERRing:
		return ringReplayPolicy{}, nil

	case continual.StrategyMER:
		if _, ok := learner.(continual.MetaBlender); !ok {
			return nil, fmt.Errorf("%w: %s requires weight snapshotting", continual.ErrIncompatibleLearner, strategy)
		}
		return merPolicy{}, nil

	case continual.StrategyHindsight:
		if _, ok := learner.(continual.AnchorLearner); !ok {
			return nil, fmt.Errorf("%w: %s requires anchor training", continual.ErrIncompatibleLearner, strategy)
		}
		if _, ok := learner.(continual.EmbeddingScorer); !ok {
			return nil, fmt.Errorf("%w: %s requires embedding scoring", continual.ErrIncompatibleLearner, strategy)
		}
		return hindsightPolicy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", continual.ErrUnknownStrategy, strategy)
}

// plainPolicy trains on the current batch only.
type plainPolicy struct{}

func (plainPolicy) step(s *runState, batch continual.Batch, p continual.StepParams) float64 {
	return s.learner.TrainStep(batch, p)
}

func (plainPolicy) afterTask(*runState) {}

// featureExtractionPolicy trains the whole network on the first task and
// only the output layer afterwards.
type featureExtractionPolicy struct{}

func (featureExtractionPolicy) step(s *runState, batch continual.Batch, p continual.StepParams) float64 {
	if s.task == 0 {
		return s.learner.TrainStep(batch, p)
	}
	return s.learner.TrainClassifierStep(batch, p)
}

func (featureExtractionPolicy) afterTask(*runState) {}

// agemPolicy projects each update against a reference gradient computed on
// an episodic sample, then admits the batch to the ring. The first task
// trains unconstrained: memory holds only current-task examples until then.
type agemPolicy struct{}

func (agemPolicy) step(s *runState, batch continual.Batch, p continual.StepParams) float64 {
	if s.task > 0 && s.ring.Len() > 0 {
		ref := s.sampleRing(s.sampleBatch)
		s.learner.(continual.GradientProjector).StoreReferenceGradient(ref)
	}
	loss := s.learner.TrainStep(batch, p)
	s.ring.Offer(batch)
	return loss
}

func (agemPolicy) afterTask(*runState) {}

// reservoirReplayPolicy trains on the current batch joined with a reservoir
// sample, then admits the batch to the reservoir.
type reservoirReplayPolicy struct{}

func (reservoirReplayPolicy) step(s *runState, batch continual.Batch, p continual.StepParams) float64 {
	train := batch
	if s.reservoir.Len() > 0 {
		train = continual.Concat(batch, s.sampleReservoir(s.sampleBatch))
	}
	loss := s.learner.TrainStep(train, p)
	s.reservoir.Offer(batch, s.rng)
	return loss
}

func (reservoirReplayPolicy) afterTask(*runState) {}

// ringReplayPolicy trains on the current batch joined with a ring sample,
// then admits the batch to the ring.
type ringReplayPolicy struct{}

func (ringReplayPolicy) step(s *runState, batch continual.Batch, p continual.StepParams) float64 {
	train := batch
	if s.ring.Len() > 0 {
		train = continual.Concat(batch, s.sampleRing(s.sampleBatch))
	}
	loss := s.learner.TrainStep(train, p)
	s.ring.Offer(batch)
	return loss
}

func (ringReplayPolicy) afterTask(*runState) {}

// merPolicy runs one single-example micro-step per drawn memory example,
// then one amplified step on the current batch, interpolating back toward
// the pre-step weights. Only the final current-batch step carries the
// amplified learning rate.
type merPolicy struct{}

func (merPolicy) step(s *runState, batch continual.Batch, p continual.StepParams) float64 {
	blender := s.learner.(continual.MetaBlender)
	blender.SnapshotWeights()

	if s.reservoir.Len() > 0 {
		mem := s.sampleReservoir(s.sampleBatch)
		for i := 0; i < mem.Len(); i++ {
			s.learner.TrainStep(mem.Example(i), p)
		}
	}

	amplified := p
	amplified.LearningRate = p.LearningRate * merAmplification
	loss := s.learner.TrainStep(batch, amplified)

	blender.ReptileBlend(merBeta)
	s.reservoir.Offer(batch, s.rng)
	return loss
}

func (merPolicy) afterTask(*runState) {}

// hindsightPolicy replays from the ring while constraining drift on anchors
// of past tasks, then synthesizes this task's anchors at the boundary.
type hindsightPolicy struct{}

func (hindsightPolicy) step(s *runState, batch continual.Batch, p continual.StepParams) float64 {
	if s.task == 0 {
		s.anchors.CaptureFirstSeen(batch)
	}
	s.observeAverage(batch)

	train := batch
	if s.ring.Len() > 0 {
		train = continual.Concat(batch, s.sampleRing(s.sampleBatch))
	}

	var loss float64
	if anchorBatch := s.anchors.Sample(s.task, s.sampleBatch, s.rng); anchorBatch.Len() > 0 {
		al := s.learner.(continual.AnchorLearner).TrainAnchorStep(train, anchorBatch, p)
		loss = al.Total
	} else {
		loss = s.learner.TrainStep(train, p)
	}

	s.ring.Offer(batch)
	return loss
}

// afterTask synthesizes one anchor per class from the finished task's
// memory segment: the class's running average input blended with the
// learner's confidence-weighted mean embedding. Classes absent from memory
// get a zero anchor. Task 0's slots keep the first-seen captures untouched.
func (hindsightPolicy) afterTask(s *runState) {
	if s.task == 0 {
		return
	}

	scorer := s.learner.(continual.EmbeddingScorer)
	slice := s.ring.TaskSlice(s.task)

	byClass := make([][]int, s.numClasses)
	for i := 0; i < slice.Len(); i++ {
		class := continual.ClassOf(slice.Y[i])
		byClass[class] = append(byClass[class], i)
	}

	x := make([][]float64, s.numClasses)
	y := make([][]float64, s.numClasses)
	for class := 0; class < s.numClasses; class++ {
		y[class] = continual.OneHot(class, s.numClasses)
		avg, ok := s.classAverage(class)
		if len(byClass[class]) == 0 || !ok {
			x[class] = make([]float64, s.inputDim)
			continue
		}
		phi := scorer.MeanEmbedding(slice.Gather(byClass[class]))
		anchor := make([]float64, len(phi))
		for i := range anchor {
			anchor[i] = (1-s.anchorEta)*avg[i] + s.anchorEta*phi[i]
		}
		x[class] = anchor
	}
	s.anchors.SetTaskAnchors(s.task, continual.Batch{X: x, Y: y})
}
