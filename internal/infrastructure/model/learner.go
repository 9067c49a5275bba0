package model

import (
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/shared"
)

// Config configures the reference learner.
type Config struct {
	// Arch is the network architecture.
	Arch Arch

	// InputDim is the input feature dimension.
	InputDim int

	// NumClasses is the size of the shared label space.
	NumClasses int

	// Optimizer is one of Optimizers.
	Optimizer string

	// SynapticStrength is the regularization strength (lambda) applied to
	// the importance penalty.
	SynapticStrength float64

	// FisherEMADecay is the exponential moving-average decay for online
	// Fisher estimates.
	FisherEMADecay float64

	// FisherUpdateAfter is the step interval at which running importance
	// is folded from the temporary accumulator.
	FisherUpdateAfter int

	// AnchorAlpha weighs the anchor-consistency loss against the task
	// loss in the combined hindsight objective.
	AnchorAlpha float64
}

// Learner is the reference implementation of the model collaborator. It is
// not safe for concurrent use; each run owns its learner exclusively.
type Learner struct {
	net     *network
	opt     Optimizer
	tracker importanceTracker
	lambda  float64
	alpha   float64

	checkpoint   []float64
	refGrad      []float64
	metaSnapshot []float64
}

// New creates a learner for the given strategy. The importance tracker is
// attached only for the regularization family; other strategies carry none.
func New(cfg Config, strategy continual.Strategy, rng *rand.Rand) (*Learner, error) {
	net := newNetwork(cfg.Arch, cfg.InputDim, cfg.NumClasses, rng)
	opt, err := NewOptimizer(cfg.Optimizer, len(net.params))
	if err != nil {
		return nil, err
	}

	l := &Learner{
		net:    net,
		opt:    opt,
		lambda: cfg.SynapticStrength,
		alpha:  cfg.AnchorAlpha,
	}
	if strategy.RegularizationFamily() {
		l.tracker = newTracker(strategy, len(net.params), cfg.FisherUpdateAfter, cfg.FisherEMADecay)
	}
	return l, nil
}

// TrainStep performs one gradient step and returns the loss including any
// regularization penalty. When a reference gradient is stored, the update
// is projected so it cannot increase loss on the memory sample.
func (l *Learner) TrainStep(batch continual.Batch, p continual.StepParams) float64 {
	loss, grads := l.net.lossAndGrads(batch)

	if l.tracker != nil {
		regLoss, regGrad := l.tracker.penalty(l.net.params)
		loss += l.lambda * regLoss
		for i := range grads {
			grads[i] += l.lambda * regGrad[i]
		}
	}

	if l.refGrad != nil {
		project(grads, l.refGrad)
	}

	l.applyTracked(grads, p)
	return loss
}

// TrainClassifierStep updates only the output layer.
func (l *Learner) TrainClassifierStep(batch continual.Batch, p continual.StepParams) float64 {
	loss, grads := l.net.lossAndGrads(batch)
	for i := 0; i < l.net.lastLayerStart(); i++ {
		grads[i] = 0
	}
	l.opt.Apply(l.net.params, grads, p.LearningRate)
	return loss
}

// TrainAnchorStep trains on the combined objective: cross-entropy over the
// batch plus an anchor-consistency cross-entropy over the anchor sample.
func (l *Learner) TrainAnchorStep(batch, anchors continual.Batch, p continual.StepParams) continual.AnchorLoss {
	taskLoss, grads := l.net.lossAndGrads(batch)
	anchorLoss, anchorGrads := l.net.lossAndGrads(anchors)

	for i := range grads {
		grads[i] += l.alpha * anchorGrads[i]
	}
	l.applyTracked(grads, p)

	return continual.AnchorLoss{
		Task:   taskLoss,
		Anchor: anchorLoss,
		Total:  taskLoss + l.alpha*anchorLoss,
	}
}

func (l *Learner) applyTracked(grads []float64, p continual.StepParams) {
	if l.tracker == nil {
		l.opt.Apply(l.net.params, grads, p.LearningRate)
		return
	}
	before := shared.CloneVector(l.net.params)
	l.opt.Apply(l.net.params, grads, p.LearningRate)
	l.tracker.observe(before, l.net.params, grads, p.Iteration)
}

// Evaluate returns accuracy on the batch with all classes active.
func (l *Learner) Evaluate(batch continual.Batch) float64 {
	if batch.Len() == 0 {
		return 0
	}
	correct := 0
	for e := 0; e < batch.Len(); e++ {
		if l.net.predict(batch.X[e]) == continual.ClassOf(batch.Y[e]) {
			correct++
		}
	}
	return float64(correct) / float64(batch.Len())
}

// RefreshImportance recomputes the running importance from a full pass over
// the task's training set. Strategies without a tracker treat this as a
// no-op.
func (l *Learner) RefreshImportance(data continual.Batch) {
	if l.tracker != nil {
		l.tracker.consolidate(l.net, data)
	}
}

// SaveCheckpoint snapshots the current parameters.
func (l *Learner) SaveCheckpoint() {
	l.checkpoint = shared.CloneVector(l.net.params)
}

// RestoreCheckpoint restores the last snapshot; without one it is a no-op.
func (l *Learner) RestoreCheckpoint() {
	if l.checkpoint != nil {
		copy(l.net.params, l.checkpoint)
	}
}

// ResetOptimizer clears optimizer accumulators between tasks. Importance
// state is untouched.
func (l *Learner) ResetOptimizer() {
	l.opt.Reset()
}

// StoreReferenceGradient computes and keeps the gradient on the memory
// sample, used to project subsequent updates.
func (l *Learner) StoreReferenceGradient(batch continual.Batch) {
	_, grads := l.net.lossAndGrads(batch)
	l.refGrad = grads
}

// project alters grads in place so the update cannot increase loss on the
// reference batch: when the inner product with the reference gradient is
// negative, the violating component is removed.
func project(grads, ref []float64) {
	var dot, norm float64
	for i := range grads {
		dot += grads[i] * ref[i]
		norm += ref[i] * ref[i]
	}
	if dot >= 0 || norm == 0 {
		return
	}
	scale := dot / norm
	for i := range grads {
		grads[i] -= scale * ref[i]
	}
}

// MeanEmbedding returns the confidence-weighted mean input over the batch,
// the phi_hat score consumed by anchor generation.
func (l *Learner) MeanEmbedding(batch continual.Batch) []float64 {
	phi := make([]float64, l.net.sizes[0])
	if batch.Len() == 0 {
		return phi
	}
	var total float64
	for e := 0; e < batch.Len(); e++ {
		acts := l.net.forward(batch.X[e])
		probs := softmax(acts[l.net.layers()])
		w := probs[continual.ClassOf(batch.Y[e])]
		for i, x := range batch.X[e] {
			phi[i] += w * x
		}
		total += w
	}
	if total > 0 {
		for i := range phi {
			phi[i] /= total
		}
	}
	return phi
}

// SnapshotWeights stores the pre-micro-step parameters for the reptile
// blend.
func (l *Learner) SnapshotWeights() {
	l.metaSnapshot = shared.CloneVector(l.net.params)
}

// ReptileBlend interpolates the current parameters toward the snapshot:
// theta = snapshot + beta * (theta - snapshot).
func (l *Learner) ReptileBlend(beta float64) {
	if l.metaSnapshot == nil {
		return
	}
	for i := range l.net.params {
		l.net.params[i] = l.metaSnapshot[i] + beta*(l.net.params[i]-l.metaSnapshot[i])
	}
}

// Params exposes a copy of the flat parameter vector.
func (l *Learner) Params() []float64 {
	return shared.CloneVector(l.net.params)
}

// Compile-time checks that the learner satisfies every collaborator
// capability the strategies dispatch on.
var (
	_ continual.Learner           = (*Learner)(nil)
	_ continual.GradientProjector = (*Learner)(nil)
	_ continual.EmbeddingScorer   = (*Learner)(nil)
	_ continual.MetaBlender       = (*Learner)(nil)
	_ continual.AnchorLearner     = (*Learner)(nil)
)
