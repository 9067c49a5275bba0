package model

import (
	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// importanceTracker is the per-parameter sensitivity estimate behind the
// regularization family of strategies. Trackers accumulate state across
// tasks and are never reset within a run.
type importanceTracker interface {
	// penalty returns the regularization loss and its gradient for the
	// current parameters. The synaptic strength is applied by the caller.
	penalty(params []float64) (float64, []float64)

	// observe is called once per training step with the parameters before
	// and after the optimizer update and the applied gradient.
	observe(before, after, grads []float64, iter int)

	// consolidate refreshes the running importance from a full pass over
	// the just-finished task's training set and snapshots the reference
	// parameters.
	consolidate(net *network, data continual.Batch)
}

func newTracker(strategy continual.Strategy, dim, updateAfter int, decay float64) importanceTracker {
	switch strategy {
	case continual.StrategyEWC:
		return &ewcTracker{
			star:        make([]float64, dim),
			running:     make([]float64, dim),
			tmp:         make([]float64, dim),
			decay:       decay,
			updateAfter: updateAfter,
		}
	case continual.StrategyPI:
		return &piTracker{
			star:  make([]float64, dim),
			omega: make([]float64, dim),
			path:  make([]float64, dim),
			xi:    0.1,
		}
	case continual.StrategyMAS:
		return &masTracker{
			star:  make([]float64, dim),
			omega: make([]float64, dim),
		}
	case continual.StrategyRWalk:
		return &rwalkTracker{
			star:        make([]float64, dim),
			running:     make([]float64, dim),
			tmp:         make([]float64, dim),
			score:       make([]float64, dim),
			path:        make([]float64, dim),
			lastParams:  make([]float64, dim),
			decay:       decay,
			updateAfter: updateAfter,
			xi:          0.1,
		}
	}
	return nil
}

// quadraticPenalty is the shared loss form of the family:
// 0.5 * sum_i(w_i * (theta_i - star_i)^2).
func quadraticPenalty(params, star, weight []float64) (float64, []float64) {
	grad := make([]float64, len(params))
	var loss float64
	for i := range params {
		diff := params[i] - star[i]
		loss += 0.5 * weight[i] * diff * diff
		grad[i] = weight[i] * diff
	}
	return loss, grad
}

// ewcTracker maintains an online (EMA) diagonal Fisher estimate.
type ewcTracker struct {
	star        []float64
	running     []float64
	tmp         []float64
	decay       float64
	updateAfter int
	started     bool
}

func (t *ewcTracker) penalty(params []float64) (float64, []float64) {
	return quadraticPenalty(params, t.star, t.running)
}

func (t *ewcTracker) observe(before, after, grads []float64, iter int) {
	if !t.started {
		// Initial running Fisher from the very first gradient.
		for i := range t.running {
			t.running[i] = grads[i] * grads[i]
		}
		t.started = true
	}
	for i := range t.tmp {
		t.tmp[i] = t.decay*t.tmp[i] + (1-t.decay)*grads[i]*grads[i]
	}
	if (iter+1)%t.updateAfter == 0 {
		for i := range t.running {
			t.running[i] = t.decay*t.running[i] + (1-t.decay)*t.tmp[i]
			t.tmp[i] = 0
		}
	}
}

func (t *ewcTracker) consolidate(net *network, data continual.Batch) {
	copy(t.star, net.params)
}

// piTracker is path-integral synaptic intelligence: the per-parameter
// contribution to loss decrease along the training trajectory, normalized
// by total drift at task boundaries.
type piTracker struct {
	star  []float64
	omega []float64
	path  []float64
	xi    float64
}

func (t *piTracker) penalty(params []float64) (float64, []float64) {
	return quadraticPenalty(params, t.star, t.omega)
}

func (t *piTracker) observe(before, after, grads []float64, iter int) {
	for i := range t.path {
		t.path[i] += -grads[i] * (after[i] - before[i])
	}
}

func (t *piTracker) consolidate(net *network, data continual.Batch) {
	for i := range t.omega {
		drift := net.params[i] - t.star[i]
		contribution := t.path[i] / (drift*drift + t.xi)
		if contribution > 0 {
			t.omega[i] += contribution
		}
		t.path[i] = 0
	}
	copy(t.star, net.params)
}

// masTracker estimates importance from the sensitivity of the squared
// output norm, refreshed from a full task pass at every boundary.
type masTracker struct {
	star      []float64
	omega     []float64
	taskCount int
}

func (t *masTracker) penalty(params []float64) (float64, []float64) {
	return quadraticPenalty(params, t.star, t.omega)
}

func (t *masTracker) observe(before, after, grads []float64, iter int) {}

func (t *masTracker) consolidate(net *network, data continual.Batch) {
	fresh := net.squaredNormGrads(data)
	n := float64(t.taskCount)
	for i := range t.omega {
		t.omega[i] = (t.omega[i]*n + fresh[i]) / (n + 1)
	}
	t.taskCount++
	copy(t.star, net.params)
}

// rwalkTracker combines the online Fisher of EWC with a Riemannian path
// score accumulated in parameter space.
type rwalkTracker struct {
	star        []float64
	running     []float64
	tmp         []float64
	score       []float64
	path        []float64
	lastParams  []float64
	decay       float64
	updateAfter int
	xi          float64
	started     bool
}

func (t *rwalkTracker) penalty(params []float64) (float64, []float64) {
	weight := make([]float64, len(t.running))
	for i := range weight {
		weight[i] = t.running[i] + t.score[i]
	}
	return quadraticPenalty(params, t.star, weight)
}

func (t *rwalkTracker) observe(before, after, grads []float64, iter int) {
	if !t.started {
		for i := range t.running {
			t.running[i] = grads[i] * grads[i]
		}
		copy(t.lastParams, before)
		t.started = true
	}
	for i := range t.tmp {
		t.tmp[i] = t.decay*t.tmp[i] + (1-t.decay)*grads[i]*grads[i]
		t.path[i] += -grads[i] * (after[i] - before[i])
	}
	if (iter+1)%t.updateAfter == 0 {
		for i := range t.running {
			// Score uses the distance travelled on the manifold defined by
			// the running Fisher since the last update.
			delta := after[i] - t.lastParams[i]
			denom := 0.5*t.running[i]*delta*delta + t.xi
			contribution := t.path[i] / denom
			if contribution > 0 {
				t.score[i] += contribution
			}
			t.running[i] = t.decay*t.running[i] + (1-t.decay)*t.tmp[i]
			t.tmp[i] = 0
			t.path[i] = 0
			t.lastParams[i] = after[i]
		}
	}
}

func (t *rwalkTracker) consolidate(net *network, data continual.Batch) {
	// Halve the accumulated score so early tasks do not dominate, then
	// re-anchor at the current parameters.
	for i := range t.score {
		t.score[i] *= 0.5
	}
	copy(t.star, net.params)
	copy(t.lastParams, net.params)
}
