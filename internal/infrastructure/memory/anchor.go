package memory

import (
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/shared"
)

// AnchorStore holds one synthetic per-class representative input per task:
// a contiguous block of numClasses slots is reserved for every task index
// and populated exactly once. Anchor inputs are min-max normalized to [0,1]
// per anchor; a class with no resident examples yields the zero vector.
type AnchorStore struct {
	numTasks   int
	numClasses int
	dim        int

	x       [][]float64
	y       [][]float64
	written []bool

	firstSeen []bool // task-0 capture flags, one per class
}

// NewAnchorStore creates an anchor store for numTasks x numClasses slots of
// the given input dimension.
func NewAnchorStore(numTasks, numClasses, dim int) *AnchorStore {
	total := numTasks * numClasses
	return &AnchorStore{
		numTasks:   numTasks,
		numClasses: numClasses,
		dim:        dim,
		x:          make([][]float64, total),
		y:          make([][]float64, total),
		written:    make([]bool, total),
		firstSeen:  make([]bool, numClasses),
	}
}

// CaptureFirstSeen fills task 0's anchor slots from the first-seen example
// of each class in the batch. Already-captured classes are skipped, so the
// slots are populated exactly once during task 0's first pass.
func (a *AnchorStore) CaptureFirstSeen(batch continual.Batch) {
	for i := 0; i < batch.Len(); i++ {
		class := continual.ClassOf(batch.Y[i])
		if a.firstSeen[class] {
			continue
		}
		a.firstSeen[class] = true
		a.set(0, class, batch.X[i], batch.Y[i])
	}
}

// SetTaskAnchors writes the per-class representatives for the given task.
// anchors must hold exactly one row per class, in class order.
func (a *AnchorStore) SetTaskAnchors(task int, anchors continual.Batch) {
	for class := 0; class < a.numClasses && class < anchors.Len(); class++ {
		a.set(task, class, anchors.X[class], anchors.Y[class])
	}
}

func (a *AnchorStore) set(task, class int, x, y []float64) {
	idx := task*a.numClasses + class
	a.x[idx] = Normalize(shared.CloneVector(x))
	a.y[idx] = shared.CloneVector(y)
	a.written[idx] = true
}

// Sample returns up to k anchors of tasks < upToTask, drawn without
// replacement. When k covers every such anchor they are returned in slot
// order.
func (a *AnchorStore) Sample(upToTask, k int, rng *rand.Rand) continual.Batch {
	var indices []int
	limit := upToTask * a.numClasses
	for idx := 0; idx < limit && idx < len(a.written); idx++ {
		if a.written[idx] {
			indices = append(indices, idx)
		}
	}
	if k < len(indices) {
		perm := rng.Perm(len(indices))[:k]
		picked := make([]int, k)
		for i, p := range perm {
			picked[i] = indices[p]
		}
		indices = picked
	}
	x := make([][]float64, len(indices))
	y := make([][]float64, len(indices))
	for i, idx := range indices {
		x[i] = a.x[idx]
		y[i] = a.y[idx]
	}
	return continual.Batch{X: x, Y: y}
}

// Len returns the number of populated anchor slots.
func (a *AnchorStore) Len() int {
	n := 0
	for _, ok := range a.written {
		if ok {
			n++
		}
	}
	return n
}

// Anchor returns the stored anchor for (task, class) and whether it is set.
func (a *AnchorStore) Anchor(task, class int) ([]float64, bool) {
	idx := task*a.numClasses + class
	if idx >= len(a.written) || !a.written[idx] {
		return nil, false
	}
	return a.x[idx], true
}

// Normalize min-max normalizes v in place to [0,1]. A constant vector
// (including the degenerate empty-class case) becomes the zero vector.
func Normalize(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	lo, hi := v[0], v[0]
	for _, f := range v {
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	if hi == lo {
		for i := range v {
			v[i] = 0
		}
		return v
	}
	for i := range v {
		v[i] = (v[i] - lo) / (hi - lo)
	}
	return v
}
