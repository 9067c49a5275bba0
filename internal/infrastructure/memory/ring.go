package memory

import (
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/shared"
)

// ClassRing is the class-balanced FIFO episodic memory. Storage is split
// into one segment per task; the active segment holds one fixed-size ring
// per class with capacity memPerClass. Offers route each example to its
// label's ring and evict strictly oldest-first once the ring is full;
// cross-class capacity is never borrowed. AdvanceTask freezes the active
// segment and moves writes to the next one.
//
// Fill counters and write cursors live on the buffer itself and are mutated
// in place; sampling always sees the true resident set, including the
// current task's examples.
type ClassRing struct {
	memPerClass int
	numClasses  int
	numTasks    int

	x       [][]float64
	y       [][]float64
	written []bool

	activeTask int
	cursor     []int // per class, within the active segment
	fill       []int // per class, within the active segment
	resident   int
}

// NewClassRing creates a ring buffer with memPerClass slots per class per
// task segment.
func NewClassRing(memPerClass, numClasses, numTasks int) *ClassRing {
	total := memPerClass * numClasses * numTasks
	return &ClassRing{
		memPerClass: memPerClass,
		numClasses:  numClasses,
		numTasks:    numTasks,
		x:           make([][]float64, total),
		y:           make([][]float64, total),
		written:     make([]bool, total),
		cursor:      make([]int, numClasses),
		fill:        make([]int, numClasses),
	}
}

// slot returns the storage index for ring position pos of class within the
// active segment.
func (b *ClassRing) slot(class, pos int) int {
	segment := b.activeTask * b.numClasses * b.memPerClass
	return segment + class*b.memPerClass + pos
}

// Offer routes each example to the ring for its label's class.
func (b *ClassRing) Offer(batch continual.Batch) {
	for i := 0; i < batch.Len(); i++ {
		class := continual.ClassOf(batch.Y[i])
		idx := b.slot(class, b.cursor[class])
		if !b.written[idx] {
			b.written[idx] = true
			b.resident++
		}
		b.x[idx] = shared.CloneVector(batch.X[i])
		b.y[idx] = shared.CloneVector(batch.Y[i])
		b.cursor[class] = (b.cursor[class] + 1) % b.memPerClass
		if b.fill[class] < b.memPerClass {
			b.fill[class]++
		}
	}
}

// AdvanceTask freezes the active segment and directs subsequent offers to
// the next task's segment. Advancing past the last segment keeps writing to
// it.
func (b *ClassRing) AdvanceTask() {
	if b.activeTask < b.numTasks-1 {
		b.activeTask++
	}
	for c := range b.cursor {
		b.cursor[c] = 0
		b.fill[c] = 0
	}
}

// Sample returns up to k resident examples drawn without replacement across
// all segments. When k is at least the resident count, every resident
// example is returned in index order.
func (b *ClassRing) Sample(k int, rng *rand.Rand) continual.Batch {
	indices := b.residentSlots()
	if k < len(indices) {
		perm := rng.Perm(len(indices))[:k]
		picked := make([]int, k)
		for i, p := range perm {
			picked[i] = indices[p]
		}
		indices = picked
	}
	return b.gather(indices)
}

// ClassSample returns up to k resident examples of the given class, drawn
// without replacement across all segments.
func (b *ClassRing) ClassSample(class, k int, rng *rand.Rand) continual.Batch {
	var indices []int
	for idx, ok := range b.written {
		if ok && continual.ClassOf(b.y[idx]) == class {
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
	return b.gather(indices)
}

// TaskSlice returns every resident example of the given task's segment in
// index order. Used when probing retention directly on episodic memory.
func (b *ClassRing) TaskSlice(task int) continual.Batch {
	segLen := b.numClasses * b.memPerClass
	lo := task * segLen
	var indices []int
	for idx := lo; idx < lo+segLen; idx++ {
		if b.written[idx] {
			indices = append(indices, idx)
		}
	}
	return b.gather(indices)
}

// ClassFill returns the resident count of a class within the active segment.
func (b *ClassRing) ClassFill(class int) int {
	return b.fill[class]
}

// Len returns the total number of resident examples across all segments.
func (b *ClassRing) Len() int {
	return b.resident
}

func (b *ClassRing) residentSlots() []int {
	indices := make([]int, 0, b.resident)
	for idx, ok := range b.written {
		if ok {
			indices = append(indices, idx)
		}
	}
	return indices
}

func (b *ClassRing) gather(indices []int) continual.Batch {
	x := make([][]float64, len(indices))
	y := make([][]float64, len(indices))
	for i, idx := range indices {
		x[i] = b.x[idx]
		y[i] = b.y[idx]
	}
	return continual.Batch{X: x, Y: y}
}
