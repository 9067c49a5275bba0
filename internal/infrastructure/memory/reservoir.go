// Package memory provides the bounded episodic-memory buffers used by
// replay-based continual-learning strategies.
package memory

import (
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/shared"
)

// Reservoir keeps a uniform random sample of fixed capacity from the stream
// of offered examples. After n examples have been offered in total, each of
// them resides in the buffer with probability min(1, capacity/n).
type Reservoir struct {
	capacity int
	x        [][]float64
	y        [][]float64
	seen     int
}

// NewReservoir creates a reservoir buffer with the given capacity.
func NewReservoir(capacity int) *Reservoir {
	return &Reservoir{
		capacity: capacity,
		x:        make([][]float64, 0, capacity),
		y:        make([][]float64, 0, capacity),
	}
}

// Offer admits the batch under reservoir sampling, in batch order. Examples
// are copied by value.
func (r *Reservoir) Offer(batch continual.Batch, rng *rand.Rand) {
	for i := 0; i < batch.Len(); i++ {
		r.seen++
		if len(r.x) < r.capacity {
			r.x = append(r.x, shared.CloneVector(batch.X[i]))
			r.y = append(r.y, shared.CloneVector(batch.Y[i]))
			continue
		}
		r.offerFull(batch.X[i], batch.Y[i], rng.Intn(r.seen))
	}
}

// offerFull overwrites slot idx with the example when idx falls inside the
// buffer, and discards it otherwise. idx must be drawn uniformly from
// [0, seen).
func (r *Reservoir) offerFull(x, y []float64, idx int) {
	if idx < r.capacity {
		r.x[idx] = shared.CloneVector(x)
		r.y[idx] = shared.CloneVector(y)
	}
}

// Sample returns up to k resident examples drawn without replacement. When
// k is at least the resident count, every resident example is returned in
// index order.
func (r *Reservoir) Sample(k int, rng *rand.Rand) continual.Batch {
	n := len(r.x)
	if k >= n {
		return continual.Batch{X: r.x[:n], Y: r.y[:n]}
	}
	perm := rng.Perm(n)[:k]
	x := make([][]float64, k)
	y := make([][]float64, k)
	for i, idx := range perm {
		x[i] = r.x[idx]
		y[i] = r.y[idx]
	}
	return continual.Batch{X: x, Y: y}
}

// Len returns the number of resident examples.
func (r *Reservoir) Len() int {
	return len(r.x)
}

// Seen returns the total number of examples offered so far.
func (r *Reservoir) Seen() int {
	return r.seen
}
