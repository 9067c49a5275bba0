package memory

import (
	"math"
	"math/rand"
	"testing"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

func example(v float64, class, numClasses int) continual.Batch {
	return continual.Batch{
		X: [][]float64{{v}},
		Y: [][]float64{continual.OneHot(class, numClasses)},
	}
}

func TestReservoirFillsThenBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := NewReservoir(4)

	for i := 0; i < 100; i++ {
		r.Offer(example(float64(i), 0, 2), rng)
		if r.Len() > 4 {
			t.Fatalf("reservoir grew past capacity: %d", r.Len())
		}
	}
	if r.Len() != 4 {
		t.Fatalf("Len() = %d, expected 4", r.Len())
	}
	if r.Seen() != 100 {
		t.Fatalf("Seen() = %d, expected 100", r.Seen())
	}
}

func TestReservoirForcedOverwrite(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := NewReservoir(2)

	r.Offer(example(1, 0, 2), rng)
	r.Offer(example(2, 0, 2), rng)
	if r.x[0][0] != 1 || r.x[1][0] != 2 {
		t.Fatalf("buffer after two offers = %v, expected [e1 e2]", r.x)
	}

	// Forced "random index = 0" for the third offered example.
	r.seen++
	r.offerFull([]float64{3}, continual.OneHot(0, 2), 0)
	if r.x[0][0] != 3 || r.x[1][0] != 2 {
		t.Fatalf("buffer after forced overwrite = %v, expected [e3 e2]", r.x)
	}

	// An index outside the buffer discards the example.
	r.seen++
	r.offerFull([]float64{4}, continual.OneHot(0, 2), 2)
	if r.x[0][0] != 3 || r.x[1][0] != 2 {
		t.Fatalf("out-of-buffer index mutated the buffer: %v", r.x)
	}
}

// Over many seeded trials, the retention frequency of a late-stream example
// should converge to capacity/n.
func TestReservoirRetentionFrequency(t *testing.T) {
	const (
		capacity = 10
		n        = 50
		trials   = 4000
	)
	target := float64(capacity) / float64(n)

	retained := 0
	for trial := 0; trial < trials; trial++ {
		rng := rand.New(rand.NewSource(int64(trial)))
		r := NewReservoir(capacity)
		for i := 0; i < n; i++ {
			r.Offer(example(float64(i), 0, 2), rng)
		}
		// Track example 25, offered mid-stream.
		for _, row := range r.x {
			if row[0] == 25 {
				retained++
				break
			}
		}
	}

	freq := float64(retained) / float64(trials)
	if math.Abs(freq-target) > 0.03 {
		t.Fatalf("retention frequency = %.4f, expected about %.4f", freq, target)
	}
}

func TestReservoirSample(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewReservoir(8)
	for i := 0; i < 5; i++ {
		r.Offer(example(float64(i), 0, 2), rng)
	}

	t.Run("k below resident draws distinct residents", func(t *testing.T) {
		s := r.Sample(3, rng)
		if s.Len() != 3 {
			t.Fatalf("Sample(3) returned %d examples", s.Len())
		}
		seen := map[float64]bool{}
		for _, row := range s.X {
			if row[0] < 0 || row[0] > 4 {
				t.Fatalf("sampled value %v not in resident set", row[0])
			}
			if seen[row[0]] {
				t.Fatalf("duplicate example %v in sample", row[0])
			}
			seen[row[0]] = true
		}
	})

	t.Run("k at or above resident returns all in index order", func(t *testing.T) {
		s := r.Sample(10, rng)
		if s.Len() != 5 {
			t.Fatalf("Sample(10) returned %d examples, expected 5", s.Len())
		}
		for i, row := range s.X {
			if row[0] != float64(i) {
				t.Fatalf("index order broken at %d: %v", i, row[0])
			}
		}
	})
}

func TestReservoirDeterminism(t *testing.T) {
	build := func(seed int64) *Reservoir {
		rng := rand.New(rand.NewSource(seed))
		r := NewReservoir(3)
		for i := 0; i < 40; i++ {
			r.Offer(example(float64(i), i%2, 2), rng)
		}
		return r
	}

	a, b := build(42), build(42)
	for i := range a.x {
		if a.x[i][0] != b.x[i][0] {
			t.Fatalf("same seed produced different buffers at slot %d: %v vs %v", i, a.x[i], b.x[i])
		}
	}
}
