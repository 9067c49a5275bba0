package memory

import (
	"math/rand"
	"testing"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{name: "spread", in: []float64{2, 4, 6}, want: []float64{0, 0.5, 1}},
		{name: "constant becomes zero vector", in: []float64{3, 3, 3}, want: []float64{0, 0, 0}},
		{name: "empty", in: []float64{}, want: []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(append([]float64(nil), tt.in...))
			if len(got) != len(tt.want) {
				t.Fatalf("Normalize length = %d, expected %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Normalize = %v, expected %v", got, tt.want)
				}
			}
		})
	}
}

func TestAnchorBoundsAfterNormalize(t *testing.T) {
	a := NewAnchorStore(2, 1, 4)
	a.SetTaskAnchors(1, continual.Batch{
		X: [][]float64{{-1, 0, 2, 5}},
		Y: [][]float64{{1}},
	})

	v, ok := a.Anchor(1, 0)
	if !ok {
		t.Fatalf("anchor not written")
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
	if lo != 0 || hi != 1 {
		t.Fatalf("anchor min/max = %v/%v, expected 0/1", lo, hi)
	}
}

func TestCaptureFirstSeenIsOnce(t *testing.T) {
	a := NewAnchorStore(2, 2, 2)

	a.CaptureFirstSeen(continual.Batch{
		X: [][]float64{{1, 3}, {2, 2}},
		Y: [][]float64{continual.OneHot(0, 2), continual.OneHot(0, 2)},
	})
	a.CaptureFirstSeen(continual.Batch{
		X: [][]float64{{9, 0}},
		Y: [][]float64{continual.OneHot(0, 2)},
	})

	// First-seen class-0 example {1,3} normalizes to {0,1}; a later offer
	// {9,0} would normalize to {1,0}.
	v, ok := a.Anchor(0, 0)
	if !ok {
		t.Fatalf("class-0 anchor missing")
	}
	if v[0] != 0 || v[1] != 1 {
		t.Fatalf("anchor overwritten: %v", v)
	}
	if _, ok := a.Anchor(0, 1); ok {
		t.Fatalf("class-1 anchor set without any class-1 example")
	}
	if a.Len() != 1 {
		t.Fatalf("Len() = %d, expected 1", a.Len())
	}
}

func TestAnchorSampleRespectsTaskBound(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := NewAnchorStore(3, 2, 1)
	for task := 0; task < 3; task++ {
		a.SetTaskAnchors(task, continual.Batch{
			X: [][]float64{{float64(task)}, {float64(task)}},
			Y: [][]float64{continual.OneHot(0, 2), continual.OneHot(1, 2)},
		})
	}

	s := a.Sample(2, 100, rng)
	if s.Len() != 4 {
		t.Fatalf("Sample(upToTask=2) returned %d anchors, expected 4", s.Len())
	}

	sub := a.Sample(2, 3, rng)
	if sub.Len() != 3 {
		t.Fatalf("Sample k=3 returned %d anchors", sub.Len())
	}
}
