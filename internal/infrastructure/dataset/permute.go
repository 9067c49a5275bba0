// Package dataset constructs the task sequences fed to the orchestrator.
package dataset

import (
	"fmt"
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// Provider produces the task sequence for one run. Implementations must be
// deterministic given the rng.
type Provider interface {
	Tasks(rng *rand.Rand) ([]continual.Task, error)
}

// Base is the dataset the per-task permutations are applied to.
type Base struct {
	Train continual.Batch
	Test  continual.Batch
}

// InputDim returns the feature dimension of the base data.
func (b Base) InputDim() int {
	if b.Train.Len() == 0 {
		return 0
	}
	return len(b.Train.X[0])
}

// PermutedProvider builds numTasks tasks by applying a fixed random pixel
// permutation per task to every input row of the base splits. Labels are
// unchanged; all tasks share the same label space.
type PermutedProvider struct {
	Source   func(rng *rand.Rand) (Base, error)
	NumTasks int
}

// Tasks constructs the permuted task sequence.
func (p *PermutedProvider) Tasks(rng *rand.Rand) ([]continual.Task, error) {
	base, err := p.Source(rng)
	if err != nil {
		return nil, fmt.Errorf("building base dataset: %w", err)
	}
	dim := base.InputDim()
	if dim == 0 {
		return nil, fmt.Errorf("base dataset is empty")
	}

	tasks := make([]continual.Task, p.NumTasks)
	for t := range tasks {
		perm := rng.Perm(dim)
		tasks[t] = continual.Task{
			ID:    t,
			Train: permuteBatch(base.Train, perm),
			Test:  permuteBatch(base.Test, perm),
		}
	}
	return tasks, nil
}

func permuteBatch(b continual.Batch, perm []int) continual.Batch {
	x := make([][]float64, b.Len())
	for i, row := range b.X {
		out := make([]float64, len(row))
		for j, p := range perm {
			out[j] = row[p]
		}
		x[i] = out
	}
	// Labels are shared; permutation touches inputs only.
	return continual.Batch{X: x, Y: b.Y}
}
