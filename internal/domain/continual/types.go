// Package continual provides domain types for continual-learning benchmarks.
package continual

// Batch is a parallel pair of input rows and one-hot label rows.
// Slices are shared, not copied; callers that need ownership copy explicitly.
type Batch struct {
	X [][]float64 `json:"x"`
	Y [][]float64 `json:"y"`
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	return len(b.X)
}

// Slice returns the sub-batch [lo, hi). The rows are shared with b.
func (b Batch) Slice(lo, hi int) Batch {
	return Batch{X: b.X[lo:hi], Y: b.Y[lo:hi]}
}

// Example returns the single-example batch at index i.
func (b Batch) Example(i int) Batch {
	return b.Slice(i, i+1)
}

// Concat returns a new batch containing all rows of a followed by all rows of b.
func Concat(a, b Batch) Batch {
	x := make([][]float64, 0, len(a.X)+len(b.X))
	y := make([][]float64, 0, len(a.Y)+len(b.Y))
	x = append(append(x, a.X...), b.X...)
	y = append(append(y, a.Y...), b.Y...)
	return Batch{X: x, Y: y}
}

// Gather returns the batch formed by the rows of b at the given indices.
func (b Batch) Gather(indices []int) Batch {
	x := make([][]float64, len(indices))
	y := make([][]float64, len(indices))
	for i, idx := range indices {
		x[i] = b.X[idx]
		y[i] = b.Y[idx]
	}
	return Batch{X: x, Y: y}
}

// ClassOf returns the class index encoded by a one-hot label row.
func ClassOf(label []float64) int {
	best := 0
	for i, v := range label {
		if v > label[best] {
			best = i
		}
	}
	return best
}

// OneHot returns a one-hot vector of the given width with slot class set.
func OneHot(class, width int) []float64 {
	v := make([]float64, width)
	v[class] = 1
	return v
}

// Task is one stage of the sequence with its own train and test split.
// Tasks are immutable once constructed.
type Task struct {
	// ID is the ordered position of the task in [0, numTasks).
	ID int `json:"id"`

	// Train is the training split.
	Train Batch `json:"-"`

	// Test is the test split.
	Test Batch `json:"-"`
}

// StepParams carries the per-iteration hyperparameters handed to the learner.
type StepParams struct {
	// LearningRate for this step.
	LearningRate float64

	// Iteration is the zero-based step index within the current task.
	Iteration int

	// TotalIterations is the iteration count configured for the task.
	TotalIterations int
}

// AnchorLoss breaks the combined hindsight-anchor objective into its parts.
type AnchorLoss struct {
	Task   float64 `json:"task"`
	Anchor float64 `json:"anchor"`
	Total  float64 `json:"total"`
}
