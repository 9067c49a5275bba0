package continual

import "math"

// AccuracyMatrix holds one run's evaluation snapshots: row t is the vector
// of per-task test accuracies measured after training task t, so the shape
// is [tasksTrained][tasksEvaluated].
type AccuracyMatrix [][]float64

// RunSet aggregates the accuracy matrices of independent runs into the
// [run][tasksTrained][tasksEvaluated] tensor consumed by the statistics.
type RunSet struct {
	Runs []AccuracyMatrix `json:"runs"`
}

// Append adds one run's matrix.
func (rs *RunSet) Append(m AccuracyMatrix) {
	rs.Runs = append(rs.Runs, m)
}

// FinalAccuracy returns the mean over tasks of the last row of one run.
func (m AccuracyMatrix) FinalAccuracy() float64 {
	if len(m) == 0 {
		return 0
	}
	last := m[len(m)-1]
	if len(last) == 0 {
		return 0
	}
	var sum float64
	for _, a := range last {
		sum += a
	}
	return sum / float64(len(last))
}

// Forgetting returns the mean forgetting of one run: for every task except
// the last, the drop from its best accuracy while training earlier tasks to
// its accuracy after the final task.
func (m AccuracyMatrix) Forgetting() float64 {
	t := len(m)
	if t < 2 {
		return 0
	}
	final := m[t-1]
	var sum float64
	n := 0
	for j := 0; j < t-1 && j < len(final); j++ {
		best := math.Inf(-1)
		for i := j; i < t-1; i++ {
			if j < len(m[i]) && m[i][j] > best {
				best = m[i][j]
			}
		}
		if !math.IsInf(best, -1) {
			sum += best - final[j]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// MeanFinalAccuracy returns the mean and standard deviation of the final
// average accuracy across runs.
func (rs *RunSet) MeanFinalAccuracy() (mean, std float64) {
	vals := make([]float64, len(rs.Runs))
	for i, m := range rs.Runs {
		vals[i] = m.FinalAccuracy()
	}
	return meanStd(vals)
}

// MeanForgetting returns the mean and standard deviation of forgetting
// across runs.
func (rs *RunSet) MeanForgetting() (mean, std float64) {
	vals := make([]float64, len(rs.Runs))
	for i, m := range rs.Runs {
		vals[i] = m.Forgetting()
	}
	return meanStd(vals)
}

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(vals)))
	return mean, std
}
