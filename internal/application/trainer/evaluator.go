package trainer

import (
	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/infrastructure/memory"
)

// evaluateTasks returns test-split accuracy for every task in sequence
// order. The learner's parameters are untouched.
func evaluateTasks(l continual.Learner, tasks []continual.Task) []float64 {
	row := make([]float64, len(tasks))
	for i, task := range tasks {
		row[i] = l.Evaluate(task.Test)
	}
	return row
}

// evaluateMemory returns accuracy on each task's episodic-memory segment
// instead of its test split. Tasks whose segment is still empty score zero.
func evaluateMemory(l continual.Learner, ring *memory.ClassRing, numTasks int) []float64 {
	row := make([]float64, numTasks)
	for t := 0; t < numTasks; t++ {
		slice := ring.TaskSlice(t)
		if slice.Len() == 0 {
			continue
		}
		row[t] = l.Evaluate(slice)
	}
	return row
}
