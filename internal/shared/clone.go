// Package shared provides small helpers used across layers.
package shared

// CloneVector returns a deep copy of a float64 vector.
func CloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// CloneMatrix returns a deep copy of a float64 row matrix.
func CloneMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = CloneVector(row)
	}
	return out
}

// ZeroMatrix returns a rows x cols matrix of zeros.
func ZeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
