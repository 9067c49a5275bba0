package dataset

import (
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// SyntheticConfig parameterizes the self-contained Gaussian-blob source.
type SyntheticConfig struct {
	NumClasses    int
	InputDim      int
	TrainPerClass int
	TestPerClass  int
	Noise         float64
}

// DefaultSyntheticConfig returns a source sized for quick local experiments.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NumClasses:    10,
		InputDim:      784,
		TrainPerClass: 200,
		TestPerClass:  50,
		Noise:         0.1,
	}
}

// SyntheticSource generates class-conditional Gaussian blobs in [0,1]^dim.
// Each class gets a random mean vector; examples are the mean plus clipped
// Gaussian noise. Useful as a stand-in base when no real dataset is wired.
func SyntheticSource(cfg SyntheticConfig) func(rng *rand.Rand) (Base, error) {
	return func(rng *rand.Rand) (Base, error) {
		means := make([][]float64, cfg.NumClasses)
		for c := range means {
			m := make([]float64, cfg.InputDim)
			for i := range m {
				m[i] = rng.Float64()
			}
			means[c] = m
		}

		draw := func(perClass int) continual.Batch {
			n := perClass * cfg.NumClasses
			x := make([][]float64, 0, n)
			y := make([][]float64, 0, n)
			for c := 0; c < cfg.NumClasses; c++ {
				for e := 0; e < perClass; e++ {
					row := make([]float64, cfg.InputDim)
					for i := range row {
						v := means[c][i] + rng.NormFloat64()*cfg.Noise
						if v < 0 {
							v = 0
						} else if v > 1 {
							v = 1
						}
						row[i] = v
					}
					x = append(x, row)
					y = append(y, continual.OneHot(c, cfg.NumClasses))
				}
			}
			return continual.Batch{X: x, Y: y}
		}

		return Base{Train: draw(cfg.TrainPerClass), Test: draw(cfg.TestPerClass)}, nil
	}
}
