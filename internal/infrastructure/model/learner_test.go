package model

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

func testConfig() Config {
	return Config{
		Arch:              ArchFCSmall,
		InputDim:          4,
		NumClasses:        2,
		Optimizer:         "SGD",
		SynapticStrength:  10,
		FisherEMADecay:    0.9,
		FisherUpdateAfter: 10,
		AnchorAlpha:       0.5,
	}
}

// separableBatch builds a linearly separable two-class problem.
func separableBatch(n int, rng *rand.Rand) continual.Batch {
	x := make([][]float64, n)
	y := make([][]float64, n)
	for i := range x {
		class := i % 2
		row := make([]float64, 4)
		for j := range row {
			row[j] = rng.Float64() * 0.2
		}
		row[class] += 1.0
		x[i] = row
		y[i] = continual.OneHot(class, 2)
	}
	return continual.Batch{X: x, Y: y}
}

func TestParseArch(t *testing.T) {
	if _, err := ParseArch("FC-S"); err != nil {
		t.Fatalf("ParseArch(FC-S) error: %v", err)
	}
	if _, err := ParseArch("FC-XL"); !errors.Is(err, continual.ErrUnknownArchitecture) {
		t.Fatalf("ParseArch(FC-XL) error = %v, expected ErrUnknownArchitecture", err)
	}
}

func TestNewOptimizerUnknown(t *testing.T) {
	if _, err := NewOptimizer("RMSPROP", 4); !errors.Is(err, continual.ErrUnknownOptimizer) {
		t.Fatalf("NewOptimizer(RMSPROP) error = %v, expected ErrUnknownOptimizer", err)
	}
}

func TestTrainStepReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	l, err := New(testConfig(), continual.StrategyVanilla, rng)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	batch := separableBatch(32, rng)
	p := continual.StepParams{LearningRate: 0.1, TotalIterations: 200}

	first := l.TrainStep(batch, p)
	var last float64
	for i := 1; i < 200; i++ {
		p.Iteration = i
		last = l.TrainStep(batch, p)
	}
	if !(last < first) {
		t.Fatalf("loss did not decrease: first %v, last %v", first, last)
	}
	if acc := l.Evaluate(batch); acc < 0.9 {
		t.Fatalf("accuracy after training = %v, expected > 0.9", acc)
	}
}

func TestEvaluateIsReadOnly(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l, _ := New(testConfig(), continual.StrategyVanilla, rng)
	batch := separableBatch(8, rng)

	before := l.Params()
	l.Evaluate(batch)
	after := l.Params()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("Evaluate mutated parameter %d", i)
		}
	}
}

func TestCheckpointRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	l, _ := New(testConfig(), continual.StrategyVanilla, rng)
	batch := separableBatch(8, rng)

	l.SaveCheckpoint()
	saved := l.Params()

	l.TrainStep(batch, continual.StepParams{LearningRate: 0.5})
	l.RestoreCheckpoint()

	restored := l.Params()
	for i := range saved {
		if saved[i] != restored[i] {
			t.Fatalf("restore mismatch at parameter %d", i)
		}
	}
}

func TestRestoreWithoutCheckpointIsNoop(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	l, _ := New(testConfig(), continual.StrategyVanilla, rng)
	before := l.Params()
	l.RestoreCheckpoint()
	after := l.Params()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("no-op restore changed parameter %d", i)
		}
	}
}

func TestClassifierStepFreezesFeatures(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l, _ := New(testConfig(), continual.StrategyFeatureExtraction, rng)
	batch := separableBatch(8, rng)

	before := l.Params()
	l.TrainClassifierStep(batch, continual.StepParams{LearningRate: 0.1})
	after := l.Params()

	cut := l.net.lastLayerStart()
	for i := 0; i < cut; i++ {
		if before[i] != after[i] {
			t.Fatalf("feature parameter %d changed during classifier-only step", i)
		}
	}
	changed := false
	for i := cut; i < len(after); i++ {
		if before[i] != after[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatalf("output layer did not change during classifier-only step")
	}
}

func TestProjection(t *testing.T) {
	t.Run("violating gradient is projected", func(t *testing.T) {
		grads := []float64{1, 0}
		ref := []float64{-1, 0}
		project(grads, ref)
		var dot float64
		for i := range grads {
			dot += grads[i] * ref[i]
		}
		if math.Abs(dot) > 1e-12 {
			t.Fatalf("projected gradient still violates reference: dot = %v", dot)
		}
	})

	t.Run("agreeing gradient untouched", func(t *testing.T) {
		grads := []float64{1, 2}
		project(grads, []float64{1, 0})
		if grads[0] != 1 || grads[1] != 2 {
			t.Fatalf("agreeing gradient was altered: %v", grads)
		}
	})
}

func TestReptileBlend(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	l, _ := New(testConfig(), continual.StrategyMER, rng)
	batch := separableBatch(8, rng)

	l.SnapshotWeights()
	snapshot := l.Params()
	l.TrainStep(batch, continual.StepParams{LearningRate: 0.5})
	moved := l.Params()
	l.ReptileBlend(0.1)
	blended := l.Params()

	for i := range blended {
		want := snapshot[i] + 0.1*(moved[i]-snapshot[i])
		if math.Abs(blended[i]-want) > 1e-12 {
			t.Fatalf("blend mismatch at %d: got %v, expected %v", i, blended[i], want)
		}
	}
}

func TestMeanEmbeddingShape(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	l, _ := New(testConfig(), continual.StrategyHindsight, rng)

	phi := l.MeanEmbedding(separableBatch(6, rng))
	if len(phi) != 4 {
		t.Fatalf("MeanEmbedding length = %d, expected input dim 4", len(phi))
	}

	zero := l.MeanEmbedding(continual.Batch{})
	for _, v := range zero {
		if v != 0 {
			t.Fatalf("empty-batch embedding should be the zero vector, got %v", zero)
		}
	}
}

func TestRegularizationPenalizesDrift(t *testing.T) {
	for _, strategy := range []continual.Strategy{continual.StrategyEWC, continual.StrategyPI, continual.StrategyMAS, continual.StrategyRWalk} {
		t.Run(string(strategy), func(t *testing.T) {
			rng := rand.New(rand.NewSource(17))
			l, err := New(testConfig(), strategy, rng)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if l.tracker == nil {
				t.Fatalf("regularization strategy has no importance tracker")
			}
			batch := separableBatch(16, rng)

			// Train a first task, consolidate, and verify the penalty is
			// zero at the consolidated parameters but positive after drift.
			p := continual.StepParams{LearningRate: 0.1, TotalIterations: 30}
			for i := 0; i < 30; i++ {
				p.Iteration = i
				l.TrainStep(batch, p)
			}
			l.RefreshImportance(batch)

			atStar, _ := l.tracker.penalty(l.net.params)
			if atStar != 0 {
				t.Fatalf("penalty at consolidated parameters = %v, expected 0", atStar)
			}

			drifted := l.Params()
			for i := range drifted {
				drifted[i] += 1
			}
			afterDrift, grad := l.tracker.penalty(drifted)
			if afterDrift < 0 {
				t.Fatalf("penalty is negative: %v", afterDrift)
			}
			if len(grad) != len(drifted) {
				t.Fatalf("penalty gradient length = %d, expected %d", len(grad), len(drifted))
			}
		})
	}
}

func TestOptimizerReset(t *testing.T) {
	for _, name := range []string{"SGD", "MOMENTUM", "ADAM"} {
		t.Run(name, func(t *testing.T) {
			opt, err := NewOptimizer(name, 2)
			if err != nil {
				t.Fatalf("NewOptimizer(%s): %v", name, err)
			}
			params := []float64{1, 1}
			opt.Apply(params, []float64{1, 1}, 0.1)
			opt.Reset()

			// After a reset, a fresh optimizer and the reset one must apply
			// the same update.
			fresh, _ := NewOptimizer(name, 2)
			a := []float64{1, 1}
			b := []float64{1, 1}
			opt.Apply(a, []float64{1, 0}, 0.1)
			fresh.Apply(b, []float64{1, 0}, 0.1)
			if a[0] != b[0] || a[1] != b[1] {
				t.Fatalf("reset optimizer diverged from fresh one: %v vs %v", a, b)
			}
		})
	}
}
