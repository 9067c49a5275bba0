package trainer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// fakeLearner records which operations the policies invoke.
type fakeLearner struct {
	trainSizes      []int
	trainRates      []float64
	classifierCalls int
	refSizes        []int
	snapshots       int
	blends          []float64
	anchorCalls     int
	restoreCalls    int
	resetCalls      int
	refreshCalls    int
	refreshSizes    []int
	loss            float64
	embedding       []float64
}

func (f *fakeLearner) TrainStep(batch continual.Batch, p continual.StepParams) float64 {
	f.trainSizes = append(f.trainSizes, batch.Len())
	f.trainRates = append(f.trainRates, p.LearningRate)
	return f.loss
}

func (f *fakeLearner) TrainClassifierStep(batch continual.Batch, p continual.StepParams) float64 {
	f.classifierCalls++
	return f.loss
}

func (f *fakeLearner) TrainAnchorStep(batch, anchors continual.Batch, p continual.StepParams) continual.AnchorLoss {
	f.anchorCalls++
	return continual.AnchorLoss{Task: f.loss, Anchor: 0, Total: f.loss}
}

func (f *fakeLearner) Evaluate(continual.Batch) float64 { return 1 }
func (f *fakeLearner) RefreshImportance(b continual.Batch) {
	f.refreshCalls++
	f.refreshSizes = append(f.refreshSizes, b.Len())
}
func (f *fakeLearner) SaveCheckpoint()    {}
func (f *fakeLearner) RestoreCheckpoint() { f.restoreCalls++ }
func (f *fakeLearner) ResetOptimizer()    { f.resetCalls++ }

func (f *fakeLearner) StoreReferenceGradient(batch continual.Batch) {
	f.refSizes = append(f.refSizes, batch.Len())
}

func (f *fakeLearner) MeanEmbedding(batch continual.Batch) []float64 {
	return f.embedding
}

func (f *fakeLearner) SnapshotWeights()         { f.snapshots++ }
func (f *fakeLearner) ReptileBlend(beta float64) { f.blends = append(f.blends, beta) }

var _ continual.Learner = (*fakeLearner)(nil)

func labeledBatch(classes []int, numClasses, dim int) continual.Batch {
	x := make([][]float64, len(classes))
	y := make([][]float64, len(classes))
	for i, c := range classes {
		row := make([]float64, dim)
		for j := range row {
			row[j] = float64(c+1) / float64(numClasses)
		}
		x[i] = row
		y[i] = continual.OneHot(c, numClasses)
	}
	return continual.Batch{X: x, Y: y}
}

func TestNewPolicyDispatch(t *testing.T) {
	full := &fakeLearner{}
	for _, s := range continual.Strategies {
		if _, err := newPolicy(s, full); err != nil {
			t.Errorf("newPolicy(%s) error = %v", s, err)
		}
	}

	if _, err := newPolicy(continual.Strategy("GEM"), full); !errors.Is(err, continual.ErrUnknownStrategy) {
		t.Errorf("newPolicy(GEM) error = %v, want ErrUnknownStrategy", err)
	}
}

func TestNewPolicyRejectsIncapableLearner(t *testing.T) {
	// A struct embedding only the core interface lacks projection,
	// blending and anchor training.
	type core struct{ continual.Learner }
	bare := core{&fakeLearner{}}

	for _, s := range []continual.Strategy{continual.StrategyAGEM, continual.StrategyMER, continual.StrategyHindsight} {
		if _, err := newPolicy(s, bare); !errors.Is(err, continual.ErrIncompatibleLearner) {
			t.Errorf("newPolicy(%s) error = %v, want ErrIncompatibleLearner", s, err)
		}
	}
}

func newTestState(t *testing.T, strategy continual.Strategy, learner continual.Learner, numClasses, dim int) *runState {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	return newRunState(strategy, learner, rng, discardLogger(), 3, numClasses, dim, 2, 4, 0.1)
}

func TestFeatureExtractionFreezesAfterFirstTask(t *testing.T) {
	fake := &fakeLearner{}
	s := newTestState(t, continual.StrategyFeatureExtraction, fake, 2, 4)
	pol := featureExtractionPolicy{}
	batch := labeledBatch([]int{0, 1}, 2, 4)

	s.task = 0
	pol.step(s, batch, continual.StepParams{})
	if len(fake.trainSizes) != 1 || fake.classifierCalls != 0 {
		t.Fatalf("task 0: trainSteps=%d classifierSteps=%d, want full step", len(fake.trainSizes), fake.classifierCalls)
	}

	s.task = 1
	pol.step(s, batch, continual.StepParams{})
	if fake.classifierCalls != 1 {
		t.Errorf("task 1: classifierSteps = %d, want 1", fake.classifierCalls)
	}
}

func TestAGEMReferenceGradient(t *testing.T) {
	fake := &fakeLearner{}
	s := newTestState(t, continual.StrategyAGEM, fake, 2, 4)
	pol := agemPolicy{}
	batch := labeledBatch([]int{0, 1}, 2, 4)

	// First task: unconstrained training even once memory fills.
	s.task = 0
	pol.step(s, batch, continual.StepParams{})
	pol.step(s, batch, continual.StepParams{})
	if len(fake.refSizes) != 0 {
		t.Fatalf("first task stored %d reference gradients, want 0", len(fake.refSizes))
	}
	if s.ring.Len() != 4 {
		t.Fatalf("ring.Len() = %d after first task, want 4", s.ring.Len())
	}

	// Later tasks sample memory for the reference gradient.
	s.ring.AdvanceTask()
	s.task = 1
	pol.step(s, batch, continual.StepParams{})
	if len(fake.refSizes) != 1 || fake.refSizes[0] != 4 {
		t.Errorf("refSizes = %v, want one reference over 4 examples", fake.refSizes)
	}
}

func TestReplayConcatenatesMemory(t *testing.T) {
	tests := []struct {
		name     string
		strategy continual.Strategy
		pol      policy
	}{
		{"reservoir", continual.StrategyERReservoir, reservoirReplayPolicy{}},
		{"ring", continual.StrategyERRing, ringReplayPolicy{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLearner{}
			s := newTestState(t, tt.strategy, fake, 2, 4)
			batch := labeledBatch([]int{0, 1}, 2, 4)

			tt.pol.step(s, batch, continual.StepParams{})
			if fake.trainSizes[0] != 2 {
				t.Fatalf("first step trained on %d examples, want 2 (memory empty)", fake.trainSizes[0])
			}

			tt.pol.step(s, batch, continual.StepParams{})
			if fake.trainSizes[1] != 4 {
				t.Errorf("second step trained on %d examples, want 4 (batch + memory)", fake.trainSizes[1])
			}
		})
	}
}

func TestMERAmplifiesOnlyFinalStep(t *testing.T) {
	fake := &fakeLearner{}
	s := newTestState(t, continual.StrategyMER, fake, 2, 4)
	pol := merPolicy{}
	batch := labeledBatch([]int{0, 1}, 2, 4)
	p := continual.StepParams{LearningRate: 0.1}

	// First iteration: empty reservoir, only the amplified current step.
	pol.step(s, batch, p)
	if fake.snapshots != 1 || len(fake.blends) != 1 || fake.blends[0] != merBeta {
		t.Fatalf("snapshots=%d blends=%v, want one snapshot and one blend of %v", fake.snapshots, fake.blends, merBeta)
	}
	if got := fake.trainRates[len(fake.trainRates)-1]; got != 0.1*merAmplification {
		t.Fatalf("final step learning rate = %v, want %v", got, 0.1*merAmplification)
	}

	// Second iteration: one single-example micro-step per resident memory
	// example at the base rate, then the amplified current step.
	fake.trainSizes = nil
	fake.trainRates = nil
	pol.step(s, batch, p)
	if len(fake.trainRates) != 3 {
		t.Fatalf("steps = %d, want 3 (2 micro-steps + current batch)", len(fake.trainRates))
	}
	for i := 0; i < 2; i++ {
		if fake.trainSizes[i] != 1 {
			t.Errorf("micro-step %d trained on %d examples, want 1", i, fake.trainSizes[i])
		}
		if fake.trainRates[i] != 0.1 {
			t.Errorf("micro-step %d learning rate = %v, want 0.1", i, fake.trainRates[i])
		}
	}
	if fake.trainSizes[2] != 2 || fake.trainRates[2] != 0.1*merAmplification {
		t.Errorf("final step size = %d rate = %v, want 2 at %v",
			fake.trainSizes[2], fake.trainRates[2], 0.1*merAmplification)
	}
}

func TestHindsightAnchorSynthesis(t *testing.T) {
	const numClasses, dim = 3, 4
	fake := &fakeLearner{embedding: []float64{4, 3, 2, 1}}
	s := newTestState(t, continual.StrategyHindsight, fake, numClasses, dim)
	pol := hindsightPolicy{}
	batch := labeledBatch([]int{0, 1}, numClasses, dim)

	s.task = 0
	pol.step(s, batch, continual.StepParams{})
	pol.afterTask(s)
	s.ring.AdvanceTask()
	s.resetAverage()

	// Train task 1 only on classes 0 and 1; class 2 never appears.
	s.task = 1
	pol.step(s, batch, continual.StepParams{})
	pol.step(s, batch, continual.StepParams{})
	pol.afterTask(s)

	for class := 0; class < 2; class++ {
		anchor, ok := s.anchors.Anchor(1, class)
		if !ok {
			t.Fatalf("anchor for class %d not set", class)
		}
		for _, v := range anchor {
			if v < 0 || v > 1 {
				t.Errorf("class %d anchor value %v outside [0,1]", class, v)
			}
		}
	}

	// The absent class gets a degenerate zero anchor.
	anchor, ok := s.anchors.Anchor(1, 2)
	if !ok {
		t.Fatal("anchor for absent class not set")
	}
	for i, v := range anchor {
		if v != 0 {
			t.Errorf("absent-class anchor[%d] = %v, want 0", i, v)
		}
	}
}

func TestHindsightKeepsFirstSeenAnchors(t *testing.T) {
	const numClasses, dim = 2, 4
	fake := &fakeLearner{embedding: []float64{9, 9, 9, 9}}
	s := newTestState(t, continual.StrategyHindsight, fake, numClasses, dim)
	pol := hindsightPolicy{}

	batch := continual.Batch{
		X: [][]float64{{1, 2, 3, 4}, {4, 3, 2, 1}},
		Y: [][]float64{continual.OneHot(0, numClasses), continual.OneHot(1, numClasses)},
	}
	s.task = 0
	pol.step(s, batch, continual.StepParams{})
	pol.afterTask(s)

	// The first task's slots hold the first-seen captures; the boundary
	// must not replace them with synthesized anchors.
	anchor, ok := s.anchors.Anchor(0, 0)
	if !ok {
		t.Fatal("task-0 anchor for class 0 not captured")
	}
	want := []float64{0, 1.0 / 3, 2.0 / 3, 1}
	for i := range want {
		if math.Abs(anchor[i]-want[i]) > 1e-12 {
			t.Fatalf("task-0 anchor = %v, want normalized first-seen input %v", anchor, want)
		}
	}
}

func TestHindsightPerClassAverages(t *testing.T) {
	const numClasses, dim = 2, 4
	fake := &fakeLearner{embedding: []float64{0, 0, 0, 0}}
	rng := rand.New(rand.NewSource(7))
	// anchorEta of zero makes each anchor exactly its class's average input.
	s := newRunState(continual.StrategyHindsight, fake, rng, discardLogger(), 3, numClasses, dim, 2, 4, 0)
	pol := hindsightPolicy{}

	batch := continual.Batch{
		X: [][]float64{{1, 0, 0, 1}, {0, 1, 1, 0}},
		Y: [][]float64{continual.OneHot(0, numClasses), continual.OneHot(1, numClasses)},
	}
	s.task = 0
	pol.step(s, batch, continual.StepParams{})
	pol.afterTask(s)
	s.ring.AdvanceTask()
	s.resetAverage()

	s.task = 1
	pol.step(s, batch, continual.StepParams{})
	pol.afterTask(s)

	a0, ok0 := s.anchors.Anchor(1, 0)
	a1, ok1 := s.anchors.Anchor(1, 1)
	if !ok0 || !ok1 {
		t.Fatal("task-1 anchors not set")
	}
	want0 := []float64{1, 0, 0, 1}
	want1 := []float64{0, 1, 1, 0}
	for i := range want0 {
		if a0[i] != want0[i] || a1[i] != want1[i] {
			t.Fatalf("anchors = %v, %v, want per-class averages %v, %v", a0, a1, want0, want1)
		}
	}
}

func TestHindsightUsesAnchorObjectiveAfterFirstTask(t *testing.T) {
	const numClasses, dim = 2, 4
	fake := &fakeLearner{embedding: []float64{1, 2, 3, 4}}
	s := newTestState(t, continual.StrategyHindsight, fake, numClasses, dim)
	pol := hindsightPolicy{}
	batch := labeledBatch([]int{0, 1}, numClasses, dim)

	s.task = 0
	pol.step(s, batch, continual.StepParams{})
	pol.afterTask(s)
	if fake.anchorCalls != 0 {
		t.Fatalf("task 0 used the anchor objective %d times, want 0", fake.anchorCalls)
	}

	s.ring.AdvanceTask()
	s.task = 1
	s.resetAverage()
	pol.step(s, batch, continual.StepParams{})
	if fake.anchorCalls != 1 {
		t.Errorf("task 1 anchor objective calls = %d, want 1", fake.anchorCalls)
	}
}

func TestObserveAverageDecay(t *testing.T) {
	s := &runState{numClasses: 2}
	b1 := continual.Batch{X: [][]float64{{1, 1}, {3, 3}}, Y: [][]float64{{1, 0}, {0, 1}}}
	b2 := continual.Batch{X: [][]float64{{0, 0}}, Y: [][]float64{{1, 0}}}

	s.observeAverage(b1)
	if avg, ok := s.classAverage(0); !ok || avg[0] != 1 {
		t.Fatalf("class 0 first observation avg = %v, want 1", avg)
	}
	if avg, ok := s.classAverage(1); !ok || avg[0] != 3 {
		t.Fatalf("class 1 first observation avg = %v, want 3", avg)
	}

	// A batch holding only class 0 decays that class and leaves the other.
	s.observeAverage(b2)
	if avg, _ := s.classAverage(0); avg[0] != avgImageDecay*1.0 {
		t.Errorf("class 0 second observation avg = %v, want %v", avg[0], avgImageDecay*1.0)
	}
	if avg, _ := s.classAverage(1); avg[0] != 3 {
		t.Errorf("class 1 avg = %v after class-0 batch, want 3", avg[0])
	}

	s.resetAverage()
	if _, ok := s.classAverage(0); ok || s.avgImage != nil {
		t.Error("resetAverage() did not clear state")
	}
}
