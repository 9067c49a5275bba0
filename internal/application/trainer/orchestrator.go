package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/config"
	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/infrastructure/dataset"
	"github.com/hopo55/CL-Papers/internal/infrastructure/model"
)

// lossLogInterval is how many iterations pass between loss log lines.
const lossLogInterval = 10

// LearnerFactory builds a fresh learner for one run. The orchestrator calls
// it once per run so that no model state leaks across repetitions.
type LearnerFactory func(strategy continual.Strategy, inputDim, numClasses int, rng *rand.Rand) (continual.Learner, error)

// CurvePoint is one fine-grained retention measurement taken mid-task.
type CurvePoint struct {
	Run       int       `json:"run"`
	Task      int       `json:"task"`
	Iteration int       `json:"iteration"`
	Accuracy  []float64 `json:"accuracy"`
}

// Result is the outcome of a full experiment: the accuracy tensor across
// runs plus any mid-task learning-curve points.
type Result struct {
	Strategy continual.Strategy `json:"strategy"`
	RunSet   *continual.RunSet  `json:"runSet"`
	Curves   []CurvePoint       `json:"curves,omitempty"`
}

// Orchestrator drives the task sequence: per-run seeding, per-task training
// loops, inter-task updates and evaluation.
type Orchestrator struct {
	cfg      *config.Config
	provider dataset.Provider
	log      *slog.Logger
	factory  LearnerFactory
}

// New creates an orchestrator with the reference learner factory.
func New(cfg *config.Config, provider dataset.Provider, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		provider: provider,
		log:      log,
	}
	o.factory = func(strategy continual.Strategy, inputDim, numClasses int, rng *rand.Rand) (continual.Learner, error) {
		arch, err := model.ParseArch(cfg.Model.Arch)
		if err != nil {
			return nil, err
		}
		return model.New(model.Config{
			Arch:              arch,
			InputDim:          inputDim,
			NumClasses:        numClasses,
			Optimizer:         cfg.Model.Optimizer,
			SynapticStrength:  cfg.Model.SynapticStrength,
			FisherEMADecay:    cfg.Model.FisherEMADecay,
			FisherUpdateAfter: cfg.Model.FisherUpdateAfter,
			AnchorAlpha:       1.0,
		}, strategy, rng)
	}
	return o
}

// WithLearnerFactory overrides how learners are constructed.
func (o *Orchestrator) WithLearnerFactory(f LearnerFactory) *Orchestrator {
	o.factory = f
	return o
}

// Run executes every configured repetition and returns the accuracy tensor.
// Run r is seeded with base_seed + r, so identical configurations reproduce
// identical tensors.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	strategy, err := continual.ParseStrategy(o.cfg.Experiment.Strategy)
	if err != nil {
		return nil, err
	}

	result := &Result{Strategy: strategy, RunSet: &continual.RunSet{}}

	for run := 0; run < o.cfg.Experiment.NumRuns; run++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seed := o.cfg.Experiment.BaseSeed + int64(run)
		o.log.Info("starting run", "run", run, "seed", seed, "strategy", strategy)

		matrix, curves, err := o.runOnce(ctx, strategy, run, rand.New(rand.NewSource(seed)))
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run, err)
		}

		result.RunSet.Append(matrix)
		result.Curves = append(result.Curves, curves...)
		o.log.Info("run finished", "run", run, "final_accuracy", matrix.FinalAccuracy(), "forgetting", matrix.Forgetting())
	}

	return result, nil
}

// runOnce executes a single repetition over the full task sequence.
func (o *Orchestrator) runOnce(ctx context.Context, strategy continual.Strategy, run int, rng *rand.Rand) (continual.AccuracyMatrix, []CurvePoint, error) {
	tasks, err := o.provider.Tasks(rng)
	if err != nil {
		return nil, nil, err
	}
	if len(tasks) == 0 {
		return nil, nil, fmt.Errorf("dataset provider produced no tasks")
	}
	inputDim := len(tasks[0].Train.X[0])
	numClasses := len(tasks[0].Train.Y[0])

	learner, err := o.factory(strategy, inputDim, numClasses, rng)
	if err != nil {
		return nil, nil, err
	}
	pol, err := newPolicy(strategy, learner)
	if err != nil {
		return nil, nil, err
	}

	exp := o.cfg.Experiment
	state := newRunState(strategy, learner, rng, o.log, len(tasks), numClasses, inputDim,
		o.cfg.Memory.MemPerClass, o.cfg.Memory.SampleBatch, o.cfg.Memory.AnchorEta)

	// Mid-task retention curves are recorded only in the single-epoch
	// streaming regime, and suppressed during cross-validation.
	recordCurves := exp.SingleEpoch && !exp.CrossValidate

	var matrix continual.AccuracyMatrix
	var curves []CurvePoint

	for t, task := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		state.task = t
		state.resetAverage()
		if t > 0 {
			learner.RestoreCheckpoint()
		}

		train := prepareTrain(task.Train, rng, exp.ExamplesPerTask)
		iters := exp.TrainIters
		if exp.SingleEpoch {
			iters = (train.Len() + exp.BatchSize - 1) / exp.BatchSize
		}

		for iter := 0; iter < iters; iter++ {
			batch := minibatch(train, iter, exp.BatchSize)
			loss := pol.step(state, batch, continual.StepParams{
				LearningRate:    exp.LearningRate,
				Iteration:       iter,
				TotalIterations: iters,
			})

			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return nil, nil, fmt.Errorf("task %d iteration %d: loss %v: %w", t, iter, loss, continual.ErrDivergence)
			}
			if iter%lossLogInterval == 0 {
				o.log.Debug("train step", "run", run, "task", t, "iteration", iter, "loss", loss)
			}
			if recordCurves && shouldSnapshot(iter) {
				curves = append(curves, CurvePoint{
					Run:       run,
					Task:      t,
					Iteration: iter,
					Accuracy:  o.evaluate(state, tasks),
				})
			}
		}

		// Inter-task update. Importance is refreshed from the full
		// unshuffled task data; it accumulates across tasks and is
		// skipped after the final task unless memory probing needs it.
		if strategy.RegularizationFamily() && (t < len(tasks)-1 || exp.EvalOnMemory) {
			learner.RefreshImportance(task.Train)
		}
		pol.afterTask(state)
		learner.SaveCheckpoint()

		matrix = append(matrix, o.evaluate(state, tasks))
		o.log.Info("task finished", "run", run, "task", t, "accuracy", matrix[len(matrix)-1])

		if state.ring != nil {
			state.ring.AdvanceTask()
		}
		learner.ResetOptimizer()
	}

	return matrix, curves, nil
}

// evaluate returns the accuracy row over every task, either on held-out
// test splits or directly on episodic memory.
func (o *Orchestrator) evaluate(s *runState, tasks []continual.Task) []float64 {
	if o.cfg.Experiment.EvalOnMemory && s.ring != nil {
		return evaluateMemory(s.learner, s.ring, len(tasks))
	}
	return evaluateTasks(s.learner, tasks)
}

// prepareTrain shuffles the split and truncates it to limit examples.
// A limit of zero keeps everything.
func prepareTrain(b continual.Batch, rng *rand.Rand, limit int) continual.Batch {
	idx := rng.Perm(b.Len())
	if limit > 0 && limit < len(idx) {
		idx = idx[:limit]
	}
	return b.Gather(idx)
}

// minibatch returns the iter-th batch, wrapping around the split in the
// multi-epoch regime. The final batch before a wrap may be short.
func minibatch(b continual.Batch, iter, size int) continual.Batch {
	n := b.Len()
	lo := (iter * size) % n
	hi := lo + size
	if hi > n {
		hi = n
	}
	return b.Slice(lo, hi)
}

// shouldSnapshot is the fine-grained retention cadence: every iteration of
// the first ten, every tenth below one hundred, every hundredth after.
func shouldSnapshot(iter int) bool {
	switch {
	case iter < 10:
		return true
	case iter < 100:
		return iter%10 == 0
	default:
		return iter%100 == 0
	}
}
