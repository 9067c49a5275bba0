// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hopo55/CL-Papers/internal/config"
	"github.com/hopo55/CL-Papers/internal/infrastructure/results"
	"github.com/hopo55/CL-Papers/internal/logger"
	"github.com/hopo55/CL-Papers/pkg/clbench"
)

// Run command flags
var (
	runConfigPath string

	runStrategy        string
	runArch            string
	runOptimizer       string
	runNumTasks        int
	runNumRuns         int
	runBaseSeed        int64
	runTrainIters      int
	runBatchSize       int
	runLearningRate    float64
	runExamplesPerTask int
	runSingleEpoch     bool
	runCrossValidate   bool
	runEvalOnMemory    bool

	runMemPerClass int
	runSampleBatch int
	runAnchorEta   float64

	runSynapticStrength  float64
	runFisherEMADecay    float64
	runFisherUpdateAfter int

	runNoSave bool
)

// RunCmd executes a full experiment and stores its accuracy tensor.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a continual-learning experiment",
	Long: `Run trains the configured strategy over the task sequence, repeats it
num-runs times with seeds base-seed, base-seed+1, ..., and stores the
resulting accuracy tensor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}

		log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

		exp, err := clbench.NewExperiment(clbench.Options{Config: cfg, Logger: log})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		started := time.Now()
		result, err := exp.Run(ctx)
		if err != nil {
			return err
		}

		acc, accStd := result.RunSet.MeanFinalAccuracy()
		fgt, fgtStd := result.RunSet.MeanForgetting()
		fmt.Printf("strategy:   %s\n", result.Strategy)
		fmt.Printf("runs:       %d\n", len(result.RunSet.Runs))
		fmt.Printf("accuracy:   %.4f ± %.4f\n", acc, accStd)
		fmt.Printf("forgetting: %.4f ± %.4f\n", fgt, fgtStd)
		fmt.Printf("elapsed:    %s\n", time.Since(started).Round(time.Millisecond))

		if runNoSave {
			return nil
		}
		return saveResult(ctx, cfg, result)
	},
}

// loadRunConfig layers flag overrides on top of the config file (or the
// defaults when no file is given). Only flags the user actually set
// override the file.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if runConfigPath != "" {
		loaded, err := config.Load(runConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	set := cmd.Flags().Changed
	if set("strategy") {
		cfg.Experiment.Strategy = runStrategy
	}
	if set("arch") {
		cfg.Model.Arch = runArch
	}
	if set("optimizer") {
		cfg.Model.Optimizer = runOptimizer
	}
	if set("num-tasks") {
		cfg.Experiment.NumTasks = runNumTasks
	}
	if set("num-runs") {
		cfg.Experiment.NumRuns = runNumRuns
	}
	if set("base-seed") {
		cfg.Experiment.BaseSeed = runBaseSeed
	}
	if set("train-iters") {
		cfg.Experiment.TrainIters = runTrainIters
	}
	if set("batch-size") {
		cfg.Experiment.BatchSize = runBatchSize
	}
	if set("learning-rate") {
		cfg.Experiment.LearningRate = runLearningRate
	}
	if set("examples-per-task") {
		cfg.Experiment.ExamplesPerTask = runExamplesPerTask
	}
	if set("single-epoch") {
		cfg.Experiment.SingleEpoch = runSingleEpoch
	}
	if set("cross-validate") {
		cfg.Experiment.CrossValidate = runCrossValidate
	}
	if set("eval-on-memory") {
		cfg.Experiment.EvalOnMemory = runEvalOnMemory
	}
	if set("mem-per-class") {
		cfg.Memory.MemPerClass = runMemPerClass
	}
	if set("sample-batch") {
		cfg.Memory.SampleBatch = runSampleBatch
	}
	if set("anchor-eta") {
		cfg.Memory.AnchorEta = runAnchorEta
	}
	if set("synaptic-strength") {
		cfg.Model.SynapticStrength = runSynapticStrength
	}
	if set("fisher-ema-decay") {
		cfg.Model.FisherEMADecay = runFisherEMADecay
	}
	if set("fisher-update-after") {
		cfg.Model.FisherUpdateAfter = runFisherUpdateAfter
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func saveResult(ctx context.Context, cfg *config.Config, result *clbench.Result) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	exp := &results.Experiment{
		ID:        uuid.New().String(),
		Strategy:  cfg.Experiment.Strategy,
		Optimizer: cfg.Model.Optimizer,
		Arch:      cfg.Model.Arch,
		Config:    string(encoded),
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveExperiment(ctx, exp); err != nil {
		return err
	}
	if err := store.SaveRunSet(ctx, exp.ID, result.RunSet); err != nil {
		return err
	}

	fmt.Printf("saved:      %s\n", exp.ID)
	return nil
}

// openStore builds the configured results backend.
func openStore(ctx context.Context, cfg *config.Config) (results.Store, error) {
	if cfg.Storage.Backend == "postgres" {
		return results.NewPostgresStore(ctx, results.PostgresConfig{
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			Database: cfg.Storage.Postgres.Database,
			SSL:      cfg.Storage.Postgres.SSL,
		})
	}
	return results.NewSQLiteStore(cfg.Storage.Path)
}

func init() {
	f := RunCmd.Flags()
	f.StringVarP(&runConfigPath, "config", "c", "", "Path to YAML config file")

	f.StringVarP(&runStrategy, "strategy", "s", "VAN", "Continual-learning strategy")
	f.StringVar(&runArch, "arch", "FC-S", "Network architecture (FC-S, FC-B)")
	f.StringVar(&runOptimizer, "optimizer", "SGD", "Optimizer (SGD, MOMENTUM, ADAM)")
	f.IntVar(&runNumTasks, "num-tasks", 20, "Number of tasks in the sequence")
	f.IntVar(&runNumRuns, "num-runs", 5, "Number of independent runs")
	f.Int64Var(&runBaseSeed, "base-seed", 1234, "Seed for run 0; run r uses base-seed + r")
	f.IntVar(&runTrainIters, "train-iters", 5000, "Training iterations per task")
	f.IntVar(&runBatchSize, "batch-size", 10, "Mini-batch size")
	f.Float64Var(&runLearningRate, "learning-rate", 0.1, "Learning rate")
	f.IntVar(&runExamplesPerTask, "examples-per-task", 1000, "Training examples kept per task (0 keeps all)")
	f.BoolVar(&runSingleEpoch, "single-epoch", false, "Train each task with a single pass over its data")
	f.BoolVar(&runCrossValidate, "cross-validate", false, "Cross-validation mode: suppress mid-task snapshots")
	f.BoolVar(&runEvalOnMemory, "eval-on-memory", false, "Evaluate on episodic memory instead of test splits")

	f.IntVar(&runMemPerClass, "mem-per-class", 1, "Episodic memory slots per class per task")
	f.IntVar(&runSampleBatch, "sample-batch", 256, "Episodic sample size per training step")
	f.Float64Var(&runAnchorEta, "anchor-eta", 0.1, "Blend weight of the mean embedding in anchor synthesis")

	f.Float64Var(&runSynapticStrength, "synaptic-strength", 0.75, "Regularization strength lambda")
	f.Float64Var(&runFisherEMADecay, "fisher-ema-decay", 0.9, "Online Fisher EMA decay")
	f.IntVar(&runFisherUpdateAfter, "fisher-update-after", 10, "Steps between folding Fisher estimates")

	f.BoolVar(&runNoSave, "no-save", false, "Skip persisting results")
}
