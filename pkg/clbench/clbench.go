// Package clbench provides the public API for the continual-learning
// benchmark: building experiments, running them and reading back results.
//
// Example:
//
//	exp, err := clbench.NewExperiment(clbench.Options{
//	    Strategy: clbench.StrategyAGEM,
//	    NumTasks: 20,
//	    NumRuns:  5,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := exp.Run(context.Background())
package clbench

import (
	"context"
	"log/slog"

	"github.com/hopo55/CL-Papers/internal/application/trainer"
	"github.com/hopo55/CL-Papers/internal/config"
	"github.com/hopo55/CL-Papers/internal/domain/continual"
	"github.com/hopo55/CL-Papers/internal/infrastructure/dataset"
	"github.com/hopo55/CL-Papers/internal/logger"
)

// Re-export domain types for the public API.
type (
	Strategy       = continual.Strategy
	Batch          = continual.Batch
	Task           = continual.Task
	AccuracyMatrix = continual.AccuracyMatrix
	RunSet         = continual.RunSet
	Result         = trainer.Result
	CurvePoint     = trainer.CurvePoint
	Config         = config.Config
	Provider       = dataset.Provider
)

// Strategy constants.
const (
	StrategyVanilla           = continual.StrategyVanilla
	StrategyFeatureExtraction = continual.StrategyFeatureExtraction
	StrategyEWC               = continual.StrategyEWC
	StrategyPI                = continual.StrategyPI
	StrategyMAS               = continual.StrategyMAS
	StrategyRWalk             = continual.StrategyRWalk
	StrategyAGEM              = continual.StrategyAGEM
	StrategyERReservoir       = continual.StrategyERReservoir
	StrategyERRing            = continual.StrategyERRing
	StrategyMER               = continual.StrategyMER
	StrategyHindsight         = continual.StrategyHindsight
)

// Sentinel errors.
var (
	ErrUnknownStrategy = continual.ErrUnknownStrategy
	ErrDivergence      = continual.ErrDivergence
)

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return append([]Strategy(nil), continual.Strategies...)
}

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	return continual.ParseStrategy(name)
}

// Options configures an experiment. Zero values fall back to the defaults
// in config.Default.
type Options struct {
	Strategy Strategy
	NumTasks int
	NumRuns  int
	BaseSeed int64

	// Provider supplies the task sequence. Nil wires the permuted
	// synthetic source.
	Provider Provider

	// Config overrides the full configuration. Nil uses the defaults
	// with the fields above applied on top.
	Config *Config

	// Logger defaults to a text logger at the configured level.
	Logger *slog.Logger
}

// Experiment is a configured, runnable benchmark.
type Experiment struct {
	cfg  *Config
	orch *trainer.Orchestrator
}

// NewExperiment validates the options and builds the experiment.
func NewExperiment(opts Options) (*Experiment, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Strategy != "" {
		cfg.Experiment.Strategy = string(opts.Strategy)
	}
	if opts.NumTasks > 0 {
		cfg.Experiment.NumTasks = opts.NumTasks
	}
	if opts.NumRuns > 0 {
		cfg.Experiment.NumRuns = opts.NumRuns
	}
	if opts.BaseSeed != 0 {
		cfg.Experiment.BaseSeed = opts.BaseSeed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider := opts.Provider
	if provider == nil {
		provider = &dataset.PermutedProvider{
			Source:   dataset.SyntheticSource(dataset.DefaultSyntheticConfig()),
			NumTasks: cfg.Experiment.NumTasks,
		}
	}

	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	return &Experiment{
		cfg:  cfg,
		orch: trainer.New(cfg, provider, log),
	}, nil
}

// Config returns the experiment's effective configuration.
func (e *Experiment) Config() *Config {
	return e.cfg
}

// Run executes every repetition and returns the accuracy tensor.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	return e.orch.Run(ctx)
}
