package config

import (
	"errors"
	"fmt"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

func (c *Config) Validate() error {
	var errs []error

	if err := c.Experiment.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("experiment: %w", err))
	}

	if err := c.Model.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	}

	if err := c.Memory.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	return errors.Join(errs...)
}

func (e *ExperimentConfig) Validate() error {
	var errs []error

	if _, err := continual.ParseStrategy(e.Strategy); err != nil {
		errs = append(errs, err)
	}

	if e.NumTasks < 1 {
		errs = append(errs, fmt.Errorf("num_tasks must be at least 1, got %d", e.NumTasks))
	}

	if e.NumRuns < 1 {
		errs = append(errs, fmt.Errorf("num_runs must be at least 1, got %d", e.NumRuns))
	}

	if e.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be at least 1, got %d", e.BatchSize))
	}

	if !e.SingleEpoch && e.TrainIters < 1 {
		errs = append(errs, fmt.Errorf("train_iters must be at least 1, got %d", e.TrainIters))
	}

	if e.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %g", e.LearningRate))
	}

	if e.ExamplesPerTask < 0 {
		errs = append(errs, fmt.Errorf("examples_per_task must not be negative, got %d", e.ExamplesPerTask))
	}

	return errors.Join(errs...)
}

func (m *ModelConfig) Validate() error {
	var errs []error

	switch m.Arch {
	case "FC-S", "FC-B":
	default:
		errs = append(errs, fmt.Errorf("arch must be FC-S or FC-B, got %q", m.Arch))
	}

	switch m.Optimizer {
	case "SGD", "MOMENTUM", "ADAM":
	default:
		errs = append(errs, fmt.Errorf("optimizer must be SGD, MOMENTUM or ADAM, got %q", m.Optimizer))
	}

	if m.SynapticStrength < 0 {
		errs = append(errs, fmt.Errorf("synaptic_strength must not be negative, got %g", m.SynapticStrength))
	}

	if m.FisherEMADecay < 0 || m.FisherEMADecay > 1 {
		errs = append(errs, fmt.Errorf("fisher_ema_decay must be between 0 and 1, got %g", m.FisherEMADecay))
	}

	if m.FisherUpdateAfter < 1 {
		errs = append(errs, fmt.Errorf("fisher_update_after must be at least 1, got %d", m.FisherUpdateAfter))
	}

	return errors.Join(errs...)
}

func (m *MemoryConfig) Validate() error {
	var errs []error

	if m.MemPerClass < 1 {
		errs = append(errs, fmt.Errorf("mem_per_class must be at least 1, got %d", m.MemPerClass))
	}

	if m.SampleBatch < 1 {
		errs = append(errs, fmt.Errorf("sample_batch must be at least 1, got %d", m.SampleBatch))
	}

	if m.AnchorEta < 0 || m.AnchorEta > 1 {
		errs = append(errs, fmt.Errorf("anchor_eta must be between 0 and 1, got %g", m.AnchorEta))
	}

	return errors.Join(errs...)
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn or error, got %q", l.Level)
	}

	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}

	return nil
}

func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "sqlite":
		if s.Path == "" {
			return fmt.Errorf("path is required for the sqlite backend")
		}
	case "postgres":
	default:
		return fmt.Errorf("backend must be sqlite or postgres, got %q", s.Backend)
	}

	return nil
}
