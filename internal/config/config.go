// Package config holds benchmark configuration loaded from YAML and flags.
package config

// Config is the full benchmark configuration.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Model      ModelConfig      `yaml:"model"`
	Memory     MemoryConfig     `yaml:"memory"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ExperimentConfig controls the task sequence and training schedule.
type ExperimentConfig struct {
	// Strategy selects the continual-learning method, e.g. EWC or A-GEM.
	Strategy string `yaml:"strategy"`

	// NumTasks is the length of the task sequence.
	NumTasks int `yaml:"num_tasks"`

	// NumRuns is the number of independent repetitions.
	NumRuns int `yaml:"num_runs"`

	// BaseSeed seeds run r with BaseSeed + r.
	BaseSeed int64 `yaml:"base_seed"`

	// TrainIters is iterations per task when SingleEpoch is false.
	TrainIters int `yaml:"train_iters"`

	// BatchSize is the mini-batch size.
	BatchSize int `yaml:"batch_size"`

	// LearningRate for the optimizer.
	LearningRate float64 `yaml:"learning_rate"`

	// ExamplesPerTask truncates each task's training split. Zero keeps all.
	ExamplesPerTask int `yaml:"examples_per_task"`

	// SingleEpoch makes each task a single pass over its training split.
	SingleEpoch bool `yaml:"single_epoch"`

	// CrossValidate suppresses fine-grained snapshots and evaluates
	// only after each task.
	CrossValidate bool `yaml:"cross_validate"`

	// EvalOnMemory evaluates on episodic memory contents instead of
	// held-out test splits.
	EvalOnMemory bool `yaml:"eval_on_memory"`
}

// ModelConfig controls the network, optimizer and regularization.
type ModelConfig struct {
	// Arch is the network architecture: FC-S or FC-B.
	Arch string `yaml:"arch"`

	// Optimizer is SGD, MOMENTUM or ADAM.
	Optimizer string `yaml:"optimizer"`

	// SynapticStrength is the regularization weight lambda.
	SynapticStrength float64 `yaml:"synaptic_strength"`

	// FisherEMADecay is the exponential moving average decay for
	// importance accumulation.
	FisherEMADecay float64 `yaml:"fisher_ema_decay"`

	// FisherUpdateAfter is how many steps between folding the temporary
	// importance estimate into the running one.
	FisherUpdateAfter int `yaml:"fisher_update_after"`
}

// MemoryConfig controls the episodic memory buffers.
type MemoryConfig struct {
	// MemPerClass is the per-class slot count for ring and anchor stores,
	// and scales the reservoir capacity.
	MemPerClass int `yaml:"mem_per_class"`

	// SampleBatch is the episodic sample size drawn per training step.
	SampleBatch int `yaml:"sample_batch"`

	// AnchorEta blends the running average image into hindsight anchors.
	AnchorEta float64 `yaml:"anchor_eta"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects the results backend.
type StorageConfig struct {
	// Backend is sqlite or postgres.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig mirrors the Postgres connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSL      bool   `yaml:"ssl"`
}
