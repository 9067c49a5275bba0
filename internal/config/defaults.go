package config

// Default returns the baseline configuration for the permuted benchmark.
func Default() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			Strategy:        "VAN",
			NumTasks:        20,
			NumRuns:         5,
			BaseSeed:        1234,
			TrainIters:      5000,
			BatchSize:       10,
			LearningRate:    0.1,
			ExamplesPerTask: 1000,
		},
		Model: ModelConfig{
			Arch:              "FC-S",
			Optimizer:         "SGD",
			SynapticStrength:  0.75,
			FisherEMADecay:    0.9,
			FisherUpdateAfter: 10,
		},
		Memory: MemoryConfig{
			MemPerClass: 1,
			SampleBatch: 256,
			AnchorEta:   0.1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    ".data/experiments.db",
		},
	}
}
