package continual

// Learner is the contract the orchestrator needs from the model/optimizer
// collaborator. The mathematics behind each operation is owned by the
// implementation; the orchestrator only schedules calls and checks the
// returned loss for divergence.
type Learner interface {
	// TrainStep performs one gradient step on the batch and returns the
	// loss, including any regularization terms the learner applies.
	TrainStep(batch Batch, p StepParams) float64

	// TrainClassifierStep updates only the output layer, leaving the
	// feature layers frozen.
	TrainClassifierStep(batch Batch, p StepParams) float64

	// Evaluate returns accuracy on the batch with all classes active.
	// It must not mutate parameters.
	Evaluate(batch Batch) float64

	// RefreshImportance recomputes the learner's running importance or
	// regularization state from a full pass over the task's training set.
	// Importance state accumulates across tasks and is never reset.
	RefreshImportance(data Batch)

	// SaveCheckpoint snapshots the current parameters.
	SaveCheckpoint()

	// RestoreCheckpoint restores the last snapshot. A restore with no
	// prior snapshot is a no-op.
	RestoreCheckpoint()

	// ResetOptimizer clears optimizer state (momentum accumulators and
	// the like) between tasks.
	ResetOptimizer()
}

// GradientProjector is the extra capability the gradient-projection family
// needs: a reference gradient computed on a memory sample before the main
// step, used to veto or project the main update.
type GradientProjector interface {
	StoreReferenceGradient(batch Batch)
}

// EmbeddingScorer exposes the mean-embedding score (phi_hat) used to
// synthesize hindsight anchors.
type EmbeddingScorer interface {
	MeanEmbedding(batch Batch) []float64
}

// MetaBlender is the capability the meta-learning replay strategy needs:
// snapshot parameters before the micro-step sequence, then interpolate
// back toward the snapshot after the final step.
type MetaBlender interface {
	SnapshotWeights()
	ReptileBlend(beta float64)
}

// AnchorLearner trains on a combined objective of task loss over the batch
// plus a consistency loss over the anchor sample.
type AnchorLearner interface {
	TrainAnchorStep(batch, anchors Batch, p StepParams) AnchorLoss
}
