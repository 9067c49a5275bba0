package continual

import "errors"

// Configuration errors are detected before any run starts and are fatal.
var (
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrUnknownOptimizer    = errors.New("unknown optimizer")
	ErrUnknownArchitecture = errors.New("unknown architecture")

	// ErrIncompatibleLearner signals a learner that lacks a capability the
	// selected strategy requires.
	ErrIncompatibleLearner = errors.New("learner does not support strategy")
)

// ErrDivergence signals a non-finite loss during training. It is fatal for
// the whole experiment: later iterations cannot recover from divergence.
var ErrDivergence = errors.New("non-finite training loss")
