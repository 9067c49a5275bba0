// Package results persists experiment metadata and accuracy tensors.
package results

import (
	"context"
	"errors"
	"time"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

var (
	// ErrStoreInitFailed signals the backing database could not be opened.
	ErrStoreInitFailed = errors.New("results store initialization failed")
	// ErrStoreClosed signals use after Close.
	ErrStoreClosed = errors.New("results store is closed")
	// ErrExperimentNotFound signals an unknown experiment id.
	ErrExperimentNotFound = errors.New("experiment not found")
)

// Experiment is the persisted metadata of one benchmark invocation.
type Experiment struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Optimizer string    `json:"optimizer"`
	Arch      string    `json:"arch"`
	Config    string    `json:"config"` // JSON-encoded full configuration
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists experiments and their accuracy tensors.
type Store interface {
	// SaveExperiment records experiment metadata.
	SaveExperiment(ctx context.Context, exp *Experiment) error

	// SaveRunSet records every cell of the [run][trained][evaluated] tensor
	// for the experiment.
	SaveRunSet(ctx context.Context, experimentID string, rs *continual.RunSet) error

	// LoadRunSet reassembles the tensor for an experiment.
	LoadRunSet(ctx context.Context, experimentID string) (*continual.RunSet, error)

	// GetExperiment returns the metadata for an experiment.
	GetExperiment(ctx context.Context, experimentID string) (*Experiment, error)

	// ListExperiments returns all experiments, newest first.
	ListExperiments(ctx context.Context) ([]*Experiment, error)

	Close() error
}
