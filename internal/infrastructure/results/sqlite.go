package results

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// SQLiteStore implements Store using SQLite. It is the default backend.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ".data/experiments.db"
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create directory: %v", ErrStoreInitFailed, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreInitFailed, err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			optimizer TEXT NOT NULL,
			arch TEXT NOT NULL,
			config TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS accuracies (
			experiment_id TEXT NOT NULL,
			run INTEGER NOT NULL,
			task_trained INTEGER NOT NULL,
			task_evaluated INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			PRIMARY KEY (experiment_id, run, task_trained, task_evaluated)
		);

		CREATE INDEX IF NOT EXISTS idx_accuracies_experiment ON accuracies(experiment_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrStoreInitFailed, err)
	}
	return nil
}

// SaveExperiment records experiment metadata.
func (s *SQLiteStore) SaveExperiment(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, strategy, optimizer, arch, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, exp.ID, exp.Strategy, exp.Optimizer, exp.Arch, exp.Config, exp.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving experiment %s: %w", exp.ID, err)
	}
	return nil
}

// SaveRunSet records every accuracy cell for the experiment atomically.
func (s *SQLiteStore) SaveRunSet(ctx context.Context, experimentID string, rs *continual.RunSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving run set for %s: %w", experimentID, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accuracies (experiment_id, run, task_trained, task_evaluated, accuracy)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("saving run set for %s: %w", experimentID, err)
	}
	defer stmt.Close()

	for run, matrix := range rs.Runs {
		for trained, row := range matrix {
			for evaluated, acc := range row {
				if _, err := stmt.ExecContext(ctx, experimentID, run, trained, evaluated, acc); err != nil {
					return fmt.Errorf("saving run set for %s: %w", experimentID, err)
				}
			}
		}
	}
	return tx.Commit()
}

// LoadRunSet reassembles the accuracy tensor for an experiment.
func (s *SQLiteStore) LoadRunSet(ctx context.Context, experimentID string) (*continual.RunSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run, task_trained, task_evaluated, accuracy
		FROM accuracies
		WHERE experiment_id = ?
		ORDER BY run, task_trained, task_evaluated
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("loading run set for %s: %w", experimentID, err)
	}
	defer rows.Close()

	return scanRunSet(rows, experimentID)
}

// GetExperiment returns the metadata for an experiment.
func (s *SQLiteStore) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var exp Experiment
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, optimizer, arch, config, created_at
		FROM experiments
		WHERE id = ?
	`, experimentID).Scan(&exp.ID, &exp.Strategy, &exp.Optimizer, &exp.Arch, &exp.Config, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading experiment %s: %w", experimentID, err)
	}
	exp.CreatedAt = msToTime(createdAt)
	return &exp, nil
}

// ListExperiments returns all experiments, newest first.
func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, optimizer, arch, config, created_at
		FROM experiments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing experiments: %w", err)
	}
	defer rows.Close()

	var exps []*Experiment
	for rows.Next() {
		var exp Experiment
		var createdAt int64
		if err := rows.Scan(&exp.ID, &exp.Strategy, &exp.Optimizer, &exp.Arch, &exp.Config, &createdAt); err != nil {
			return nil, fmt.Errorf("listing experiments: %w", err)
		}
		exp.CreatedAt = msToTime(createdAt)
		exps = append(exps, &exp)
	}
	return exps, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
