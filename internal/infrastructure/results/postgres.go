package results

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// PostgresConfig configures the Postgres results backend.
type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSL      bool   `yaml:"ssl" json:"ssl"`
}

// PostgresStore implements Store using PostgreSQL, for shared result
// collection across machines.
type PostgresStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewPostgresStore connects and ensures the schema. Empty config fields
// fall back to the standard PG* environment variables.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.Host == "" {
		cfg.Host = envOrDefault("PGHOST", "localhost")
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.User == "" {
		cfg.User = envOrDefault("PGUSER", "postgres")
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("PGPASSWORD")
	}
	if cfg.Database == "" {
		cfg.Database = os.Getenv("PGDATABASE")
	}

	db, err := sql.Open("postgres", connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreInitFailed, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect: %v", ErrStoreInitFailed, err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func connString(cfg PostgresConfig) string {
	sslMode := "disable"
	if cfg.SSL {
		sslMode = "require"
	}
	s := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Database, sslMode)
	if cfg.Password != "" {
		s += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return s
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			optimizer TEXT NOT NULL,
			arch TEXT NOT NULL,
			config TEXT NOT NULL,
			created_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS accuracies (
			experiment_id TEXT NOT NULL,
			run INTEGER NOT NULL,
			task_trained INTEGER NOT NULL,
			task_evaluated INTEGER NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (experiment_id, run, task_trained, task_evaluated)
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrStoreInitFailed, err)
	}
	return nil
}

// SaveExperiment records experiment metadata.
func (s *PostgresStore) SaveExperiment(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, strategy, optimizer, arch, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, exp.ID, exp.Strategy, exp.Optimizer, exp.Arch, exp.Config, exp.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving experiment %s: %w", exp.ID, err)
	}
	return nil
}

// SaveRunSet records every accuracy cell for the experiment atomically.
func (s *PostgresStore) SaveRunSet(ctx context.Context, experimentID string, rs *continual.RunSet) error {
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
		VALUES ($1, $2, $3, $4, $5)
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
func (s *PostgresStore) LoadRunSet(ctx context.Context, experimentID string) (*continual.RunSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run, task_trained, task_evaluated, accuracy
		FROM accuracies
		WHERE experiment_id = $1
		ORDER BY run, task_trained, task_evaluated
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("loading run set for %s: %w", experimentID, err)
	}
	defer rows.Close()

	return scanRunSet(rows, experimentID)
}

// GetExperiment returns the metadata for an experiment.
func (s *PostgresStore) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
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
		WHERE id = $1
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
func (s *PostgresStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
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
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
