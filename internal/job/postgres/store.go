// Package postgres provides a pgx-backed job store for deployments that want
// jobs to survive a process restart. A job left in the executing state by a
// crash mid-payout stays there; no reconciliation is attempted.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solbridge-labs/relay/internal/ids"
	"github.com/solbridge-labs/relay/internal/job"
)

var ErrInvalidConfig = errors.New("job/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("job/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, req job.Request) (job.Job, error) {
	id, err := ids.NewJobID()
	if err != nil {
		return job.Job{}, err
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return job.Job{}, fmt.Errorf("job/postgres: encode request: %w", err)
	}

	var createdAt, updatedAt time.Time
	err = s.pool.QueryRow(ctx, `
		INSERT INTO relay_jobs (job_id, status, request)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, id, string(job.StatusPending), reqJSON).Scan(&createdAt, &updatedAt)
	if err != nil {
		return job.Job{}, fmt.Errorf("job/postgres: insert: %w", err)
	}

	return job.Job{
		ID:        id,
		Status:    job.StatusPending,
		Request:   req,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *Store) Get(ctx context.Context, id string) (job.Job, error) {
	return s.scanOne(ctx, `
		SELECT job_id, status, request, simulated, tx_hash, explorer_url, error_message, created_at, updated_at
		FROM relay_jobs
		WHERE job_id = $1
	`, id)
}

func (s *Store) Update(ctx context.Context, id string, upd job.Update) (job.Job, error) {
	j, err := s.scanOne(ctx, `
		UPDATE relay_jobs
		SET
			status = COALESCE($2, status),
			simulated = COALESCE($3, simulated),
			tx_hash = COALESCE($4, tx_hash),
			explorer_url = COALESCE($5, explorer_url),
			error_message = COALESCE($6, error_message),
			updated_at = now()
		WHERE job_id = $1
		RETURNING job_id, status, request, simulated, tx_hash, explorer_url, error_message, created_at, updated_at
	`, id, statusArg(upd.Status), upd.Simulated, upd.TxHash, upd.ExplorerURL, upd.ErrorMessage)
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// ClaimExecuting relies on the conditional UPDATE for atomicity: of any
// number of concurrent claims, exactly one matches status = 'pending'.
func (s *Store) ClaimExecuting(ctx context.Context, id string) (job.Job, error) {
	j, err := s.scanOne(ctx, `
		UPDATE relay_jobs
		SET status = $2, updated_at = now()
		WHERE job_id = $1 AND status = $3
		RETURNING job_id, status, request, simulated, tx_hash, explorer_url, error_message, created_at, updated_at
	`, id, string(job.StatusExecuting), string(job.StatusPending))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, job.ErrNotFound) {
		return job.Job{}, err
	}

	// Either the job is absent or it is no longer pending; disambiguate.
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return job.Job{}, getErr
	}
	return job.Job{}, &job.NotPendingError{Status: current.Status}
}

func (s *Store) scanOne(ctx context.Context, sql string, args ...any) (job.Job, error) {
	if s == nil || s.pool == nil {
		return job.Job{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var (
		j       job.Job
		status  string
		reqJSON []byte
	)
	err := s.pool.QueryRow(ctx, sql, args...).Scan(
		&j.ID,
		&status,
		&reqJSON,
		&j.Simulated,
		&j.TxHash,
		&j.ExplorerURL,
		&j.ErrorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, fmt.Errorf("job/postgres: query: %w", err)
	}
	j.Status = job.Status(status)
	if err := json.Unmarshal(reqJSON, &j.Request); err != nil {
		return job.Job{}, fmt.Errorf("job/postgres: decode request: %w", err)
	}
	return j, nil
}

func statusArg(s *job.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
