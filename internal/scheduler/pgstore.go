package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the production backend: one row per job id in scheduler_jobs,
// every atomic operation a single conditional UPDATE. The row-level atomicity
// of a single statement is what serializes claims across replicas.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore on the given pool. The scheduler_jobs table is
// created by the migrations runner, not here.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const jobColumns = `id, kind, payload, schedule, next_run_at, status, attempts,
	max_attempts, lease_owner, lease_until, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var schedule []byte
	err := row.Scan(
		&j.ID, &j.Kind, &j.Payload, &schedule, &j.NextRunAt, &j.Status,
		&j.Attempts, &j.MaxAttempts, &j.LeaseOwner, &j.LeaseUntil,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schedule, &j.Schedule); err != nil {
		return nil, fmt.Errorf("parsing schedule for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *PGStore) Put(ctx context.Context, job *Job) error {
	schedule, err := json.Marshal(job.Schedule)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	payload := job.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scheduler_jobs
			(id, kind, payload, schedule, next_run_at, status, attempts,
			 max_attempts, lease_owner, lease_until, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			payload = EXCLUDED.payload,
			schedule = EXCLUDED.schedule,
			next_run_at = EXCLUDED.next_run_at,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			lease_owner = EXCLUDED.lease_owner,
			lease_until = EXCLUDED.lease_until,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		job.ID, job.Kind, payload, schedule, job.NextRunAt, job.Status,
		job.Attempts, job.MaxAttempts, job.LeaseOwner, job.LeaseUntil,
		job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scheduler_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	return j, err
}

func (s *PGStore) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM scheduler_jobs
		 WHERE status = 'pending' AND next_run_at <= $1
		 ORDER BY next_run_at, id
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGStore) Claim(ctx context.Context, id, owner string, now time.Time, lease time.Duration) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE scheduler_jobs SET
			status = 'running',
			lease_owner = $2,
			lease_until = $3,
			attempts = attempts + 1,
			updated_at = $4
		WHERE id = $1
		  AND (status = 'pending' OR (status = 'running' AND lease_until < $4))
		RETURNING `+jobColumns,
		id, owner, now.Add(lease), now,
	)
	j, err := scanJob(row)
	if err == pgx.ErrNoRows {
		// Distinguish a missing record from one another replica holds.
		if _, getErr := s.Get(ctx, id); getErr == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, ErrLostLease
	}
	return j, err
}

func (s *PGStore) Finalize(ctx context.Context, id, owner string, now time.Time, tr Transition) error {
	var affected int64
	var err error
	switch tr.Kind {
	case TransitionComplete:
		affected, err = s.finalizeExec(ctx,
			`UPDATE scheduler_jobs SET
				status = 'completed', lease_owner = NULL, lease_until = NULL, updated_at = $3
			WHERE id = $1 AND status = 'running' AND lease_owner = $2`,
			id, owner, now)
	case TransitionFailRetry:
		affected, err = s.finalizeExec(ctx,
			`UPDATE scheduler_jobs SET
				status = 'pending', next_run_at = $4, last_error = $5,
				lease_owner = NULL, lease_until = NULL, updated_at = $3
			WHERE id = $1 AND status = 'running' AND lease_owner = $2`,
			id, owner, now, tr.NextRunAt, tr.LastError)
	case TransitionFailTerminal:
		affected, err = s.finalizeExec(ctx,
			`UPDATE scheduler_jobs SET
				status = 'failed', last_error = $4,
				lease_owner = NULL, lease_until = NULL, updated_at = $3
			WHERE id = $1 AND status = 'running' AND lease_owner = $2`,
			id, owner, now, tr.LastError)
	case TransitionReschedule:
		affected, err = s.finalizeExec(ctx,
			`UPDATE scheduler_jobs SET
				status = 'pending', next_run_at = $4, attempts = 0, last_error = NULL,
				lease_owner = NULL, lease_until = NULL, updated_at = $3
			WHERE id = $1 AND status = 'running' AND lease_owner = $2`,
			id, owner, now, tr.NextRunAt)
	default:
		return fmt.Errorf("unknown transition kind %q", tr.Kind)
	}
	if err != nil {
		return fmt.Errorf("finalize job %s: %w", id, err)
	}
	if affected == 0 {
		// Owner check failed: the lease expired and was stolen, or the id is
		// gone. Either way the losing replica must not write.
		return ErrLostLease
	}
	return nil
}

func (s *PGStore) finalizeExec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) Cancel(ctx context.Context, id string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduler_jobs SET status = 'cancelled', updated_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr == ErrNotFound {
			return ErrNotFound
		}
		return ErrNotPending
	}
	return nil
}

func (s *PGStore) Retry(ctx context.Context, id string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduler_jobs SET
			status = 'pending', next_run_at = $2, attempts = 0,
			last_error = NULL, updated_at = $2
		 WHERE id = $1 AND status = 'failed'`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("retry job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr == ErrNotFound {
			return ErrNotFound
		}
		return ErrNotFailed
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduler_jobs WHERE 1=1`
	args := []any{}
	argN := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, filter.Status)
		argN++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argN)
		args = append(args, filter.Kind)
		argN++
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var j Job
		var schedule []byte
		if err := rows.Scan(
			&j.ID, &j.Kind, &j.Payload, &schedule, &j.NextRunAt, &j.Status,
			&j.Attempts, &j.MaxAttempts, &j.LeaseOwner, &j.LeaseUntil,
			&j.LastError, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(schedule, &j.Schedule); err != nil {
			return nil, fmt.Errorf("parsing schedule for job %s: %w", j.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
