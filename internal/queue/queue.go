package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/campaignd/internal/util"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is one durable task row. Execution is at-least-once: a job whose
// lease expires is put back to pending, so handlers must be idempotent.
type Job struct {
	ID             string          `db:"id"`
	Type           string          `db:"type"`
	Status         JobStatus       `db:"status"`
	Payload        json.RawMessage `db:"payload"`
	RunAt          time.Time       `db:"run_at"`
	Attempts       int             `db:"attempts"`
	MaxAttempts    int             `db:"max_attempts"`
	LastError      *string         `db:"last_error"`
	LeaseExpiresAt *time.Time      `db:"lease_expires_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Options tunes a single enqueue. Zero values fall back to the queue
// defaults (immediate run, 3 attempts).
type Options struct {
	Delay       time.Duration
	MaxAttempts int
}

const (
	defaultMaxAttempts = 3
	// retryBaseDelay is the first-retry backoff; each further attempt doubles it.
	retryBaseDelay = time.Second
)

// Enqueuer is the producer-side surface of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any, opts Options) (string, error)
}

// Lister exposes unsettled jobs for reconciliation cross-referencing.
type Lister interface {
	ListUnsettled(ctx context.Context, taskType string) ([]Job, error)
}

// Repository persists jobs in MySQL. Claiming relies on
// FOR UPDATE SKIP LOCKED so any number of worker processes can poll the
// same table without handing out a job twice.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository { return &Repository{db: db} }

var _ Enqueuer = (*Repository)(nil)
var _ Lister = (*Repository)(nil)

// Enqueue inserts one pending job and returns its id.
func (r *Repository) Enqueue(ctx context.Context, taskType string, payload any, opts Options) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	id := util.NewULID()
	runAt := time.Now().UTC().Add(opts.Delay)

	const q = `
		INSERT INTO jobs
		    (id, type, status, payload, run_at, attempts, max_attempts, created_at, updated_at)
		VALUES
		    (?,  ?,    'pending', ?,     ?,      0,        ?,           NOW(3),     NOW(3))
	`
	if _, err := r.db.ExecContext(ctx, q, id, taskType, body, runAt, maxAttempts); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// ClaimNext atomically reserves the next due pending job of the given type,
// or returns nil when none is due. The reservation holds a lease; a worker
// that dies without settling the job loses it back to pending once the
// lease expires.
func (r *Repository) ClaimNext(ctx context.Context, taskType string, lease time.Duration) (*Job, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowxContext(ctx, `
		SELECT id
		  FROM jobs
		 WHERE type = ? AND status = 'pending' AND run_at <= NOW(3)
		 ORDER BY run_at ASC, id ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED
	`, taskType).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'running',
		       attempts = attempts + 1,
		       lease_expires_at = ?,
		       updated_at = NOW(3)
		 WHERE id = ?
	`, time.Now().UTC().Add(lease), id); err != nil {
		return nil, fmt.Errorf("mark running: %w", err)
	}

	var job Job
	if err := tx.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("reload job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete settles a job successfully.
func (r *Repository) Complete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'completed', lease_expires_at = NULL, updated_at = NOW(3)
		 WHERE id = ? AND status = 'running'
	`, id)
	return err
}

// Fail records a handler error. While attempts remain the job goes back to
// pending with exponential backoff; otherwise it is parked as failed and
// the reconciler becomes the backstop.
func (r *Repository) Fail(ctx context.Context, job *Job, cause error) error {
	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}

	if job.Attempts >= job.MaxAttempts {
		_, err := r.db.ExecContext(ctx, `
			UPDATE jobs
			   SET status = 'failed', last_error = ?, lease_expires_at = NULL, updated_at = NOW(3)
			 WHERE id = ? AND status = 'running'
		`, msg, job.ID)
		return err
	}

	runAt := time.Now().UTC().Add(RetryBackoff(job.Attempts))
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'pending', last_error = ?, run_at = ?, lease_expires_at = NULL, updated_at = NOW(3)
		 WHERE id = ? AND status = 'running'
	`, msg, runAt, job.ID)
	return err
}

// RetryBackoff returns the delay before retry number attempt+1, doubling
// per attempt from a 1s base.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := retryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}

// RequeueExpired returns running jobs whose lease lapsed (crashed worker)
// to pending so another worker can pick them up.
func (r *Repository) RequeueExpired(ctx context.Context, taskType string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'pending', lease_expires_at = NULL, updated_at = NOW(3)
		 WHERE type = ? AND status = 'running'
		   AND lease_expires_at IS NOT NULL AND lease_expires_at < NOW(3)
	`, taskType)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListUnsettled returns pending and running jobs of one type, payloads
// included, so the reconciler can tell in-flight work from orphans.
func (r *Repository) ListUnsettled(ctx context.Context, taskType string) ([]Job, error) {
	var jobs []Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs
		 WHERE type = ? AND status IN ('pending', 'running')
	`, taskType)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// PurgeSettled deletes completed and failed jobs older than the given age.
func (r *Repository) PurgeSettled(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs
		 WHERE status IN ('completed', 'failed') AND updated_at < ?
	`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
