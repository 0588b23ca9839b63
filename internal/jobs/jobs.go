package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/minescope/backend/pkg/common"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Status of an ingestion job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// Job tracks one ingestion request from acceptance to completion. The
// summary is filled in when the worker finishes.
type Job struct {
	ID         string                `json:"id"`
	DocumentID string                `json:"document_id,omitempty"`
	Filename   string                `json:"filename"`
	Mode       string                `json:"mode"`
	PayloadKey string                `json:"-"`
	Status     Status                `json:"status"`
	Summary    *common.IngestSummary `json:"summary,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Store persists jobs in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a job store on the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a queued job and returns it.
func (s *Store) Create(ctx context.Context, filename, mode, payloadKey string) (Job, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Job{}, err
	}

	job := Job{
		ID:         id,
		Filename:   filename,
		Mode:       mode,
		PayloadKey: payloadKey,
		Status:     StatusQueued,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO ingest_jobs (id, filename, mode, payload_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, job.ID, job.Filename, job.Mode, job.PayloadKey, job.Status).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

// Get returns the job by id.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	var (
		job         Job
		summaryJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(document_id, ''), filename, mode, payload_key,
		       status, summary, COALESCE(error, ''), created_at, updated_at
		FROM ingest_jobs WHERE id = $1
	`, id).Scan(
		&job.ID, &job.DocumentID, &job.Filename, &job.Mode, &job.PayloadKey,
		&job.Status, &summaryJSON, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}

	if len(summaryJSON) > 0 {
		var summary common.IngestSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return Job{}, err
		}
		job.Summary = &summary
	}
	return job, nil
}

// MarkRunning moves a job to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusRunning)
}

// MarkFinished records the outcome of a completed run. Partial success is
// its own status so callers can spot chunk-level failures without reading
// the summary.
func (s *Store) MarkFinished(ctx context.Context, id string, summary common.IngestSummary) error {
	status := StatusDone
	if summary.Partial() {
		status = StatusPartial
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = $2, document_id = $3, summary = $4, updated_at = now()
		WHERE id = $1
	`, id, status, summary.DocumentID, summaryJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a job-level failure.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1
	`, id, StatusFailed, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) setStatus(ctx context.Context, id string, status Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ingest_jobs SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
