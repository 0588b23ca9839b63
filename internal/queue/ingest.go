package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/ingest"
	"github.com/minescope/backend/pkg/leaselock"
	"github.com/minescope/backend/pkg/logger"
)

// IngestMsg is the queue message for one ingestion job. The document
// payload itself is parked in object storage; the message carries only the
// key.
type IngestMsg struct {
	JobID      string `json:"job_id"`
	Filename   string `json:"filename"`
	Mode       string `json:"mode"`
	PayloadKey string `json:"payload_key"`
}

// IngestPayload is the parked document body: pages of extracted text.
type IngestPayload struct {
	Pages []common.Page `json:"pages"`
}

// JobTracker records ingest job state transitions.
type JobTracker interface {
	MarkRunning(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id string, summary common.IngestSummary) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// PayloadStore fetches and removes parked document payloads.
type PayloadStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ProcessIngestMessage runs one ingestion job end to end: fetch the parked
// payload, take the per-document lease, run the pipeline, and record the
// outcome on the job.
//
// A returned error means the message should go to the retry queue. Invalid
// input is never retried: the job is marked failed once and the message is
// dropped by returning nil.
func ProcessIngestMessage(
	ctx context.Context,
	payloads PayloadStore,
	pipeline *ingest.Pipeline,
	jobStore JobTracker,
	locks *leaselock.Client,
	msg string,
) error {
	var data IngestMsg
	if err := json.Unmarshal([]byte(msg), &data); err != nil {
		logger.Error("Discarding malformed ingest message", "err", err)
		return nil
	}

	if err := jobStore.MarkRunning(ctx, data.JobID); err != nil {
		logger.Warn("failed to mark job running", "job", data.JobID, "err", err)
	}

	raw, err := payloads.Get(ctx, data.PayloadKey)
	if err != nil {
		return failJob(ctx, jobStore, data.JobID, err)
	}
	var payload IngestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return discardJob(ctx, jobStore, data.JobID, fmt.Errorf("malformed payload: %w", err))
	}

	mode := ingest.Mode(data.Mode)
	if mode != ingest.ModeFull {
		mode = ingest.ModeIncremental
	}

	docID := common.DocumentID(data.Filename, payload.Pages)
	var summary common.IngestSummary
	err = locks.WithDocumentLease(ctx, docID, leaselock.Options{
		TTL:  10 * time.Minute,
		Wait: true,
	}, func(ctx context.Context) error {
		var runErr error
		summary, runErr = pipeline.IngestDocument(ctx, data.Filename, payload.Pages, mode)
		return runErr
	})
	if err != nil {
		return failJob(ctx, jobStore, data.JobID, err)
	}

	if err := jobStore.MarkFinished(ctx, data.JobID, summary); err != nil {
		logger.Warn("failed to record job summary", "job", data.JobID, "err", err)
	}

	if err := payloads.Delete(ctx, data.PayloadKey); err != nil {
		logger.Warn("failed to delete parked payload", "key", data.PayloadKey, "err", err)
	}

	return nil
}

// failJob records a transient failure and hands the message back for retry.
func failJob(ctx context.Context, jobStore JobTracker, jobID string, cause error) error {
	if err := jobStore.MarkFailed(ctx, jobID, cause); err != nil {
		logger.Warn("failed to mark job failed", "job", jobID, "err", err)
	}
	return cause
}

// discardJob records a permanent input failure. The message is dropped, not
// retried: the input will not get better on the next delivery.
func discardJob(ctx context.Context, jobStore JobTracker, jobID string, cause error) error {
	logger.Error("Discarding job with invalid input", "job", jobID, "err", cause)
	if err := jobStore.MarkFailed(ctx, jobID, cause); err != nil {
		logger.Warn("failed to mark job failed", "job", jobID, "err", err)
	}
	return nil
}
