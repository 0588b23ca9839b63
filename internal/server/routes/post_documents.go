package routes

import (
	"encoding/json"
	"net/http"

	"github.com/minescope/backend/internal/jobs"
	"github.com/minescope/backend/internal/queue"
	"github.com/minescope/backend/internal/server/middleware"
	"github.com/minescope/backend/internal/storage"
	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// IngestDocumentHandler accepts a document's extracted pages, parks the
// payload in object storage, and enqueues an ingestion job. The heavy work
// happens on the worker; the handler returns the queued job immediately.
func IngestDocumentHandler(c echo.Context) error {
	type ingestDocumentBody struct {
		Filename string        `json:"filename" validate:"required"`
		Pages    []common.Page `json:"pages" validate:"required,min=1"`
		Mode     string        `json:"mode" validate:"omitempty,oneof=full incremental"`
	}

	type ingestDocumentResponse struct {
		Message    string    `json:"message"`
		DocumentID string    `json:"document_id,omitempty"`
		Job        *jobs.Job `json:"job,omitempty"`
	}

	data := new(ingestDocumentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestDocumentResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestDocumentResponse{
			Message: "Invalid request body",
		})
	}
	if data.Mode == "" {
		data.Mode = "incremental"
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	docID := common.DocumentID(data.Filename, data.Pages)

	payload, err := json.Marshal(queue.IngestPayload{Pages: data.Pages})
	if err != nil {
		return c.JSON(http.StatusBadRequest, ingestDocumentResponse{
			Message: "Invalid request body",
		})
	}
	key, err := storage.PutPayload(ctx, app.S3, docID, payload)
	if err != nil {
		logger.Error("Failed to park document payload", "document", docID, "err", err)
		return c.JSON(http.StatusInternalServerError, ingestDocumentResponse{
			Message: "Internal server error",
		})
	}

	job, err := app.Jobs.Create(ctx, data.Filename, data.Mode, key)
	if err != nil {
		logger.Error("Failed to create ingest job", "document", docID, "err", err)
		return c.JSON(http.StatusInternalServerError, ingestDocumentResponse{
			Message: "Internal server error",
		})
	}

	msg, err := json.Marshal(queue.IngestMsg{
		JobID:      job.ID,
		Filename:   data.Filename,
		Mode:       data.Mode,
		PayloadKey: key,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ingestDocumentResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.Publish(app.Queue, queue.IngestQueue, msg); err != nil {
		logger.Error("Failed to publish to ingest_queue", "job", job.ID, "err", err)
		if err := app.Jobs.MarkFailed(ctx, job.ID, err); err != nil {
			logger.Error("Failed to mark job failed", "job", job.ID, "err", err)
		}
		return c.JSON(http.StatusInternalServerError, ingestDocumentResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, ingestDocumentResponse{
		Message:    "Document queued for ingestion",
		DocumentID: docID,
		Job:        &job,
	})
}
