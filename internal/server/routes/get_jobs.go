package routes

import (
	"errors"
	"net/http"

	"github.com/minescope/backend/internal/jobs"
	"github.com/minescope/backend/internal/server/middleware"
	"github.com/minescope/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetJobHandler returns the current state of an ingestion job, including
// the summary once the worker has finished.
func GetJobHandler(c echo.Context) error {
	type getJobParams struct {
		ID string `param:"id" validate:"required"`
	}

	type getJobResponse struct {
		Message string    `json:"message,omitempty"`
		Job     *jobs.Job `json:"job,omitempty"`
	}

	params := new(getJobParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getJobResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getJobResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	job, err := app.Jobs.Get(ctx, params.ID)
	if errors.Is(err, jobs.ErrNotFound) {
		return c.JSON(http.StatusNotFound, getJobResponse{
			Message: "Job not found",
		})
	}
	if err != nil {
		logger.Error("Failed to load job", "job", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getJobResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getJobResponse{Job: &job})
}
