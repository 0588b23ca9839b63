package routes

import (
	"net/http"

	"github.com/minescope/backend/internal/server/middleware"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/query"

	"github.com/labstack/echo/v4"
)

// QueryHandler answers a question against the ingested corpus and returns
// the structured report: supporting chunks with citations, the expanded
// subgraph, cost rollups, and the synthesized answer.
func QueryHandler(c echo.Context) error {
	type queryBody struct {
		Question   string `json:"question" validate:"required"`
		DocumentID string `json:"document_id"`
		NodeType   string `json:"node_type"`
		TopK       int    `json:"top_k" validate:"omitempty,min=1,max=50"`
		MaxHops    int    `json:"max_hops" validate:"omitempty,min=1,max=5"`
	}

	type queryResponse struct {
		Message string        `json:"message,omitempty"`
		Report  *query.Report `json:"report,omitempty"`
	}

	data := new(queryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	report, err := app.Query.Query(ctx, query.Request{
		Question:   data.Question,
		DocumentID: data.DocumentID,
		NodeType:   data.NodeType,
		TopK:       data.TopK,
		MaxHops:    data.MaxHops,
	})
	if err != nil {
		logger.Error("Query failed", "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, queryResponse{Report: &report})
}
