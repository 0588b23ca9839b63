package routes

import (
	"net/http"

	"github.com/minescope/backend/internal/server/middleware"
	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetGraphNodesHandler lists graph nodes, optionally scoped to a document
// and a node type.
func GetGraphNodesHandler(c echo.Context) error {
	type graphNodesParams struct {
		DocumentID string `query:"document_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" validate:"omitempty,min=1,max=1000"`
		Offset     int    `query:"offset" validate:"omitempty,min=0"`
	}

	type graphNodesResponse struct {
		Message string        `json:"message,omitempty"`
		Nodes   []common.Node `json:"nodes"`
	}

	params := new(graphNodesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, graphNodesResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, graphNodesResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	nodes, err := app.Graph.ListNodes(ctx, params.DocumentID, params.Type, params.Limit, params.Offset)
	if err != nil {
		logger.Error("Failed to list graph nodes", "err", err)
		return c.JSON(http.StatusInternalServerError, graphNodesResponse{
			Message: "Internal server error",
		})
	}
	if nodes == nil {
		nodes = []common.Node{}
	}

	return c.JSON(http.StatusOK, graphNodesResponse{Nodes: nodes})
}

// GetGraphEdgesHandler lists graph edges, optionally scoped to a document
// and a relationship type.
func GetGraphEdgesHandler(c echo.Context) error {
	type graphEdgesParams struct {
		DocumentID string `query:"document_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" validate:"omitempty,min=1,max=1000"`
		Offset     int    `query:"offset" validate:"omitempty,min=0"`
	}

	type graphEdgesResponse struct {
		Message string        `json:"message,omitempty"`
		Edges   []common.Edge `json:"edges"`
	}

	params := new(graphEdgesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, graphEdgesResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, graphEdgesResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	edges, err := app.Graph.ListEdges(ctx, params.DocumentID, params.Type, params.Limit, params.Offset)
	if err != nil {
		logger.Error("Failed to list graph edges", "err", err)
		return c.JSON(http.StatusInternalServerError, graphEdgesResponse{
			Message: "Internal server error",
		})
	}
	if edges == nil {
		edges = []common.Edge{}
	}

	return c.JSON(http.StatusOK, graphEdgesResponse{Edges: edges})
}
