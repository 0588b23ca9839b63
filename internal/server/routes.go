package server

import (
	"github.com/minescope/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Document ingestion routes
	apiRoutes.POST("/documents", routes.IngestDocumentHandler)
	apiRoutes.GET("/jobs/:id", routes.GetJobHandler)

	// Retrieval routes
	apiRoutes.POST("/query", routes.QueryHandler)

	// Graph inspection routes
	apiRoutes.GET("/graph/nodes", routes.GetGraphNodesHandler)
	apiRoutes.GET("/graph/edges", routes.GetGraphEdgesHandler)
}
