// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/vulnscout/vulnscout-backend/internal/scanner"
	"github.com/vulnscout/vulnscout-backend/restapi/modules/scan"
)

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
func SetupRoutes(app *fiber.App, mgr *scanner.Manager, detector scanner.DependencyDetector, schema graphql.Schema) {
	// API Group /api/v1
	api := app.Group("/api/v1")

	// GraphQL Route
	api.Post("/graphql", GraphQLHandler(schema))

	// Scan Routes
	api.Post("/scan", scan.PostScan(mgr))
	api.Post("/scan/batch", scan.PostBatch(mgr))
	api.Post("/scan/directory", scan.PostDirectory(mgr, detector))
	api.Post("/remediation", scan.PostRemediation(mgr))
	api.Post("/report", scan.PostReport(mgr))
}
