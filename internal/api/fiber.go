package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	gqlschema "github.com/vulnscout/vulnscout-backend/graphql"
	"github.com/vulnscout/vulnscout-backend/internal/scanner"
	"github.com/vulnscout/vulnscout-backend/restapi"
)

// NewFiberApp creates and configures a Fiber app with REST and GraphQL routes
func NewFiberApp(mgr *scanner.Manager, detector scanner.DependencyDetector) (*fiber.App, error) {
	schema, err := gqlschema.CreateSchema(mgr)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:     "vulnscout-backend API v1.0",
		ReadTimeout: 60 * time.Second,
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New())
	app.Use(logger.New())

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	restapi.SetupRoutes(app, mgr, detector, schema)

	return app, nil
}
