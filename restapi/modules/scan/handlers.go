// Package scan provides the REST handlers for package scanning.
package scan

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vulnscout/vulnscout-backend/internal/scanner"
	"github.com/vulnscout/vulnscout-backend/model"
)

// ScanRequest is the body for POST /api/v1/scan.
type ScanRequest struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	NoCache   bool   `json:"no_cache,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// BatchRequest is the body for POST /api/v1/scan/batch and /report.
type BatchRequest struct {
	Packages  []scanner.PackageRequest `json:"packages"`
	BatchSize int                      `json:"batch_size,omitempty"`
	NoCache   bool                     `json:"no_cache,omitempty"`
}

// DirectoryRequest is the body for POST /api/v1/scan/directory.
type DirectoryRequest struct {
	Directory string `json:"directory"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// PostScan scans one package@version across all advisory sources.
func PostScan(mgr *scanner.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ScanRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		result, err := mgr.ScanPackage(c.Context(), req.Ecosystem, req.Name, req.Version, model.ScanOptions{
			NoCache: req.NoCache,
			Force:   req.Force,
		})
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	}
}

// PostBatch scans a list of packages in rate-limit-friendly chunks.
func PostBatch(mgr *scanner.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req BatchRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		batch, err := mgr.BatchScan(c.Context(), req.Packages, model.BatchOptions{
			BatchSize: req.BatchSize,
			NoCache:   req.NoCache,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(batch)
	}
}

// PostDirectory scans every dependency the detector finds in a directory.
// Responds 503 when no dependency detector is wired in.
func PostDirectory(mgr *scanner.Manager, detector scanner.DependencyDetector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if detector == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "no dependency detector configured",
			})
		}

		var req DirectoryRequest
		if err := c.BodyParser(&req); err != nil || req.Directory == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "directory is required"})
		}

		result, err := mgr.ScanDirectory(c.Context(), detector, req.Directory, model.BatchOptions{
			BatchSize: req.BatchSize,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	}
}

// PostRemediation scans one package and returns the minimal safe upgrade.
func PostRemediation(mgr *scanner.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ScanRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		result, err := mgr.ScanPackage(c.Context(), req.Ecosystem, req.Name, req.Version, model.ScanOptions{
			NoCache: req.NoCache,
		})
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}

		advice, err := scanner.GetRemediationAdvice(req.Ecosystem, req.Name, req.Version, result.Vulnerabilities)
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(advice)
	}
}

// PostReport batch-scans the supplied packages and aggregates the results
// into a severity-ordered report.
func PostReport(mgr *scanner.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req BatchRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		batch, err := mgr.BatchScan(c.Context(), req.Packages, model.BatchOptions{
			BatchSize: req.BatchSize,
			NoCache:   req.NoCache,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		var results []model.ScanResult
		for _, item := range batch.Items {
			if item.Result != nil {
				results = append(results, *item.Result)
			}
		}

		report := scanner.GenerateReport(results)
		return c.JSON(fiber.Map{
			"report":       report,
			"failed_items": batch.Failed,
			"generated_at": time.Now(),
		})
	}
}
