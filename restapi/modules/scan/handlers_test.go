package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/internal/cache"
	"github.com/vulnscout/vulnscout-backend/internal/scanner"
	"github.com/vulnscout/vulnscout-backend/internal/sources"
	"github.com/vulnscout/vulnscout-backend/model"
)

type fixedAdapter struct {
	advisories []model.RawAdvisory
}

func (a *fixedAdapter) Name() string { return "osv" }

func (a *fixedAdapter) FindVulnerabilities(context.Context, model.PackageIdentity) ([]model.RawAdvisory, error) {
	return a.advisories, nil
}

func testApp(t *testing.T, adapter sources.Adapter) *fiber.App {
	t.Helper()
	c, err := cache.New(t.TempDir(), cache.DefaultTTL, zap.NewNop())
	require.NoError(t, err)
	mgr, err := scanner.New(scanner.Config{
		Adapters: []sources.Adapter{adapter},
		Cache:    c,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/scan", PostScan(mgr))
	app.Post("/scan/batch", PostBatch(mgr))
	app.Post("/scan/directory", PostDirectory(mgr, nil))
	app.Post("/remediation", PostRemediation(mgr))
	app.Post("/report", PostReport(mgr))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestPostScan(t *testing.T) {
	adapter := &fixedAdapter{advisories: []model.RawAdvisory{{
		ID:            "CVE-2021-23337",
		Title:         "Command injection in lodash",
		Severity:      model.SeverityHigh,
		FixedVersions: []string{"4.17.21"},
		SourceName:    "osv",
	}}}
	app := testApp(t, adapter)

	resp := postJSON(t, app, "/scan", ScanRequest{Ecosystem: "npm", Name: "lodash", Version: "4.17.19"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.ScanResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.IsVulnerable)
	require.Len(t, result.Vulnerabilities, 1)
	assert.Equal(t, "CVE-2021-23337", result.Vulnerabilities[0].ID)
}

func TestPostScanUnsupportedEcosystem(t *testing.T) {
	app := testApp(t, &fixedAdapter{})

	resp := postJSON(t, app, "/scan", ScanRequest{Ecosystem: "homebrew", Name: "wget", Version: "1.21"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPostScanInvalidBody(t *testing.T) {
	app := testApp(t, &fixedAdapter{})

	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostBatch(t *testing.T) {
	app := testApp(t, &fixedAdapter{})

	resp := postJSON(t, app, "/scan/batch", BatchRequest{Packages: []scanner.PackageRequest{
		{Ecosystem: "npm", Name: "lodash", Version: "4.17.19"},
		{Ecosystem: "homebrew", Name: "wget", Version: "1.21"},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var batch model.BatchScanResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	assert.Equal(t, 1, batch.Scanned)
	assert.Equal(t, 1, batch.Failed)
	assert.Len(t, batch.Items, 2)
}

func TestPostDirectoryWithoutDetector(t *testing.T) {
	app := testApp(t, &fixedAdapter{})

	resp := postJSON(t, app, "/scan/directory", DirectoryRequest{Directory: "/proj"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPostRemediation(t *testing.T) {
	adapter := &fixedAdapter{advisories: []model.RawAdvisory{{
		ID:            "CVE-2021-23337",
		Title:         "Command injection in lodash",
		Severity:      model.SeverityHigh,
		FixedVersions: []string{"4.17.21"},
		SourceName:    "osv",
	}}}
	app := testApp(t, adapter)

	resp := postJSON(t, app, "/remediation", ScanRequest{Ecosystem: "npm", Name: "lodash", Version: "4.17.19"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var advice model.RemediationAdvice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&advice))
	assert.True(t, advice.HasFix)
	assert.Equal(t, "4.17.21", advice.RecommendedVersion)
	assert.Equal(t, "npm install lodash@4.17.21", advice.UpdateCommand)
}

func TestPostReport(t *testing.T) {
	adapter := &fixedAdapter{advisories: []model.RawAdvisory{{
		ID:         "CVE-2021-23337",
		Title:      "Command injection in lodash",
		Severity:   model.SeverityCritical,
		SourceName: "osv",
	}}}
	app := testApp(t, adapter)

	resp := postJSON(t, app, "/report", BatchRequest{Packages: []scanner.PackageRequest{
		{Ecosystem: "npm", Name: "lodash", Version: "4.17.19"},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Report model.Report `json:"report"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Report.TotalScanned)
	assert.Equal(t, 1, body.Report.TotalVulnerable)
	require.Len(t, body.Report.Entries, 1)
	assert.Equal(t, model.SeverityCritical, body.Report.Entries[0].HighestSeverity)
}
