package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/osv-scanner/pkg/models"
	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

// DefaultOSVURL is the public OSV query endpoint.
const DefaultOSVURL = "https://api.osv.dev/v1/query"

// OSVAdapter queries the OSV federated advisory database. One POST query
// per package, no authentication, no explicit quota.
type OSVAdapter struct {
	url    string
	client httpDoer
	cache  *rawCache
	logger *zap.Logger
}

// OSVConfig configures the OSV adapter.
type OSVConfig struct {
	URL      string
	Client   httpDoer
	CacheDir string
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewOSVAdapter creates the OSV adapter.
func NewOSVAdapter(cfg OSVConfig) *OSVAdapter {
	if cfg.URL == "" {
		cfg.URL = DefaultOSVURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &OSVAdapter{
		url:    cfg.URL,
		client: cfg.Client,
		cache:  newRawCache(cfg.CacheDir, "osv", cfg.CacheTTL, cfg.Logger),
		logger: cfg.Logger,
	}
}

// Name implements Adapter.
func (a *OSVAdapter) Name() string { return "osv" }

// osvQuery is the OSV /v1/query request body.
type osvQuery struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
	Version string `json:"version,omitempty"`
}

type osvResponse struct {
	Vulns []models.Vulnerability `json:"vulns"`
}

// FindVulnerabilities implements Adapter.
func (a *OSVAdapter) FindVulnerabilities(ctx context.Context, pkg model.PackageIdentity) ([]model.RawAdvisory, error) {
	if cached, ok := a.cache.read(pkg); ok {
		return cached, nil
	}

	var query osvQuery
	query.Package.Name = pkg.Name
	query.Package.Ecosystem = model.OSVEcosystem(pkg.Ecosystem)
	query.Version = pkg.Version

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: err}
	}

	body, status, _, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, a.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: err}
	}
	if status != http.StatusOK {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: fmt.Errorf("HTTP %d", status)}
	}

	var resp osvResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: err}
	}

	advisories := make([]model.RawAdvisory, 0, len(resp.Vulns))
	for _, vuln := range resp.Vulns {
		advisories = append(advisories, a.toAdvisory(vuln, pkg))
	}

	a.cache.write(pkg, advisories)
	return advisories, nil
}

// toAdvisory converts one OSV vulnerability into a raw advisory.
func (a *OSVAdapter) toAdvisory(vuln models.Vulnerability, pkg model.PackageIdentity) model.RawAdvisory {
	advisory := model.RawAdvisory{
		ID:          vuln.ID,
		Title:       vuln.Summary,
		Description: vuln.Details,
		SourceName:  a.Name(),
		PublishedAt: vuln.Published,
		UpdatedAt:   vuln.Modified,
	}
	if advisory.Title == "" {
		advisory.Title = vuln.ID
	}

	for _, alias := range vuln.Aliases {
		upper := strings.ToUpper(alias)
		if advisory.CVEID == "" && strings.HasPrefix(upper, "CVE-") {
			advisory.CVEID = upper
		}
		if advisory.GHSAID == "" && strings.HasPrefix(upper, "GHSA-") {
			advisory.GHSAID = upper
		}
	}
	if strings.HasPrefix(strings.ToUpper(vuln.ID), "GHSA-") && advisory.GHSAID == "" {
		advisory.GHSAID = strings.ToUpper(vuln.ID)
	}

	advisory.Severity, advisory.CVSSScore = osvSeverity(vuln)

	for _, ref := range vuln.References {
		advisory.References = append(advisory.References, ref.URL)
	}

	osvEco := model.OSVEcosystem(pkg.Ecosystem)
	var clauses []string
	for _, affected := range vuln.Affected {
		if affected.Package.Name != "" && !strings.EqualFold(affected.Package.Name, pkg.Name) {
			continue
		}
		if eco := string(affected.Package.Ecosystem); eco != "" && !strings.EqualFold(eco, osvEco) {
			continue
		}
		clauses = append(clauses, affectedClauses(affected)...)
		advisory.FixedVersions = append(advisory.FixedVersions, fixedVersions(affected)...)
	}
	advisory.AffectedRange = strings.Join(clauses, " || ")
	advisory.FixedVersions = util.UniqueStrings(advisory.FixedVersions)
	return advisory
}

// osvSeverity derives a severity bucket: CVSS vector first, then the
// database_specific severity field, then medium as the default.
func osvSeverity(vuln models.Vulnerability) (model.Severity, float64) {
	var highest float64
	for _, sev := range vuln.Severity {
		if score := util.CalculateCVSSScore(string(sev.Score)); score > highest {
			highest = score
		}
	}
	for _, affected := range vuln.Affected {
		for _, sev := range affected.Severity {
			if score := util.CalculateCVSSScore(string(sev.Score)); score > highest {
				highest = score
			}
		}
	}
	if highest > 0 {
		return model.SeverityFromScore(highest), highest
	}

	if raw, ok := vuln.DatabaseSpecific["severity"].(string); ok {
		if parsed := model.ParseSeverity(raw); parsed != model.SeverityUnknown {
			return parsed, 0
		}
	}
	return model.SeverityMedium, 0
}

// affectedClauses turns an OSV affected entry into comparator clauses.
// Explicit version lists become equality clauses; SEMVER/ECOSYSTEM range
// events become one ">=introduced <fixed" (or "<=last_affected")
// conjunction per vulnerable window. A range may carry several
// introduced/fixed pairs, so each new introduced event closes the
// previous window and opens the next.
func affectedClauses(affected models.Affected) []string {
	var clauses []string

	for _, v := range affected.Versions {
		clauses = append(clauses, "="+v)
	}

	for _, vrange := range affected.Ranges {
		if vrange.Type != models.RangeSemVer && vrange.Type != models.RangeEcosystem {
			continue
		}
		var window rangeWindow
		for _, event := range vrange.Events {
			if event.Introduced != "" {
				if clause := window.clause(); clause != "" {
					clauses = append(clauses, clause)
				}
				window = rangeWindow{introduced: event.Introduced}
			}
			if event.Fixed != "" {
				window.fixed = event.Fixed
			}
			if event.LastAffected != "" {
				window.lastAffected = event.LastAffected
			}
		}
		if clause := window.clause(); clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return clauses
}

// rangeWindow is one vulnerable window inside an OSV range.
type rangeWindow struct {
	introduced   string
	fixed        string
	lastAffected string
}

func (w rangeWindow) clause() string {
	var parts []string
	// "0" means "from the beginning" in the OSV spec.
	if w.introduced != "" && w.introduced != "0" {
		parts = append(parts, ">="+w.introduced)
	}
	switch {
	case w.fixed != "":
		parts = append(parts, "<"+w.fixed)
	case w.lastAffected != "":
		parts = append(parts, "<="+w.lastAffected)
	}
	return strings.Join(parts, " ")
}

func fixedVersions(affected models.Affected) []string {
	var fixed []string
	for _, vrange := range affected.Ranges {
		for _, event := range vrange.Events {
			if event.Fixed != "" {
				fixed = append(fixed, event.Fixed)
			}
		}
	}
	return fixed
}
