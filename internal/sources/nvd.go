package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

// DefaultNVDURL is the NVD CVE API 2.0 endpoint.
const DefaultNVDURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// NVD allows 5 requests per rolling 30 seconds without an API key.
const (
	nvdRateLimit  = 5
	nvdRateWindow = 30 * time.Second
)

// NVDAdapter queries the NVD CVE search API. Every call passes through the
// sliding-window rate limiter; requests beyond the quota are delayed,
// never dropped.
type NVDAdapter struct {
	url     string
	apiKey  string
	client  httpDoer
	limiter *RateLimiter
	cache   *rawCache
	logger  *zap.Logger
}

// NVDConfig configures the NVD adapter.
type NVDConfig struct {
	URL      string
	APIKey   string
	Client   httpDoer
	Limiter  *RateLimiter
	CacheDir string
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewNVDAdapter creates the NVD adapter.
func NewNVDAdapter(cfg NVDConfig) *NVDAdapter {
	if cfg.URL == "" {
		cfg.URL = DefaultNVDURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nvdRateLimit, nvdRateWindow)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &NVDAdapter{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		client:  cfg.Client,
		limiter: cfg.Limiter,
		cache:   newRawCache(cfg.CacheDir, "nvd", cfg.CacheTTL, cfg.Logger),
		logger:  cfg.Logger,
	}
}

// Name implements Adapter.
func (a *NVDAdapter) Name() string { return "nvd" }

// nvdResponse mirrors the slice of the CVE API 2.0 schema we consume.
type nvdResponse struct {
	Vulnerabilities []struct {
		CVE nvdCVE `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics struct {
		CVSSMetricV31 []nvdMetric `json:"cvssMetricV31"`
		CVSSMetricV30 []nvdMetric `json:"cvssMetricV30"`
		CVSSMetricV2  []nvdMetric `json:"cvssMetricV2"`
	} `json:"metrics"`
	References []struct {
		URL string `json:"url"`
	} `json:"references"`
	Configurations []struct {
		Nodes []struct {
			CPEMatch []nvdCPEMatch `json:"cpeMatch"`
		} `json:"nodes"`
	} `json:"configurations"`
}

type nvdMetric struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		VectorString string  `json:"vectorString"`
	} `json:"cvssData"`
}

type nvdCPEMatch struct {
	Vulnerable            bool   `json:"vulnerable"`
	Criteria              string `json:"criteria"`
	VersionStartIncluding string `json:"versionStartIncluding"`
	VersionStartExcluding string `json:"versionStartExcluding"`
	VersionEndIncluding   string `json:"versionEndIncluding"`
	VersionEndExcluding   string `json:"versionEndExcluding"`
}

// FindVulnerabilities implements Adapter.
func (a *NVDAdapter) FindVulnerabilities(ctx context.Context, pkg model.PackageIdentity) ([]model.RawAdvisory, error) {
	if cached, ok := a.cache.read(pkg); ok {
		return cached, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: err}
	}

	query := url.Values{}
	query.Set("keywordSearch", pkg.Name)
	query.Set("resultsPerPage", "50")

	body, status, _, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, a.url+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		if a.apiKey != "" {
			req.Header.Set("apiKey", a.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: err}
	}
	if status != http.StatusOK {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: fmt.Errorf("HTTP %d", status)}
	}

	var resp nvdResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: err}
	}

	var advisories []model.RawAdvisory
	for _, item := range resp.Vulnerabilities {
		advisory, relevant := a.toAdvisory(item.CVE, pkg)
		if relevant {
			advisories = append(advisories, advisory)
		}
	}

	a.cache.write(pkg, advisories)
	return advisories, nil
}

// toAdvisory converts an NVD CVE entry into a raw advisory. Keyword search
// is noisy, so entries whose CPE criteria never mention the package name
// are discarded, and entries with version bounds that exclude the scanned
// version are discarded as well.
func (a *NVDAdapter) toAdvisory(cve nvdCVE, pkg model.PackageIdentity) (model.RawAdvisory, bool) {
	advisory := model.RawAdvisory{
		ID:         cve.ID,
		CVEID:      strings.ToUpper(cve.ID),
		SourceName: a.Name(),
	}

	for _, desc := range cve.Descriptions {
		if desc.Lang == "en" {
			advisory.Description = desc.Value
			break
		}
	}
	advisory.Title = titleFromDescription(cve.ID, advisory.Description)

	advisory.CVSSScore = bestNVDScore(cve)
	advisory.Severity = model.SeverityFromScore(advisory.CVSSScore)

	for _, ref := range cve.References {
		advisory.References = append(advisory.References, ref.URL)
	}

	advisory.PublishedAt = parseNVDTime(cve.Published)
	advisory.UpdatedAt = parseNVDTime(cve.LastModified)

	matched := false
	var clauses []string
	for _, config := range cve.Configurations {
		for _, node := range config.Nodes {
			for _, match := range node.CPEMatch {
				if !match.Vulnerable || !cpeMentionsPackage(match.Criteria, pkg.Name) {
					continue
				}
				matched = true
				if clause := cpeMatchClause(match); clause != "" {
					clauses = append(clauses, clause)
				}
			}
		}
	}
	if !matched {
		return advisory, false
	}
	advisory.AffectedRange = strings.Join(clauses, " || ")

	// Version bounds that exclude the scanned version make the CVE
	// irrelevant for this scan; absent bounds stay in fail-safe.
	if advisory.AffectedRange != "" && !util.IsAffected(pkg.Version, advisory.AffectedRange, pkg.Ecosystem) {
		return advisory, false
	}
	return advisory, true
}

// bestNVDScore prefers CVSS v3.1 over v3.0 over v2.0.
func bestNVDScore(cve nvdCVE) float64 {
	for _, metrics := range [][]nvdMetric{
		cve.Metrics.CVSSMetricV31,
		cve.Metrics.CVSSMetricV30,
		cve.Metrics.CVSSMetricV2,
	} {
		if len(metrics) > 0 {
			return metrics[0].CVSSData.BaseScore
		}
	}
	return 0
}

// cpeMatchClause renders version bounds of one CPE match as comparators.
func cpeMatchClause(match nvdCPEMatch) string {
	var parts []string
	if match.VersionStartIncluding != "" {
		parts = append(parts, ">="+match.VersionStartIncluding)
	}
	if match.VersionStartExcluding != "" {
		parts = append(parts, ">"+match.VersionStartExcluding)
	}
	if match.VersionEndExcluding != "" {
		parts = append(parts, "<"+match.VersionEndExcluding)
	}
	if match.VersionEndIncluding != "" {
		parts = append(parts, "<="+match.VersionEndIncluding)
	}
	if len(parts) == 0 {
		// cpe:2.3:a:vendor:product:4.17.19:... pins an exact version.
		if v := cpeVersion(match.Criteria); v != "" && v != "*" && v != "-" {
			return "=" + v
		}
		return ""
	}
	return strings.Join(parts, " ")
}

// cpeMentionsPackage checks the product field of a CPE 2.3 criteria string.
func cpeMentionsPackage(criteria, name string) bool {
	fields := strings.Split(criteria, ":")
	if len(fields) < 5 {
		return strings.Contains(strings.ToLower(criteria), strings.ToLower(name))
	}
	product := strings.ToLower(fields[4])
	name = strings.ToLower(name)
	return product == name || strings.Contains(product, name)
}

func cpeVersion(criteria string) string {
	fields := strings.Split(criteria, ":")
	if len(fields) < 6 {
		return ""
	}
	return fields[5]
}

func parseNVDTime(value string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05.000", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func titleFromDescription(id, description string) string {
	if description == "" {
		return id
	}
	if idx := strings.Index(description, ". "); idx > 0 && idx < 120 {
		return description[:idx]
	}
	if idx := strings.IndexByte(description, '\n'); idx > 0 && idx < 120 {
		return description[:idx]
	}
	if len(description) > 120 {
		return description[:120]
	}
	return description
}
