package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

// DefaultGitHubURL is the GitHub global security advisories endpoint.
const DefaultGitHubURL = "https://api.github.com/advisories"

// DefaultRefreshInterval is how often the whole advisory table is
// refreshed from the bulk feed. The upstream is a bulk source, so the
// adapter never queries it per package.
const DefaultRefreshInterval = 24 * time.Hour

// githubEcosystems maps supported ecosystems to GitHub's vocabulary.
var githubEcosystems = map[model.Ecosystem]string{
	model.EcosystemNpm:      "npm",
	model.EcosystemPip:      "pip",
	model.EcosystemGo:       "go",
	model.EcosystemCargo:    "rust",
	model.EcosystemMaven:    "maven",
	model.EcosystemNuget:    "nuget",
	model.EcosystemComposer: "composer",
}

// GitHubAdapter serves lookups from a locally cached advisory table keyed
// ecosystem:packageName, refreshed on a timer from the bulk feed.
type GitHubAdapter struct {
	url      string
	token    string
	client   httpDoer
	store    AdvisoryStore
	interval time.Duration
	logger   *zap.Logger
}

// GitHubConfig configures the GitHub Advisory adapter.
type GitHubConfig struct {
	URL             string
	Token           string
	Client          httpDoer
	Store           AdvisoryStore
	RefreshInterval time.Duration
	Logger          *zap.Logger
}

// NewGitHubAdapter creates the adapter over an advisory store.
func NewGitHubAdapter(cfg GitHubConfig) *GitHubAdapter {
	if cfg.URL == "" {
		cfg.URL = DefaultGitHubURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &GitHubAdapter{
		url:      cfg.URL,
		token:    cfg.Token,
		client:   cfg.Client,
		store:    cfg.Store,
		interval: cfg.RefreshInterval,
		logger:   cfg.Logger,
	}
}

// Name implements Adapter.
func (a *GitHubAdapter) Name() string { return "github" }

// FindVulnerabilities implements Adapter. It never touches the network:
// lookups go against the local table, and an advisory counts only when the
// scanned version is inside its vulnerable range.
func (a *GitHubAdapter) FindVulnerabilities(ctx context.Context, pkg model.PackageIdentity) ([]model.RawAdvisory, error) {
	rows, err := a.store.Lookup(ctx, pkg.Ecosystem, pkg.Name)
	if err != nil {
		return nil, &model.SourceUnavailableError{Source: a.Name(), Err: err}
	}

	var advisories []model.RawAdvisory
	for _, row := range rows {
		if row.Advisory.AffectedRange != "" &&
			!util.IsAffected(pkg.Version, row.Advisory.AffectedRange, pkg.Ecosystem) {
			continue
		}
		advisories = append(advisories, row.Advisory)
	}
	return advisories, nil
}

// StartRefreshLoop refreshes the table immediately and then on the
// configured interval until the context is cancelled.
func (a *GitHubAdapter) StartRefreshLoop(ctx context.Context) {
	if err := a.Refresh(ctx); err != nil {
		a.logger.Warn("initial github advisory refresh failed", zap.Error(err))
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Refresh(ctx); err != nil {
				a.logger.Warn("github advisory refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh pulls the bulk feed for every supported ecosystem and replaces
// the local table. A failure for one ecosystem leaves its previous table
// in place and does not stop the others.
func (a *GitHubAdapter) Refresh(ctx context.Context) error {
	var failed []string
	for eco, ghName := range githubEcosystems {
		rows, err := a.fetchEcosystem(ctx, eco, ghName)
		if err != nil {
			a.logger.Warn("github bulk fetch failed",
				zap.String("ecosystem", string(eco)), zap.Error(err))
			failed = append(failed, string(eco))
			continue
		}
		if err := a.store.ReplaceEcosystem(ctx, eco, rows); err != nil {
			a.logger.Warn("github advisory store update failed",
				zap.String("ecosystem", string(eco)), zap.Error(err))
			failed = append(failed, string(eco))
			continue
		}
		a.logger.Info("github advisory table refreshed",
			zap.String("ecosystem", string(eco)), zap.Int("advisories", len(rows)))
	}
	if len(failed) > 0 {
		return fmt.Errorf("refresh incomplete for ecosystems: %s", strings.Join(failed, ", "))
	}
	return nil
}

// githubAdvisory mirrors the slice of the bulk feed schema we consume.
type githubAdvisory struct {
	GHSAID      string   `json:"ghsa_id"`
	CVEID       string   `json:"cve_id"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	References  []string `json:"references"`
	CVSS        struct {
		Score        float64 `json:"score"`
		VectorString string  `json:"vector_string"`
	} `json:"cvss"`
	PublishedAt     time.Time `json:"published_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Vulnerabilities []struct {
		Package struct {
			Ecosystem string `json:"ecosystem"`
			Name      string `json:"name"`
		} `json:"package"`
		VulnerableVersionRange string `json:"vulnerable_version_range"`
		FirstPatchedVersion    string `json:"first_patched_version"`
	} `json:"vulnerabilities"`
}

// fetchEcosystem walks the paginated bulk feed for one ecosystem.
func (a *GitHubAdapter) fetchEcosystem(ctx context.Context, eco model.Ecosystem, ghName string) ([]AdvisoryRow, error) {
	var rows []AdvisoryRow

	next := fmt.Sprintf("%s?ecosystem=%s&per_page=100", a.url, ghName)
	for next != "" {
		pageURL := next

		body, status, header, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/vnd.github+json")
			if a.token != "" {
				req.Header.Set("Authorization", "Bearer "+a.token)
			}
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d from %s", status, pageURL)
		}

		var page []githubAdvisory
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		for _, advisory := range page {
			rows = append(rows, advisoryRows(advisory, eco, a.Name())...)
		}

		next = nextPageLink(header.Get("Link"))
	}
	return rows, nil
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextPageLink extracts the rel="next" target from a Link header.
func nextPageLink(header string) string {
	if header == "" {
		return ""
	}
	matches := linkNextPattern.FindStringSubmatch(header)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// advisoryRows converts one bulk advisory into table rows, one per
// affected package of the requested ecosystem.
func advisoryRows(advisory githubAdvisory, eco model.Ecosystem, sourceName string) []AdvisoryRow {
	severity := model.ParseSeverity(advisory.Severity)
	score := advisory.CVSS.Score
	if score == 0 && advisory.CVSS.VectorString != "" {
		score = util.CalculateCVSSScore(advisory.CVSS.VectorString)
	}
	if severity == model.SeverityUnknown && score > 0 {
		severity = model.SeverityFromScore(score)
	}

	var rows []AdvisoryRow
	for _, vuln := range advisory.Vulnerabilities {
		if !strings.EqualFold(vuln.Package.Ecosystem, githubEcosystems[eco]) {
			continue
		}
		name := model.NormalizeName(eco, vuln.Package.Name)
		raw := model.RawAdvisory{
			ID:            advisory.GHSAID,
			CVEID:         strings.ToUpper(advisory.CVEID),
			GHSAID:        strings.ToUpper(advisory.GHSAID),
			Title:         advisory.Summary,
			Description:   advisory.Description,
			Severity:      severity,
			CVSSScore:     score,
			AffectedRange: normalizeGitHubRange(vuln.VulnerableVersionRange),
			References:    advisory.References,
			PublishedAt:   advisory.PublishedAt,
			UpdatedAt:     advisory.UpdatedAt,
			SourceName:    sourceName,
		}
		if vuln.FirstPatchedVersion != "" {
			raw.FixedVersions = []string{vuln.FirstPatchedVersion}
		}
		rows = append(rows, AdvisoryRow{
			Key:       util.SanitizeKey(RowKey(eco, name)),
			Ecosystem: eco,
			Package:   name,
			Advisory:  raw,
		})
	}
	return rows
}

// normalizeGitHubRange rewrites GitHub's comma-joined conjunctions
// (">= 1.0.0, < 1.2.5") into the comparator expression grammar.
func normalizeGitHubRange(r string) string {
	return strings.TrimSpace(strings.ReplaceAll(r, ",", " "))
}
