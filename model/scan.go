// Package model - scan inputs, results and report shapes.
package model

import (
	"fmt"
	"time"

	"github.com/package-url/packageurl-go"
)

// PackageIdentity is a normalized (name, version, ecosystem) triple.
// Immutable once constructed through NewPackageIdentity.
type PackageIdentity struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Ecosystem Ecosystem `json:"ecosystem"`
}

// NewPackageIdentity resolves the ecosystem (including aliases) and applies
// the per-ecosystem name normalization rule. The only failure mode is an
// unsupported ecosystem.
func NewPackageIdentity(ecosystem, name, version string) (PackageIdentity, error) {
	eco, err := ParseEcosystem(ecosystem)
	if err != nil {
		return PackageIdentity{}, err
	}
	return PackageIdentity{
		Name:      NormalizeName(eco, name),
		Version:   trimVersion(version),
		Ecosystem: eco,
	}, nil
}

func trimVersion(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\t') {
		v = v[1:]
	}
	for len(v) > 0 && (v[len(v)-1] == ' ' || v[len(v)-1] == '\t') {
		v = v[:len(v)-1]
	}
	return v
}

// Key returns the scan key "ecosystem:name:version" used for the in-flight
// registry and the result cache.
func (p PackageIdentity) Key() string {
	return fmt.Sprintf("%s:%s:%s", p.Ecosystem, p.Name, p.Version)
}

// PURL renders the identity as a package URL, e.g. pkg:npm/lodash@4.17.19.
func (p PackageIdentity) PURL() string {
	purlType := string(p.Ecosystem)
	if cfg, ok := GetEcosystemConfig(p.Ecosystem); ok {
		purlType = cfg.PurlType
	}
	purl := packageurl.NewPackageURL(purlType, "", p.Name, p.Version, nil, "")
	return purl.ToString()
}

// ScanOptions controls a single package scan.
type ScanOptions struct {
	NoCache bool          `json:"no_cache,omitempty"` // skip the result cache entirely
	Force   bool          `json:"force,omitempty"`    // bypass single-flight coalescing
	Timeout time.Duration `json:"-"`                  // per-adapter deadline, zero = manager default
}

// ScanResult is the canonical answer for one package@version. The only
// entity written to durable storage.
type ScanResult struct {
	Package         PackageIdentity       `json:"package"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
	IsVulnerable    bool                  `json:"is_vulnerable"`
	Timestamp       time.Time             `json:"timestamp"`
	FromCache       bool                  `json:"from_cache"`
	SourceErrors    map[string]string     `json:"source_errors,omitempty"` // source name -> degradation reason
}

// BatchOptions controls a batch scan.
type BatchOptions struct {
	BatchSize  int           `json:"batch_size,omitempty"` // default 10
	ChunkDelay time.Duration `json:"-"`                    // delay between chunks, default 1s
	NoCache    bool          `json:"no_cache,omitempty"`
}

// BatchItemResult is the per-package outcome inside a batch.
type BatchItemResult struct {
	Package PackageIdentity `json:"package"`
	Result  *ScanResult     `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"` // e.g. unsupported ecosystem
}

// BatchScanResult is the outcome of a batch scan. A batch always produces a
// result object; per-item failures never abort the run.
type BatchScanResult struct {
	Items     []BatchItemResult `json:"items"`
	Scanned   int               `json:"scanned"`
	Failed    int               `json:"failed"`
	Timestamp time.Time         `json:"timestamp"`
}

// DirectoryScanResult is the outcome of scanning a project directory.
type DirectoryScanResult struct {
	Directory  string           `json:"directory"`
	Ecosystems []Ecosystem      `json:"ecosystems"`
	Batch      *BatchScanResult `json:"batch,omitempty"`
	Message    string           `json:"message,omitempty"` // set when nothing was found to scan
}

// RemediationAdvice is the minimal-upgrade recommendation for one package.
type RemediationAdvice struct {
	Package            PackageIdentity `json:"package"`
	HasFix             bool            `json:"has_fix"`
	RecommendedVersion string          `json:"recommended_version,omitempty"`
	UpdateCommand      string          `json:"update_command,omitempty"`
	Summary            string          `json:"summary"`
}

// ReportEntry is one vulnerable package inside a report, ordered by its
// highest-severity finding.
type ReportEntry struct {
	Package         PackageIdentity       `json:"package"`
	HighestSeverity Severity              `json:"highest_severity"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
}

// Report aggregates a set of scan results.
type Report struct {
	TotalScanned    int               `json:"total_scanned"`
	TotalVulnerable int               `json:"total_vulnerable"`
	BySeverity      map[Severity]int  `json:"by_severity"`
	ByEcosystem     map[Ecosystem]int `json:"by_ecosystem"`
	Entries         []ReportEntry     `json:"entries"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
