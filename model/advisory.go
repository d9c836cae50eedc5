// Package model - advisory records as returned by the sources and the
// canonical merged form.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RawAdvisory is one advisory record as returned by a single source.
// Created per request, never persisted outside the source's raw cache.
type RawAdvisory struct {
	ID            string    `json:"id"`                       // e.g., "CVE-2021-23337" or "GHSA-35jh-r3h4-6jhm"
	CVEID         string    `json:"cve_id,omitempty"`         // canonical CVE alias when known
	GHSAID        string    `json:"ghsa_id,omitempty"`        // canonical GHSA alias when known
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Severity      Severity  `json:"severity"`
	CVSSScore     float64   `json:"cvss_score,omitempty"`
	AffectedRange string    `json:"affected_range,omitempty"` // comparator expression, e.g. ">=1.0.0 <1.2.5"
	FixedVersions []string  `json:"fixed_versions,omitempty"`
	References    []string  `json:"references,omitempty"`
	PublishedAt   time.Time `json:"published_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	SourceName    string    `json:"source_name"`              // "osv", "nvd" or "github"
}

// CanonicalID returns the grouping key used for cross-source deduplication:
// CVE id if present, else GHSA id, else a content hash of title+description.
func (a RawAdvisory) CanonicalID() string {
	if a.CVEID != "" {
		return strings.ToUpper(a.CVEID)
	}
	if strings.HasPrefix(strings.ToUpper(a.ID), "CVE-") {
		return strings.ToUpper(a.ID)
	}
	if a.GHSAID != "" {
		return strings.ToUpper(a.GHSAID)
	}
	if strings.HasPrefix(strings.ToUpper(a.ID), "GHSA-") {
		return strings.ToUpper(a.ID)
	}
	hash := sha256.Sum256([]byte(a.Title + "\x00" + a.Description))
	return "HASH-" + hex.EncodeToString(hash[:8])
}

// VulnerabilityRecord is the canonical post-merge advisory. Exactly one
// record exists per canonical id within a single scan result.
type VulnerabilityRecord struct {
	ID            string    `json:"id"`
	CVEID         string    `json:"cve_id,omitempty"`
	GHSAID        string    `json:"ghsa_id,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Severity      Severity  `json:"severity"`
	CVSSScore     float64   `json:"cvss_score,omitempty"`
	AffectedRange string    `json:"affected_range,omitempty"`
	FixedVersions []string  `json:"fixed_versions,omitempty"`
	References    []string  `json:"references,omitempty"`
	PublishedAt   time.Time `json:"published_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	Sources       []string  `json:"sources"` // non-empty, sorted, no duplicates
}
