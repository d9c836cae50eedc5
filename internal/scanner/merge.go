// Package scanner is the orchestrator: it fans a package out to every
// advisory source, merges the answers into canonical records, and owns the
// result cache and the in-flight scan registry.
package scanner

import (
	"sort"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

// MergeAdvisories combines the raw advisories from all sources into one
// canonical record per vulnerability. Grouping key: CVE id if present,
// else GHSA id, else a content hash of title+description. The function is
// pure and idempotent: merging a merged set changes nothing.
func MergeAdvisories(advisories []model.RawAdvisory) []model.VulnerabilityRecord {
	groups := make(map[string]*model.VulnerabilityRecord)
	var order []string

	for _, advisory := range advisories {
		key := advisory.CanonicalID()
		record, ok := groups[key]
		if !ok {
			record = &model.VulnerabilityRecord{
				ID:            key,
				CVEID:         advisory.CVEID,
				GHSAID:        advisory.GHSAID,
				Title:         advisory.Title,
				Description:   advisory.Description,
				Severity:      advisory.Severity,
				CVSSScore:     advisory.CVSSScore,
				AffectedRange: advisory.AffectedRange,
				FixedVersions: util.UniqueStrings(advisory.FixedVersions),
				References:    util.UniqueStrings(advisory.References),
				PublishedAt:   advisory.PublishedAt,
				UpdatedAt:     advisory.UpdatedAt,
				Sources:       []string{advisory.SourceName},
			}
			groups[key] = record
			order = append(order, key)
			continue
		}

		// Highest severity and score win; scalars keep the first
		// non-empty value seen; unions preserve first-seen order.
		record.Severity = model.MaxSeverity(record.Severity, advisory.Severity)
		if advisory.CVSSScore > record.CVSSScore {
			record.CVSSScore = advisory.CVSSScore
		}
		if record.CVEID == "" {
			record.CVEID = advisory.CVEID
		}
		if record.GHSAID == "" {
			record.GHSAID = advisory.GHSAID
		}
		if record.Title == "" {
			record.Title = advisory.Title
		}
		if record.Description == "" {
			record.Description = advisory.Description
		}
		if record.AffectedRange == "" {
			record.AffectedRange = advisory.AffectedRange
		}
		if record.PublishedAt.IsZero() {
			record.PublishedAt = advisory.PublishedAt
		}
		if advisory.UpdatedAt.After(record.UpdatedAt) {
			record.UpdatedAt = advisory.UpdatedAt
		}
		record.FixedVersions = util.UniqueStrings(append(record.FixedVersions, advisory.FixedVersions...))
		record.References = util.UniqueStrings(append(record.References, advisory.References...))
		if !util.Contains(record.Sources, advisory.SourceName) {
			record.Sources = append(record.Sources, advisory.SourceName)
		}
	}

	records := make([]model.VulnerabilityRecord, 0, len(order))
	for _, key := range order {
		record := groups[key]
		sort.Strings(record.Sources)
		records = append(records, *record)
	}
	return records
}
