package scanner

import (
	"sort"
	"time"

	"github.com/vulnscout/vulnscout-backend/model"
)

// GenerateReport aggregates scan results into counts by severity and
// ecosystem, with vulnerable packages ordered most severe first.
func GenerateReport(results []model.ScanResult) *model.Report {
	report := &model.Report{
		BySeverity:  make(map[model.Severity]int),
		ByEcosystem: make(map[model.Ecosystem]int),
		GeneratedAt: time.Now(),
	}

	for _, result := range results {
		report.TotalScanned++
		if !result.IsVulnerable {
			continue
		}
		report.TotalVulnerable++
		report.ByEcosystem[result.Package.Ecosystem]++

		highest := model.SeverityUnknown
		for _, vuln := range result.Vulnerabilities {
			report.BySeverity[vuln.Severity]++
			highest = model.MaxSeverity(highest, vuln.Severity)
		}

		report.Entries = append(report.Entries, model.ReportEntry{
			Package:         result.Package,
			HighestSeverity: highest,
			Vulnerabilities: result.Vulnerabilities,
		})
	}

	// Most severe first; ties break on package key for stable output.
	sort.SliceStable(report.Entries, func(i, j int) bool {
		ri := report.Entries[i].HighestSeverity.Rank()
		rj := report.Entries[j].HighestSeverity.Rank()
		if ri != rj {
			return ri > rj
		}
		return report.Entries[i].Package.Key() < report.Entries[j].Package.Key()
	})

	return report
}
