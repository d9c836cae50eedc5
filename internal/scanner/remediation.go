package scanner

import (
	"fmt"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

// GetRemediationAdvice computes the minimal safe upgrade for a package
// from its merged vulnerability records: the smallest fixed version
// strictly greater than the current one, not the latest.
func GetRemediationAdvice(ecosystem, name, version string, vulnerabilities []model.VulnerabilityRecord) (*model.RemediationAdvice, error) {
	pkg, err := model.NewPackageIdentity(ecosystem, name, version)
	if err != nil {
		return nil, err
	}

	advice := &model.RemediationAdvice{Package: pkg}

	if len(vulnerabilities) == 0 {
		advice.Summary = fmt.Sprintf("%s@%s has no known vulnerabilities; no action needed.", pkg.Name, pkg.Version)
		return advice, nil
	}

	var fixed []string
	for _, vuln := range vulnerabilities {
		fixed = append(fixed, vuln.FixedVersions...)
	}
	fixed = util.UniqueStrings(fixed)

	// Keep only real upgrades. Versions the comparator cannot order
	// against the current one are skipped rather than recommended.
	var candidates []string
	for _, candidate := range fixed {
		cmp, err := util.CompareVersions(candidate, pkg.Version, pkg.Ecosystem)
		if err != nil {
			continue
		}
		if cmp > 0 {
			candidates = append(candidates, candidate)
		}
	}

	if len(candidates) == 0 {
		advice.Summary = fmt.Sprintf(
			"No fixed version is available for %s@%s yet. Consider removing the dependency, "+
				"pinning a patched fork, or mitigating the issue at the application layer.",
			pkg.Name, pkg.Version)
		return advice, nil
	}

	util.SortVersionsAscending(candidates, pkg.Ecosystem)
	advice.HasFix = true
	advice.RecommendedVersion = candidates[0]
	advice.Summary = fmt.Sprintf(
		"Upgrade %s from %s to %s to resolve %d known vulnerabilit%s.",
		pkg.Name, pkg.Version, advice.RecommendedVersion,
		len(vulnerabilities), pluralSuffix(len(vulnerabilities)))

	if cfg, ok := model.GetEcosystemConfig(pkg.Ecosystem); ok {
		advice.UpdateCommand = cfg.UpdateCommand(pkg.Name, advice.RecommendedVersion)
	}
	return advice, nil
}

func pluralSuffix(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
