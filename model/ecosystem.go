// Package model - Ecosystem defines the closed set of supported package
// ecosystems and their per-ecosystem configuration.
package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Ecosystem identifies a package-management universe (npm, pip, go, ...).
type Ecosystem string

// Supported ecosystems. The set is closed: anything else is rejected by
// ParseEcosystem and by the scanner manager.
const (
	EcosystemNpm      Ecosystem = "npm"
	EcosystemPip      Ecosystem = "pip"
	EcosystemGo       Ecosystem = "go"
	EcosystemCargo    Ecosystem = "cargo"
	EcosystemMaven    Ecosystem = "maven"
	EcosystemNuget    Ecosystem = "nuget"
	EcosystemComposer Ecosystem = "composer"
)

// VersionScheme selects the version-ordering rule for an ecosystem.
type VersionScheme string

// Version schemes used by the supported ecosystems.
const (
	SchemeSemver VersionScheme = "semver"
	SchemeNpm    VersionScheme = "npm"
	SchemePep440 VersionScheme = "pep440"
	SchemeMaven  VersionScheme = "maven"
)

// EcosystemConfig holds static per-ecosystem metadata. Loaded once at
// startup and read-only for the process lifetime.
type EcosystemConfig struct {
	Ecosystem       Ecosystem     `yaml:"ecosystem"`
	Scheme          VersionScheme `yaml:"scheme"`
	Aliases         []string      `yaml:"aliases"`          // alternate spellings, e.g. "pypi" -> pip
	OSVName         string        `yaml:"osv_name"`         // ecosystem name in OSV's vocabulary
	PurlType        string        `yaml:"purl_type"`        // package-url type, e.g. "golang" for go
	UpdateTemplate  string        `yaml:"update_template"`  // e.g. "npm install %s@%s"
	CaseInsensitive bool          `yaml:"case_insensitive"` // lowercase names during normalization
}

// defaultConfigs is the built-in ecosystem table. An ecosystems.yaml file
// may override aliases and update templates, never the scheme.
var defaultConfigs = map[Ecosystem]EcosystemConfig{
	EcosystemNpm: {
		Ecosystem:      EcosystemNpm,
		Scheme:         SchemeNpm,
		Aliases:        []string{"node", "nodejs", "javascript"},
		OSVName:        "npm",
		PurlType:       "npm",
		UpdateTemplate: "npm install %s@%s",
	},
	EcosystemPip: {
		Ecosystem:       EcosystemPip,
		Scheme:          SchemePep440,
		Aliases:         []string{"pypi", "python"},
		OSVName:         "PyPI",
		PurlType:        "pypi",
		UpdateTemplate:  "pip install %s==%s",
		CaseInsensitive: true,
	},
	EcosystemGo: {
		Ecosystem:      EcosystemGo,
		Scheme:         SchemeSemver,
		Aliases:        []string{"golang", "gomod"},
		OSVName:        "Go",
		PurlType:       "golang",
		UpdateTemplate: "go get %s@v%s",
	},
	EcosystemCargo: {
		Ecosystem:       EcosystemCargo,
		Scheme:          SchemeSemver,
		Aliases:         []string{"crates.io", "rust"},
		OSVName:         "crates.io",
		PurlType:        "cargo",
		UpdateTemplate:  "cargo update %s --precise %s",
		CaseInsensitive: true,
	},
	EcosystemMaven: {
		Ecosystem:      EcosystemMaven,
		Scheme:         SchemeMaven,
		Aliases:        []string{"java", "gradle"},
		OSVName:        "Maven",
		PurlType:       "maven",
		UpdateTemplate: "update the version of %s to %s in pom.xml or build.gradle",
	},
	EcosystemNuget: {
		Ecosystem:      EcosystemNuget,
		Scheme:         SchemeSemver,
		Aliases:        []string{"dotnet", ".net", "csharp"},
		OSVName:        "NuGet",
		PurlType:       "nuget",
		UpdateTemplate: "dotnet add package %s --version %s",
	},
	EcosystemComposer: {
		Ecosystem:       EcosystemComposer,
		Scheme:          SchemeSemver,
		Aliases:         []string{"packagist", "php"},
		OSVName:         "Packagist",
		PurlType:        "composer",
		UpdateTemplate:  "composer require %s:%s",
		CaseInsensitive: true,
	},
}

// SupportedEcosystems returns the closed set of supported ecosystems.
func SupportedEcosystems() []Ecosystem {
	return []Ecosystem{
		EcosystemNpm, EcosystemPip, EcosystemGo, EcosystemCargo,
		EcosystemMaven, EcosystemNuget, EcosystemComposer,
	}
}

// GetEcosystemConfig returns the config for a supported ecosystem.
func GetEcosystemConfig(eco Ecosystem) (EcosystemConfig, bool) {
	cfg, ok := defaultConfigs[eco]
	return cfg, ok
}

// ParseEcosystem resolves a raw ecosystem spelling (including aliases) to a
// supported ecosystem. Returns an UnsupportedEcosystemError when no match.
func ParseEcosystem(raw string) (Ecosystem, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cfg, ok := defaultConfigs[Ecosystem(cleaned)]; ok {
		return cfg.Ecosystem, nil
	}
	for eco, cfg := range defaultConfigs {
		for _, alias := range cfg.Aliases {
			if alias == cleaned {
				return eco, nil
			}
		}
	}
	return "", &UnsupportedEcosystemError{Ecosystem: raw}
}

var pipSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName canonicalizes a package name per ecosystem convention.
// Normalization never fails; unknown ecosystems fall back to trim-only.
func NormalizeName(eco Ecosystem, name string) string {
	name = strings.TrimSpace(name)
	cfg, ok := defaultConfigs[eco]
	if !ok {
		return name
	}
	if cfg.CaseInsensitive {
		name = strings.ToLower(name)
	}
	// PEP 503: runs of dash, underscore and dot are equivalent to a dash.
	if eco == EcosystemPip {
		name = pipSeparators.ReplaceAllString(name, "-")
	}
	return name
}

// UpdateCommand renders the ecosystem's update instruction for a package
// and target version.
func (c EcosystemConfig) UpdateCommand(name, version string) string {
	return fmt.Sprintf(c.UpdateTemplate, name, version)
}

// OSVEcosystem maps a supported ecosystem to OSV's vocabulary.
func OSVEcosystem(eco Ecosystem) string {
	if cfg, ok := defaultConfigs[eco]; ok {
		return cfg.OSVName
	}
	return string(eco)
}
