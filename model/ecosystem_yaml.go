// Package model - optional YAML overrides for the ecosystem table.
package model

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// ecosystemOverride is the YAML shape for one ecosystem entry. Only aliases
// and the update template may be overridden; the version scheme is fixed.
type ecosystemOverride struct {
	Aliases        []string `yaml:"aliases"`
	UpdateTemplate string   `yaml:"update_template"`
}

// LoadEcosystemOverrides applies overrides from a YAML file mapping
// ecosystem name to override entry. Called once at startup, before the
// scanner manager is constructed. A missing file is not an error.
func LoadEcosystemOverrides(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read ecosystem overrides: %w", err)
	}

	var overrides map[string]ecosystemOverride
	if err := yaml.Unmarshal(content, &overrides); err != nil {
		return fmt.Errorf("parse ecosystem overrides: %w", err)
	}

	for name, override := range overrides {
		eco, err := ParseEcosystem(name)
		if err != nil {
			return fmt.Errorf("ecosystem overrides: %w", err)
		}
		cfg := defaultConfigs[eco]
		if len(override.Aliases) > 0 {
			cfg.Aliases = override.Aliases
		}
		if override.UpdateTemplate != "" {
			cfg.UpdateTemplate = override.UpdateTemplate
		}
		defaultConfigs[eco] = cfg
	}
	return nil
}
