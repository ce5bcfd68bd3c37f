package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSiteFromFile reads, parses, and validates a site definition.
func LoadSiteFromFile(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading site file %q: %w", path, err)
	}

	var site Site
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("parsing site YAML: %w", err)
	}

	if err := ValidateSite(&site); err != nil {
		return nil, fmt.Errorf("invalid site definition: %w", err)
	}

	return &site, nil
}
