package config

import (
	"fmt"
	"os"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"gopkg.in/yaml.v3"
)

// Roster is the staffing file, for example:
//
//	workers:
//	  respondent: 3
//	  manager: 2
//	  director: 1
//
// Tiers left out of the file get no workers.
type Roster struct {
	Workers map[string]int `yaml:"workers"`
}

// LoadRoster reads per-tier worker counts from a YAML roster file
func LoadRoster(path string) ([types.NumTiers]int, error) {
	var counts [types.NumTiers]int

	data, err := os.ReadFile(path)
	if err != nil {
		return counts, fmt.Errorf("failed to read roster %s: %w", path, err)
	}

	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return counts, fmt.Errorf("failed to parse roster %s: %w", path, err)
	}
	if len(roster.Workers) == 0 {
		return counts, fmt.Errorf("roster %s lists no workers", path)
	}

	for name, n := range roster.Workers {
		tier, err := types.ParseTier(name)
		if err != nil {
			return counts, fmt.Errorf("roster %s: %w", path, err)
		}
		if n < 0 {
			return counts, fmt.Errorf("roster %s: negative count for %s", path, tier)
		}
		counts[tier] = n
	}
	return counts, nil
}
