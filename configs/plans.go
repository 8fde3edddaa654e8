package configs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"yieldvault/internal/domain"
)

type planFile struct {
	Plans []*domain.InvestmentPlan `yaml:"plans"`
}

// LoadPlans reads the plan catalog seed. A missing file yields no plans.
func LoadPlans(path string) ([]*domain.InvestmentPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plans file: %w", err)
	}
	return ParsePlans(data)
}

// ParsePlans decodes and validates a plan catalog document
func ParsePlans(data []byte) ([]*domain.InvestmentPlan, error) {
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plans file: %w", err)
	}

	seen := make(map[string]bool, len(f.Plans))
	for _, p := range f.Plans {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.ID, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("plan %q is listed twice", p.ID)
		}
		seen[p.ID] = true
	}
	return f.Plans, nil
}
