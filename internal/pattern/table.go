package pattern

import (
	"fmt"

	"github.com/Veraticus/the-hours-must-flow/internal/config"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// patternFile is the on-disk shape of a pattern table.
type patternFile struct {
	Patterns []CommonPattern `yaml:"commonPatterns"`
}

// DefaultPatterns returns the built-in common-pattern table.
func DefaultPatterns() []CommonPattern {
	return []CommonPattern{
		{
			Description: "Agile ceremonies",
			Meeting:     []string{"standup", "stand-up", "daily scrum", "retro", "grooming", "refinement", "sprint review"},
			Task:        []string{"sprint", "scrum", "ceremon", "agile"},
		},
		{
			Description: "Client communication",
			Meeting:     []string{"client", "customer", "kickoff", "kick-off", "status update"},
			Task:        []string{"client", "account management", "communication"},
		},
		{
			Description: "Internal administration",
			Meeting:     []string{"all hands", "all-hands", "town hall", "1:1", "one on one", "team meeting"},
			Task:        []string{"internal", "admin", "management", "general"},
		},
		{
			Description: "Support and incidents",
			Meeting:     []string{"incident", "outage", "postmortem", "post-mortem", "on-call", "triage"},
			Task:        []string{"support", "incident", "maintenance", "operations"},
		},
		{
			Description: "Learning",
			Meeting:     []string{"training", "workshop", "brown bag", "lunch and learn", "onboarding"},
			Task:        []string{"training", "learning", "education", "onboarding"},
		},
	}
}

// LoadPatterns reads a YAML pattern table from path on fs. An empty path
// returns the defaults.
func LoadPatterns(fs afero.Fs, path string) ([]CommonPattern, error) {
	if path == "" {
		return DefaultPatterns(), nil
	}

	data, err := afero.ReadFile(fs, config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file %s: %w", path, err)
	}
	if err := ValidatePatterns(file.Patterns); err != nil {
		return nil, fmt.Errorf("invalid pattern file %s: %w", path, err)
	}
	return file.Patterns, nil
}
