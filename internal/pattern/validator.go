package pattern

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
)

// ValidatePatterns ensures every pattern has at least one meeting phrase and
// one task phrase, and that no phrase is blank.
func ValidatePatterns(patterns []CommonPattern) error {
	if len(patterns) == 0 {
		return fmt.Errorf("%w: pattern table is empty", common.ErrInvalidConfig)
	}

	for i, p := range patterns {
		name := p.Description
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		if len(p.Meeting) == 0 {
			return fmt.Errorf("%w: pattern %s has no meeting phrases", common.ErrInvalidConfig, name)
		}
		if len(p.Task) == 0 {
			return fmt.Errorf("%w: pattern %s has no task phrases", common.ErrInvalidConfig, name)
		}
		for _, phrase := range append(append([]string{}, p.Meeting...), p.Task...) {
			if strings.TrimSpace(phrase) == "" {
				return fmt.Errorf("%w: pattern %s has a blank phrase", common.ErrInvalidConfig, name)
			}
		}
	}

	return nil
}
