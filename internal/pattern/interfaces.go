// Package pattern provides the deterministic keyword tier of task matching:
// token overlap between a meeting subject and a task, plus a table of common
// phrase pairs known to correlate.
package pattern

import "github.com/Veraticus/the-hours-must-flow/internal/model"

// Matcher checks a meeting subject against a single task.
type Matcher interface {
	// Match reports whether subject and task correlate and why.
	Match(subject string, task model.Task) (Hit, bool)
}

// Hit describes why a meeting subject matched a task.
type Hit struct {
	Pattern  string
	Reason   string
	Keywords []string
}

// CommonPattern pairs meeting phrases with task phrases that indicate the
// same kind of work.
type CommonPattern struct {
	Description string   `yaml:"description"`
	Meeting     []string `yaml:"meeting"`
	Task        []string `yaml:"task"`
}
