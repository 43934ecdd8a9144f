package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

var tokenSeparators = regexp.MustCompile(`[\s\-_]+`)

// Tokenize lowercases s, splits it on whitespace, hyphens, and underscores,
// and keeps tokens longer than one character.
func Tokenize(s string) []string {
	var tokens []string
	for _, tok := range tokenSeparators.Split(strings.ToLower(s), -1) {
		if len(tok) > 1 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// KeywordMatcher implements Matcher with token overlap and a common-pattern table.
type KeywordMatcher struct {
	patterns []CommonPattern
}

// NewKeywordMatcher creates a matcher using the given pattern table.
// A nil table uses DefaultPatterns.
func NewKeywordMatcher(patterns []CommonPattern) *KeywordMatcher {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	normalized := make([]CommonPattern, 0, len(patterns))
	for _, p := range patterns {
		normalized = append(normalized, CommonPattern{
			Description: p.Description,
			Meeting:     lowerAll(p.Meeting),
			Task:        lowerAll(p.Task),
		})
	}
	return &KeywordMatcher{patterns: normalized}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Match checks token overlap first, then the pattern table.
func (m *KeywordMatcher) Match(subject string, task model.Task) (Hit, bool) {
	meetingTitle := strings.ToLower(subject)
	taskTitle := strings.ToLower(task.Title)
	taskProject := strings.ToLower(task.Project)
	taskModule := strings.ToLower(task.Module)

	taskTokens := append(append(Tokenize(taskTitle), Tokenize(taskProject)...), Tokenize(taskModule)...)

	var matched []string
	for _, mk := range Tokenize(meetingTitle) {
		for _, tk := range taskTokens {
			if strings.Contains(tk, mk) || strings.Contains(mk, tk) {
				matched = append(matched, mk)
				break
			}
		}
	}

	if len(matched) > 0 {
		return Hit{
			Keywords: matched,
			Reason: fmt.Sprintf("Found keyword matches: %s between meeting %q and task %q (%s)",
				strings.Join(matched, ", "), meetingTitle, taskTitle, taskProject),
		}, true
	}

	for _, p := range m.patterns {
		if len(p.Meeting) == 0 || !containsAny(meetingTitle, p.Meeting) {
			continue
		}
		if containsAny(taskTitle, p.Task) || containsAny(taskProject, p.Task) || containsAny(taskModule, p.Task) {
			return Hit{
				Pattern: p.Meeting[0],
				Reason: fmt.Sprintf("Matched common pattern %q between meeting %q and task %q (%s)",
					p.Meeting[0], meetingTitle, taskTitle, taskProject),
			}, true
		}
	}

	return Hit{}, false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
