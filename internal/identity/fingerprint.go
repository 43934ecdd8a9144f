// Package identity derives the stable keys that identify a meeting instance
// for a given user across runs.
package identity

import (
	"regexp"
	"strings"
	"time"
)

// Word characters are ASCII only, so accented and non-Latin letters are
// stripped; keys already stored were built that way. Whitespace includes
// Unicode spaces.
var (
	punctuation = regexp.MustCompile(`[^A-Za-z0-9_\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}-]`)
	whitespace  = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
)

// Separator joins fingerprint segments.
const Separator = "_"

// timestampLayouts are the start-time encodings found in stored fingerprints.
// Calendar APIs emit zone-less seven-digit fractions; canonical keys use RFC 3339 UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.0000000",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// NormalizeSubject makes subject text insensitive to incidental formatting:
// everything but ASCII letters, digits, hyphen, underscore and whitespace is
// removed, whitespace runs are collapsed, and the result is trimmed and
// lowercased.
func NormalizeSubject(subject string) string {
	s := punctuation.ReplaceAllString(subject, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Fingerprint returns the canonical key for a meeting instance:
//
//	lower(userID) _ normalizedSubject _ startUTC(RFC 3339)
//
// The start time is part of the key so recurring instances stay distinct.
func Fingerprint(userID, subject string, start time.Time) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(userID)),
		NormalizeSubject(subject),
		FormatTimestamp(start),
	}, Separator)
}

// FormatTimestamp renders t the way canonical fingerprints do.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseTimestamp accepts any timestamp layout that has appeared in stored keys.
// Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// IsCanonical reports whether fp is a canonical fingerprint for userID.
func IsCanonical(userID, fp string) bool {
	prefix := strings.ToLower(strings.TrimSpace(userID)) + Separator
	if !strings.HasPrefix(fp, prefix) {
		return false
	}
	idx := strings.LastIndex(fp, Separator)
	if idx < len(prefix) {
		return false
	}
	ts := fp[idx+1:]
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil || t.Location() != time.UTC {
		return false
	}
	subject := fp[len(prefix):idx]
	return subject == NormalizeSubject(subject)
}

// Legacy is a fingerprint decoded from the doubled-subject format
// user_subject_subject_start, where subject kept its original case.
type Legacy struct {
	Start   time.Time
	Subject string
}

// ParseLegacy decodes a doubled-subject fingerprint written for userID.
func ParseLegacy(userID, fp string) (Legacy, bool) {
	prefix := strings.ToLower(strings.TrimSpace(userID)) + Separator
	if !strings.HasPrefix(fp, prefix) {
		return Legacy{}, false
	}
	rest := fp[len(prefix):]

	idx := strings.LastIndex(rest, Separator)
	if idx <= 0 {
		return Legacy{}, false
	}
	start, ok := ParseTimestamp(rest[idx+1:])
	if !ok {
		return Legacy{}, false
	}

	doubled := rest[:idx]
	if len(doubled)%2 == 0 {
		return Legacy{}, false
	}
	half := len(doubled) / 2
	if doubled[half:half+1] != Separator || doubled[:half] != doubled[half+1:] {
		return Legacy{}, false
	}

	return Legacy{Subject: doubled[:half], Start: start}, true
}

// Canonicalize returns the canonical form of a key stored without subject
// metadata. Legacy decoding takes precedence; canonical keys are returned
// unchanged; anything else reports false.
func Canonicalize(userID, fp string) (string, bool) {
	if legacy, ok := ParseLegacy(userID, fp); ok {
		return Fingerprint(userID, legacy.Subject, legacy.Start), true
	}
	if IsCanonical(userID, fp) {
		return fp, true
	}
	return "", false
}
