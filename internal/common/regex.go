package common

import (
	"regexp"
	"sync"
)

var regexCache sync.Map

// CompileCached compiles pattern once and reuses the result on later calls.
func CompileCached(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// FirstSubmatch returns the first capture group of pattern in text.
// The boolean is false when the pattern is invalid or does not match.
func FirstSubmatch(pattern, text string) (string, bool) {
	re, err := CompileCached(pattern)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
