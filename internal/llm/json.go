package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
)

// ExtractJSONObject returns the first balanced {...} substring of text.
// Braces inside JSON strings are ignored. Models often wrap their answer in
// prose or markdown fences, so the whole response is never assumed to be JSON.
func ExtractJSONObject(text string) (string, error) {
	text = cleanMarkdownWrapper(text)

	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end := matchBrace(text, start); end > 0 {
			return text[start : end+1], nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return "", fmt.Errorf("%w: no JSON object in response", common.ErrMalformedAnswer)
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeJSONObject extracts the first JSON object from text and unmarshals it into v.
func DecodeJSONObject(text string, v any) error {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformedAnswer, err)
	}
	return nil
}

// cleanMarkdownWrapper removes a surrounding markdown code fence, if any.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
