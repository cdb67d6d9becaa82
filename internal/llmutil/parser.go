// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// fencedObjectRegex extracts a JSON object if the response is wrapped in a markdown fence.
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*({.*?})\\s*\x60\x60\x60")
)

// ExtractJSONObject returns the first brace-balanced object in text that decodes
// and satisfies match; a nil match accepts any object. Every opening brace is a
// candidate, so an object is found wherever it sits in the text. Braces inside
// string literals are ignored while balancing.
func ExtractJSONObject(text string, match func(map[string]any) bool) (map[string]any, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchingBrace(text, start); end > start {
			if obj, ok := decodeObject(text[start : end+1]); ok && (match == nil || match(obj)) {
				return obj, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// decodeObject parses s when it is a single JSON object.
func decodeObject(s string) (map[string]any, bool) {
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.UnmarshalFromString(s, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// matchingBrace returns the index of the brace closing the one at open, or -1.
func matchingBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
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
