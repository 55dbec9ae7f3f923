package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// DecodeJSON unmarshals a model response that is expected to contain a JSON
// object or array. Markdown code fences and surrounding prose are stripped
// before decoding.
func DecodeJSON(text string, v any) error {
	trimmed := extractJSON(text)
	if trimmed == "" {
		return eris.New("anthropic: no JSON payload in response")
	}
	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return eris.Wrap(err, "anthropic: decode JSON response")
	}
	return nil
}

// extractJSON returns the first balanced JSON object or array in text.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if fenced, ok := strings.CutPrefix(text, "```json"); ok {
		text = fenced
	} else if fenced, ok := strings.CutPrefix(text, "```"); ok {
		text = fenced
	}
	if body, _, ok := strings.Cut(text, "```"); ok {
		text = body
	}
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
