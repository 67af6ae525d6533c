// Package extract recovers a structured status record from free-form model
// output.
package extract

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/propstatus/internal/resilience"
)

const snippetLen = 120

// Extract parses raw model text into a key-value mapping. It strips code
// fences, tries the whole string, then the span from the first '{' to the
// last '}'. Anything that is not a JSON object fails with a ParseError.
func Extract(raw string) (map[string]any, error) {
	text := stripFences(raw)

	obj, err := parseObject(text)
	if err == nil {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if obj, innerErr := parseObject(text[start : end+1]); innerErr == nil {
			return obj, nil
		}
	}

	return nil, &resilience.ParseError{Snippet: snippet(raw), Err: err}
}

func parseObject(text string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, eris.Wrap(err, "extract: unmarshal")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, eris.Errorf("extract: expected object, got %T", v)
	}
	return obj, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			break
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= snippetLen {
		return s
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
