package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ============================================================================
// LLM JSON repair
// ============================================================================
//
// The extraction service returns JSON in theory; in practice responses
// arrive wrapped in markdown fences, truncated mid-string or with trailing
// commas. Parsing runs through escalating repair strategies before the
// caller gives up on a chunk.

var (
	codeFencePattern     = regexp.MustCompile("(?i)```json\\s*")
	closingFencePattern  = regexp.MustCompile("```\\s*")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyPattern   = regexp.MustCompile(`([{,])\s*([A-Za-z0-9_]+)\s*:`)
	controlCharPattern   = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

// cleanRawJSON removes common LLM formatting debris
func cleanRawJSON(raw string) string {
	raw = codeFencePattern.ReplaceAllString(raw, "")
	raw = closingFencePattern.ReplaceAllString(raw, "")
	raw = strings.TrimSpace(raw)
	raw = trailingCommaPattern.ReplaceAllString(raw, "$1")
	raw = unquotedKeyPattern.ReplaceAllString(raw, `$1 "$2":`)
	raw = strings.ReplaceAll(raw, "\\n", " ")
	raw = strings.ReplaceAll(raw, "\\t", " ")
	raw = controlCharPattern.ReplaceAllString(raw, "")
	return raw
}

// extractJSONObject pulls the first brace-balanced object out of
// surrounding prose, respecting string boundaries
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case c == '\\':
			escapeNext = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			braceCount++
		case !inString && c == '}':
			braceCount--
			if braceCount == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// fixUnterminatedString closes a string left open by a truncated response
func fixUnterminatedString(text string) string {
	inString := false
	escapeNext := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
		}
	}

	if inString {
		return text + `"`
	}
	return text
}

// parsePayload attempts to decode a raw LLM response into the expected
// shape, escalating through repair strategies. The second return reports
// whether any strategy succeeded.
func parsePayload(raw string) (map[string]interface{}, bool) {
	cleaned := cleanRawJSON(raw)

	candidates := []string{
		cleaned,
		extractJSONObject(cleaned),
		fixUnterminatedString(cleaned),
		fixUnterminatedString(extractJSONObject(cleaned)),
	}
	if last := strings.LastIndexByte(cleaned, '}'); last != -1 {
		candidates = append(candidates, cleaned[:last+1])
	}

	for _, candidate := range candidates {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &data); err == nil {
			return data, true
		}
	}
	return nil, false
}
