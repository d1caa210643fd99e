// Package json extracts JSON payloads from LLM replies.
//
// Even with a JSON response format requested, models sometimes wrap the
// payload in markdown fences or surround it with commentary. This package
// digs the payload out before unmarshalling, so callers never parse prose.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON finds and returns the JSON portion of a reply:
// 1. A pure JSON reply is returned as is
// 2. Markdown code fences (```json ... ```) are stripped first
// 3. An object or array embedded in text is cut out by outermost delimiters
//
// Delimiter matching is textual, not a full parse, so a reply whose prose
// contains unbalanced braces around the payload can defeat it.
func extractJSON(reply string) (string, error) {
	reply = stripMarkdownFences(reply)

	var probe interface{}
	if err := json.Unmarshal([]byte(reply), &probe); err == nil {
		return reply, nil
	}

	for _, delims := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(reply, delims[0])
		if start == -1 {
			continue
		}
		end := strings.LastIndex(reply, delims[1])
		if end <= start {
			continue
		}
		candidate := reply[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			return candidate, nil
		}
	}

	preview := reply
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON in reply: %q", preview)
}

// stripMarkdownFences removes a surrounding ```json ... ``` or ``` ... ```
// fence pair, when present.
func stripMarkdownFences(reply string) string {
	trimmed := strings.TrimSpace(reply)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}

// ExtractJSONFromResponse extracts the JSON payload from an LLM reply and
// unmarshals it into T. Returns an error when no parseable payload exists
// or when the payload does not fit T.
func ExtractJSONFromResponse[T any](reply string) (T, error) {
	var result T
	jsonStr, err := extractJSON(reply)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshalling extracted JSON: %w", err)
	}
	return result, nil
}

// ExtractJSON returns the raw JSON portion of a reply, for callers that
// defer unmarshalling.
func ExtractJSON(reply string) (string, error) {
	return extractJSON(reply)
}
