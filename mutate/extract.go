// Extraction helpers - pull structured payloads out of free-form model output.
//
// Generation responses wrap the useful part in markers or code fences and
// surround it with commentary. These helpers recover the payload without
// assuming the model followed the format exactly.

package mutate

import "strings"

const (
	questionBeginMarker = "QUESTION BEGIN"
	questionEndMarker   = "QUESTION END"
)

// ExtractQuestion returns the text between the QUESTION BEGIN and QUESTION END
// markers, trimmed. Returns an empty string when the markers are missing or
// out of order.
func ExtractQuestion(passage string) string {
	start := strings.Index(passage, questionBeginMarker)
	end := strings.Index(passage, questionEndMarker)
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	start += len(questionBeginMarker)
	return strings.TrimSpace(passage[start:end])
}

// ExtractCode returns the contents of the first fenced code block in the
// response. Both ``` and --- fences are accepted since models use either.
// When no fence is found the whole response is returned unchanged, so callers
// can still attempt to use a bare-code reply.
func ExtractCode(content string) string {
	inside := false
	found := false
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "---") {
			inside = !inside
			continue
		}
		if inside {
			found = true
			lines = append(lines, line)
		}
	}
	if !found {
		return content
	}
	return strings.Join(lines, "\n")
}
