// internal/workers/ai-conversation/llm-synthesis/brief.go
package llmsynthesis

import "strings"

const (
	// BriefMarker separates the full response from its summary.
	BriefMarker = "===BRIEF VERSION==="

	minBriefChars    = 50
	minFallbackWords = 50
)

// SplitBrief separates a response into its full text and brief summary. When
// the brief is missing or unusable it is derived from the first fifth of the
// full text, never fewer than 50 words.
func SplitBrief(text string) (full, brief string) {
	sections := strings.Split(text, BriefMarker)
	if len(sections) < 2 {
		full = strings.TrimSpace(text)
		return full, fallbackBrief(full)
	}

	full = strings.TrimSpace(sections[0])
	brief = strings.TrimSpace(strings.Join(sections[1:], " "))
	if i := strings.IndexByte(brief, '\n'); i >= 0 {
		brief = strings.TrimSpace(brief[:i])
	}

	if brief == full || len(brief) < minBriefChars {
		return full, fallbackBrief(full)
	}
	return full, brief
}

func fallbackBrief(full string) string {
	words := strings.Fields(full)
	if len(words) == 0 {
		return ""
	}
	n := len(words) / 5
	if n < minFallbackWords {
		n = minFallbackWords
	}
	if n >= len(words) {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}
