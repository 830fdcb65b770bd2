package generative

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tenderwise/tenderflow/internal/llm"
	"github.com/tenderwise/tenderflow/internal/models"
)

var (
	codeFencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	pairPattern      = regexp.MustCompile(`"label"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"value"\s*:\s*"((?:[^"\\]|\\.)*)"`)

	nonAnswerMarkers = []string{
		"not_found",
		"no relevant context found",
		"i don't know",
		"i do not know",
		"not specified",
		"not mentioned",
		"no information",
		"cannot be determined",
		"unable to find",
	}
)

// StripCodeFence removes a surrounding markdown code fence, if present.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFencePattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ParseStructuredEntries parses model output into (label, value) pairs.
// Handles fenced output and recovers pairs from malformed JSON.
func ParseStructuredEntries(raw string) []models.StructuredEntry {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return nil
	}

	var entries []models.StructuredEntry
	if err := json.Unmarshal([]byte(cleaned), &entries); err == nil {
		return entries
	}
	return recoverPairsFromFallback(cleaned)
}

// recoverPairsFromFallback scrapes label/value pairs out of output that is
// JSON-shaped but does not parse, e.g. truncated arrays or stray prose
// around the payload.
func recoverPairsFromFallback(s string) []models.StructuredEntry {
	matches := pairPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}

	entries := make([]models.StructuredEntry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, models.StructuredEntry{
			Label: unescapeJSONString(m[1]),
			Value: unescapeJSONString(m[2]),
		})
	}
	return entries
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// boilerplateTokens are header fragments a model sometimes echoes back
// instead of an answer, e.g. "RFP No. Reference".
var boilerplateTokens = map[string]bool{
	"rfp":        true,
	"no.":        true,
	"no":         true,
	"number":     true,
	"identifier": true,
	"id":         true,
	"tender":     true,
	"reference":  true,
}

// HasSubstantiveAnswer reports whether the text looks like an actual
// answer rather than a refusal, a template placeholder or echoed
// boilerplate.
func HasSubstantiveAnswer(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == llm.NotFoundSentinel {
		return false
	}
	// Unfilled form fields survive extraction as underscore runs.
	if strings.Contains(trimmed, "__") {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range nonAnswerMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}

	digits := 0
	for _, r := range trimmed {
		if '0' <= r && r <= '9' {
			digits++
		}
	}
	// A lone zero in a short string is a stray digit, not an answer.
	if digits == 1 && strings.ContainsRune(trimmed, '0') && len(trimmed) < 40 {
		return false
	}
	if digits >= 2 {
		return true
	}
	if digits == 0 {
		tokens := strings.Fields(strings.ReplaceAll(lower, "\n", " "))
		if len(tokens) == 0 {
			return false
		}
		for _, token := range tokens {
			if !boilerplateTokens[token] {
				return true
			}
		}
		return false
	}
	return true
}
