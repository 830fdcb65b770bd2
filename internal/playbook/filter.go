package playbook

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tenderwise/tenderflow/internal/models"
)

var (
	timePattern = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	}
	monthTokens = []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "oct", "nov", "dec",
	}
)

// FilterStructuredEntries drops placeholder and empty values and
// deduplicates case-insensitively. When requireSchedule is set, only
// values that look like dates, times or schedules survive.
func FilterStructuredEntries(entries []models.StructuredEntry, requireSchedule bool) []models.StructuredEntry {
	seen := make(map[string]bool, len(entries))
	var out []models.StructuredEntry
	for _, entry := range entries {
		value := strings.TrimSpace(entry.Value)
		if isPlaceholder(value) {
			continue
		}
		if requireSchedule && !looksLikeSchedule(value) {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(entry.Label)) + "\x00" + strings.ToLower(value)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.StructuredEntry{
			Label: strings.TrimSpace(entry.Label),
			Value: value,
		})
	}
	return out
}

// isPlaceholder reports values that carry no content: blanks, values
// with underscore runs left from form templates, or strings without a
// single letter or digit.
func isPlaceholder(value string) bool {
	if value == "" {
		return true
	}
	if strings.Contains(value, "__") {
		return true
	}
	if strings.Trim(value, "_ \t.") == "" {
		return true
	}
	for _, r := range value {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

// looksLikeSchedule reports whether a value plausibly names a date, time
// or deadline: a month name, a clock time, a date pattern, or at least
// four digits overall.
func looksLikeSchedule(value string) bool {
	lower := strings.ToLower(value)
	for _, month := range monthTokens {
		if containsToken(lower, month) {
			return true
		}
	}
	if timePattern.MatchString(value) {
		return true
	}
	for _, p := range datePatterns {
		if p.MatchString(value) {
			return true
		}
	}

	digits := 0
	for _, r := range value {
		if '0' <= r && r <= '9' {
			digits++
		}
	}
	return digits >= 4
}

// containsToken matches a whole word, so "may" does not fire inside
// "mayor".
func containsToken(haystack, token string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], token)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(token)
		beforeOK := start == 0 || !isLetter(haystack[start-1])
		afterOK := end == len(haystack) || !isLetter(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// FormatStructuredEntries renders entries as "Label: Value" lines.
func FormatStructuredEntries(entries []models.StructuredEntry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Label == "" {
			lines = append(lines, entry.Value)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Label, entry.Value))
	}
	return strings.Join(lines, "\n")
}
