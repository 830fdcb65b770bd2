package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tenderwise/tenderflow/internal/models"
)

func entry(label, value string) models.StructuredEntry {
	return models.StructuredEntry{Label: label, Value: value}
}

func TestFilterDropsPlaceholders(t *testing.T) {
	entries := []models.StructuredEntry{
		entry("Deadline", "15 March 2026"),
		entry("Opening", "____________"),
		entry("Date", "Date: ____ March"),
		entry("Contact", "   "),
		entry("Phone", "---"),
	}
	out := FilterStructuredEntries(entries, false)
	assert.Equal(t, []models.StructuredEntry{entry("Deadline", "15 March 2026")}, out)
}

func TestFilterDeduplicatesCaseInsensitively(t *testing.T) {
	entries := []models.StructuredEntry{
		entry("Deadline", "15 March 2026"),
		entry("deadline", "15 MARCH 2026"),
		entry("Deadline", "16 March 2026"),
	}
	out := FilterStructuredEntries(entries, false)
	assert.Len(t, out, 2)
}

func TestFilterScheduleOnly(t *testing.T) {
	tests := []struct {
		value string
		keep  bool
	}{
		{"15 March 2026", true},
		{"2026-03-15", true},
		{"15.03.2026", true},
		{"12:00 noon", true},
		{"within 1095 days", true}, // four digits
		{"see section 4", false},
		{"the mayor's office", false}, // "may" must not match inside a word
		{"May 2026", true},
	}
	for _, tt := range tests {
		out := FilterStructuredEntries([]models.StructuredEntry{entry("X", tt.value)}, true)
		if tt.keep {
			assert.Len(t, out, 1, "value %q should survive", tt.value)
		} else {
			assert.Empty(t, out, "value %q should be dropped", tt.value)
		}
	}
}

func TestFilterTrimsWhitespace(t *testing.T) {
	out := FilterStructuredEntries([]models.StructuredEntry{entry("  Deadline  ", "  15 March 2026  ")}, false)
	assert.Equal(t, []models.StructuredEntry{entry("Deadline", "15 March 2026")}, out)
}

func TestFormatStructuredEntries(t *testing.T) {
	formatted := FormatStructuredEntries([]models.StructuredEntry{
		entry("Deadline", "15 March 2026"),
		entry("", "standalone value"),
	})
	assert.Equal(t, "Deadline: 15 March 2026\nstandalone value", formatted)
}
