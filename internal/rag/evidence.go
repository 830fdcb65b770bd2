package rag

import (
	"path"
	"strings"

	"github.com/tenderwise/tenderflow/internal/models"
)

const (
	// snippetPadding is how many characters of context surround a match.
	snippetPadding = 120
	// snippetMaxLen caps the final snippet length.
	snippetMaxLen = 240
	// maxSupplementEntries bounds evidence added from raw context scans.
	maxSupplementEntries = 3
)

// populateAnswerEvidence derives evidence entries from the answer's
// citations, resolving each cited source against the retrieved contexts.
func populateAnswerEvidence(answer *models.RagAnswer, contexts []models.Context) {
	byURI := make(map[string]models.Context, len(contexts))
	for _, ctx := range contexts {
		if _, ok := byURI[ctx.SourceURI]; !ok {
			byURI[ctx.SourceURI] = ctx
		}
	}

	seen := make(map[string]bool)
	for _, citation := range answer.Citations {
		for _, source := range citation.Sources {
			if source.SourceURI == "" || seen[source.SourceURI] {
				continue
			}
			seen[source.SourceURI] = true

			entry := models.Evidence{
				DocURI:   source.SourceURI,
				DocTitle: path.Base(source.SourceURI),
			}
			if ctx, ok := byURI[source.SourceURI]; ok {
				entry.PageLabel = ctx.PageLabel
				if ctx.Distance > 0 {
					d := ctx.Distance
					entry.Distance = &d
				}
				entry.Snippet = snippetAround(ctx.Text, answer.Text)
			}
			answer.Evidence = append(answer.Evidence, entry)
		}
	}
}

// supplementAnswerEvidenceFromContexts adds evidence for contexts that
// contain the answer text but were not cited. At most three entries are
// added and duplicates by (uri, snippet) are skipped.
func supplementAnswerEvidenceFromContexts(answer *models.RagAnswer, contexts []models.Context) {
	needle := strings.ToLower(strings.TrimSpace(answer.Text))
	if needle == "" {
		return
	}

	type evidenceKey struct{ uri, snippet string }
	seen := make(map[evidenceKey]bool, len(answer.Evidence))
	for _, entry := range answer.Evidence {
		seen[evidenceKey{entry.DocURI, entry.Snippet}] = true
	}

	added := 0
	for _, ctx := range contexts {
		if added >= maxSupplementEntries {
			break
		}
		if !strings.Contains(strings.ToLower(ctx.Text), needle) {
			continue
		}

		snippet := snippetAround(ctx.Text, answer.Text)
		key := evidenceKey{ctx.SourceURI, snippet}
		if seen[key] {
			continue
		}
		seen[key] = true

		entry := models.Evidence{
			DocURI:    ctx.SourceURI,
			DocTitle:  path.Base(ctx.SourceURI),
			PageLabel: ctx.PageLabel,
			Snippet:   snippet,
		}
		if ctx.Distance > 0 {
			d := ctx.Distance
			entry.Distance = &d
		}
		answer.Evidence = append(answer.Evidence, entry)
		added++
	}
}

// snippetAround extracts a window of text around the first occurrence of
// needle, padded by snippetPadding on each side and capped at
// snippetMaxLen. Falls back to the head of the text when needle is absent.
func snippetAround(text, needle string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, strings.ToLower(strings.TrimSpace(needle)))
	if idx < 0 {
		return cleanSnippet(truncate(text, snippetMaxLen))
	}

	start := max(idx-snippetPadding, 0)
	end := min(idx+len(needle)+snippetPadding, len(text))
	return cleanSnippet(truncate(text[start:end], snippetMaxLen))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// cleanSnippet collapses runs of whitespace into single spaces.
func cleanSnippet(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
