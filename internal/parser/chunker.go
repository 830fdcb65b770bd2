// Package parser splits normalized tender page text into retrieval chunks.
package parser

import (
	"strings"
	"unicode"
)

// Chunk is one retrieval unit produced from a document page.
type Chunk struct {
	Text      string
	PageLabel string
	Position  int
}

// ChunkConfig defines chunking parameters, all in characters.
type ChunkConfig struct {
	// Threshold: only chunk if content exceeds this length
	Threshold int
	// TargetSize: ideal chunk size
	TargetSize int
	// MinSize: minimum chunk size (smaller chunks merge with neighbors)
	MinSize int
	// MaxSize: maximum chunk size (larger chunks split at sentences)
	MaxSize int
	// Overlap: character overlap between adjacent chunks
	Overlap int
}

// DefaultChunkConfig returns sensible defaults for OCR'd tender pages.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Threshold:  1500,
		TargetSize: 750,
		MinSize:    200,
		MaxSize:    1000,
		Overlap:    100,
	}
}

// ConfigForTokens derives a chunk config from token-denominated settings.
// Zero values fall back to defaults. Tokens are approximated at 4 chars each.
func ConfigForTokens(sizeTokens, overlapTokens int) ChunkConfig {
	cfg := DefaultChunkConfig()
	if sizeTokens > 0 {
		target := sizeTokens * 4
		cfg.TargetSize = target
		cfg.MaxSize = target + target/3
		cfg.Threshold = target * 2
		cfg.MinSize = target / 4
	}
	if overlapTokens > 0 {
		cfg.Overlap = overlapTokens * 4
	}
	return cfg
}

// ChunkPage splits one page of normalized text into chunks, each carrying the
// page label for provenance.
func ChunkPage(text, pageLabel string, config ChunkConfig) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if len(trimmed) <= config.Threshold {
		return []Chunk{{Text: trimmed, PageLabel: pageLabel, Position: 0}}
	}

	chunks := chunkByParagraphs(trimmed, config)
	chunks = applyOverlap(chunks, config.Overlap)
	for i := range chunks {
		chunks[i].PageLabel = pageLabel
		chunks[i].Position = i
	}
	return chunks
}

// chunkByParagraphs splits content by paragraph boundaries.
func chunkByParagraphs(content string, config ChunkConfig) []Chunk {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []Chunk
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, Chunk{Text: strings.TrimSpace(current.String())})
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len()+len(para) > config.MaxSize && current.Len() > 0 {
			flush()
		}

		// A single oversized paragraph splits at sentence boundaries.
		if len(para) > config.MaxSize {
			flush()
			for _, sc := range chunkBySentences(para, config) {
				chunks = append(chunks, Chunk{Text: sc})
			}
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// chunkBySentences splits text by sentence boundaries into target-sized runs.
func chunkBySentences(text string, config ChunkConfig) []string {
	sentences := splitSentences(text)

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if current.Len()+len(sentence) > config.TargetSize && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

// splitSentences splits text at sentence-ending punctuation followed by space
// and an upper-case letter. OCR output rarely has clean punctuation, so this
// is deliberately permissive.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if i+2 < len(runes) && unicode.IsSpace(runes[i+1]) && unicode.IsUpper(runes[i+2]) {
			sentences = append(sentences, current.String())
			current.Reset()
			i++ // skip the space
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

// applyOverlap prefixes each chunk after the first with the tail of its
// predecessor so retrieval does not lose context at chunk edges.
func applyOverlap(chunks []Chunk, overlap int) []Chunk {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]Chunk, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		tail := prev
		if len(prev) > overlap {
			tail = prev[len(prev)-overlap:]
			// Avoid starting mid-word.
			if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx < len(tail)-1 {
				tail = tail[idx+1:]
			}
		}
		out[i] = Chunk{Text: tail + " " + chunks[i].Text}
	}
	return out
}
