// Package generative answers questions directly from raw tender documents,
// without retrieval. It backs the structured extraction pass and the
// freeform fallback used when retrieval comes up empty.
package generative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tenderwise/tenderflow/internal/models"
	"github.com/tenderwise/tenderflow/internal/storage"
)

// Mode selects the answer shape.
type Mode string

const (
	// ModeStructured asks for verbatim (label, value) pairs as JSON.
	ModeStructured Mode = "structured"
	// ModeFreeform asks for a plain text answer.
	ModeFreeform Mode = "freeform"
)

const (
	answerMaxTokens = 1024
	// perDocumentCap bounds how much of each source document enters the
	// prompt; totalCap bounds the whole document block.
	perDocumentCap = 24000
	totalCap       = 96000
)

// Generator produces text from a prompt. Implemented by *llm.Model.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Result is the outcome of a document-grounded generation pass.
type Result struct {
	Text    string
	Entries []models.StructuredEntry
}

// Service generates answers grounded in the tender's raw documents.
type Service struct {
	generator Generator
	objects   storage.ObjectStore
	rawBucket string
	logger    *slog.Logger
}

// NewService creates a generative answering service.
func NewService(generator Generator, objects storage.ObjectStore, rawBucket string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		generator: generator,
		objects:   objects,
		rawBucket: rawBucket,
		logger:    logger,
	}
}

// DocumentAnswer answers the question from the tender's raw documents.
// In structured mode the result carries parsed entries; Text holds the
// raw model output either way.
func (s *Service) DocumentAnswer(ctx context.Context, tenderID, question string, mode Mode) (*Result, error) {
	docs, err := s.loadDocuments(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if docs == "" {
		return &Result{}, nil
	}

	prompt := buildPrompt(question, docs, mode)
	raw, err := s.generator.Generate(ctx, prompt, answerMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("document answer: %w", err)
	}
	raw = strings.TrimSpace(raw)

	result := &Result{Text: raw}
	if mode == ModeStructured {
		result.Entries = ParseStructuredEntries(raw)
	}
	return result, nil
}

// loadDocuments concatenates the tender's raw documents, capped per
// document and in total.
func (s *Service) loadDocuments(ctx context.Context, tenderID string) (string, error) {
	keys, err := s.objects.List(ctx, s.rawBucket, tenderID+"/")
	if err != nil {
		return "", fmt.Errorf("list raw documents: %w", err)
	}

	var b strings.Builder
	for _, key := range keys {
		if b.Len() >= totalCap {
			s.logger.Warn("document budget exhausted, remaining files skipped",
				"tenderId", tenderID, "key", key)
			break
		}
		data, err := s.objects.Get(ctx, s.rawBucket, key)
		if err != nil {
			s.logger.Warn("skipping unreadable document", "key", key, "error", err)
			continue
		}
		text := string(data)
		if len(text) > perDocumentCap {
			text = text[:perDocumentCap]
		}
		fmt.Fprintf(&b, "=== Document: %s ===\n%s\n\n", key, text)
	}
	return b.String(), nil
}

func buildPrompt(question, docs string, mode Mode) string {
	var b strings.Builder
	b.WriteString("You are analyzing tender procurement documents.\n\n")
	b.WriteString(docs)
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")

	if mode == ModeStructured {
		b.WriteString("Extract the answer as verbatim (label, value) pairs from the documents. ")
		b.WriteString(`Respond with a JSON array of objects with "label" and "value" keys and nothing else. `)
		b.WriteString("Use only text that appears in the documents. ")
		b.WriteString("If the documents do not contain the answer, respond with an empty JSON array.")
	} else {
		b.WriteString("Answer concisely using only the documents above. ")
		b.WriteString("If the documents do not contain the answer, respond with NOT_FOUND.")
	}
	return b.String()
}
