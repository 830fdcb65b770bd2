// Package rag answers questions over a tender's imported corpus with
// cited, evidence-backed answers.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/tenderwise/tenderflow/internal/corpus"
	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/llm"
	"github.com/tenderwise/tenderflow/internal/metrics"
	"github.com/tenderwise/tenderflow/internal/models"
)

// NoContextFound is the answer text returned when retrieval yields nothing.
const NoContextFound = "No relevant context found."

// Retriever supplies relevant contexts for a question.
// Implemented by *corpus.Service.
type Retriever interface {
	Retrieve(ctx context.Context, tenderID, question string, topK int, fileIDs []string) ([]models.Context, error)
	ListFilesByURI(ctx context.Context, tenderID string, uris []string) ([]db.CorpusFileRecord, error)
}

// Generator produces an answer span from retrieved contexts.
// Implemented by *llm.Model.
type Generator interface {
	ExtractSpan(ctx context.Context, question string, contexts []llm.ContextSection) (string, error)
}

// Engine runs retrieval-augmented queries. It remembers for the process
// lifetime when the retrieval backend rejects file id filters and stops
// sending them.
type Engine struct {
	retriever   Retriever
	generator   Generator
	cache       *Cache
	defaultTopK int
	metrics     *metrics.Collector
	logger      *slog.Logger

	mu                    sync.Mutex
	fileFilterUnsupported bool
}

// NewEngine creates a query engine.
func NewEngine(
	retriever Retriever,
	generator Generator,
	cache *Cache,
	defaultTopK int,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	return &Engine{
		retriever:   retriever,
		generator:   generator,
		cache:       cache,
		defaultTopK: defaultTopK,
		metrics:     collector,
		logger:      logger,
	}
}

// Query answers a single question over the tender's corpus.
func (e *Engine) Query(ctx context.Context, req models.RagQueryRequest) (*models.RagQueryResponse, error) {
	if e.retriever == nil || e.generator == nil {
		return nil, ErrNotConfigured
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = e.defaultTopK
	}

	// The cache holds retrieved contexts, not answers, so a hit skips
	// retrieval but still runs generation and attribution.
	key := CacheKey(req.TenderID, question, pageSize, req.SourceURIs, req.RagFileIDs)
	var contexts []models.Context
	cacheHit := false
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			contexts = cached
			cacheHit = true
		}
	}
	if e.metrics != nil {
		e.metrics.RecordCache(cacheHit)
	}

	if !cacheHit {
		fileIDs, err := e.resolveFileIDs(ctx, req)
		if err != nil {
			return nil, err
		}
		contexts, err = e.retrieveWithFallback(ctx, req.TenderID, question, pageSize, fileIDs)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Put(key, contexts)
		}
	}
	e.logRetrieval(req.TenderID, question, contexts, cacheHit)

	if len(contexts) == 0 {
		return &models.RagQueryResponse{
			Answers: []models.RagAnswer{{
				Text:      NoContextFound,
				Citations: []models.Citation{},
			}},
			Documents: []models.RagDocument{},
		}, nil
	}

	sections := make([]llm.ContextSection, len(contexts))
	for i, c := range contexts {
		sections[i] = llm.ContextSection{Text: c.Text, SourceURI: c.SourceURI}
	}
	text, err := e.generator.ExtractSpan(ctx, question, sections)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, llm.NotFoundSentinel) {
		answer := models.RagAnswer{
			Text:      NoContextFound,
			Citations: []models.Citation{},
		}
		return &models.RagQueryResponse{
			Answers:   []models.RagAnswer{answer},
			Documents: dedupDocuments(contexts),
		}, nil
	}

	answer := models.RagAnswer{
		Text:      trimmed,
		Citations: attributeAnswer(trimmed, contexts),
	}
	populateAnswerEvidence(&answer, contexts)
	supplementAnswerEvidenceFromContexts(&answer, contexts)

	return &models.RagQueryResponse{
		Answers:   []models.RagAnswer{answer},
		Documents: dedupDocuments(contexts),
	}, nil
}

// resolveFileIDs combines explicit file ids with ids resolved from source
// URIs. URIs not present in the corpus are ignored.
func (e *Engine) resolveFileIDs(ctx context.Context, req models.RagQueryRequest) ([]string, error) {
	ids := append([]string(nil), req.RagFileIDs...)
	if len(req.SourceURIs) > 0 {
		files, err := e.retriever.ListFilesByURI(ctx, req.TenderID, req.SourceURIs)
		if err != nil {
			return nil, fmt.Errorf("resolve source uris: %w", err)
		}
		for _, f := range files {
			ids = append(ids, f.FileID)
		}
	}
	return ids, nil
}

// retrieveWithFallback retries without the file filter once the backend
// reports it as unsupported, and remembers that for later queries.
func (e *Engine) retrieveWithFallback(ctx context.Context, tenderID, question string, topK int, fileIDs []string) ([]models.Context, error) {
	if len(fileIDs) > 0 && e.filterUnsupported() {
		fileIDs = nil
	}

	contexts, err := e.retriever.Retrieve(ctx, tenderID, question, topK, fileIDs)
	if err == nil {
		return contexts, nil
	}
	if len(fileIDs) == 0 || !errors.Is(err, corpus.ErrFileFilterUnsupported) {
		return nil, fmt.Errorf("retrieve contexts: %w", err)
	}

	e.logger.Warn("file filter rejected by retrieval backend, retrying unfiltered",
		"tenderId", tenderID)
	e.setFilterUnsupported()

	contexts, err = e.retriever.Retrieve(ctx, tenderID, question, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve contexts: %w", err)
	}
	return contexts, nil
}

func (e *Engine) filterUnsupported() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fileFilterUnsupported
}

func (e *Engine) setFilterUnsupported() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fileFilterUnsupported = true
}

// attributeAnswer assigns at most one citation: the first context whose
// text contains the answer span, or the first context as a fallback. A
// not-found answer carries no citations.
func attributeAnswer(text string, contexts []models.Context) []models.Citation {
	if text == "" || text == llm.NotFoundSentinel || len(contexts) == 0 {
		return []models.Citation{}
	}

	source := contexts[0].SourceURI
	needle := strings.ToLower(text)
	for _, ctx := range contexts {
		if strings.Contains(strings.ToLower(ctx.Text), needle) {
			source = ctx.SourceURI
			break
		}
	}

	start, end := 0, len(text)
	return []models.Citation{{
		StartIndex: &start,
		EndIndex:   &end,
		Sources:    []models.CitationSource{{SourceURI: source}},
	}}
}

// dedupDocuments collapses contexts into one document per source URI,
// keeping the first (closest) context's snippet and metadata.
func dedupDocuments(contexts []models.Context) []models.RagDocument {
	seen := make(map[string]bool, len(contexts))
	docs := make([]models.RagDocument, 0, len(contexts))
	for _, ctx := range contexts {
		if ctx.SourceURI == "" || seen[ctx.SourceURI] {
			continue
		}
		seen[ctx.SourceURI] = true

		metadata := map[string]any{}
		if ctx.Distance > 0 {
			metadata["distance"] = ctx.Distance
		}
		if ctx.PageLabel != "" {
			metadata["pageLabel"] = ctx.PageLabel
		}
		docs = append(docs, models.RagDocument{
			ID:       ctx.SourceURI,
			URI:      ctx.SourceURI,
			Title:    path.Base(ctx.SourceURI),
			Snippet:  cleanSnippet(truncate(ctx.Text, snippetMaxLen)),
			Metadata: metadata,
		})
	}
	return docs
}

// logRetrieval emits retrieval quality stats for a query.
func (e *Engine) logRetrieval(tenderID, question string, contexts []models.Context, cacheHit bool) {
	if cacheHit {
		e.logger.Info("retrieval served from cache",
			"tenderId", tenderID, "question", question)
		return
	}

	lengths := make([]int, len(contexts))
	total := 0
	sources := make(map[string]bool)
	for i, ctx := range contexts {
		lengths[i] = len(ctx.Text)
		total += lengths[i]
		sources[ctx.SourceURI] = true
	}

	mean, median := 0, 0
	if len(lengths) > 0 {
		mean = total / len(lengths)
		sort.Ints(lengths)
		median = lengths[len(lengths)/2]
	}

	e.logger.Info("retrieval stats",
		"tenderId", tenderID,
		"question", question,
		"contexts", len(contexts),
		"meanChars", mean,
		"medianChars", median,
		"uniqueSources", len(sources),
		"cacheHit", false)
}
