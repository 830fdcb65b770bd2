package playbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tenderwise/tenderflow/internal/generative"
	"github.com/tenderwise/tenderflow/internal/models"
	"github.com/tenderwise/tenderflow/internal/rag"
	"github.com/tenderwise/tenderflow/internal/storage"
)

// ErrMissingTenderID indicates a playbook request without a tender.
var ErrMissingTenderID = errors.New("tenderId must not be empty")

// ErrNoSources indicates a playbook request that names neither corpus
// files nor source URIs to run against.
var ErrNoSources = errors.New("no ragFileIds or sourceUris provided for playbook execution")

// QueryEngine answers single questions. Implemented by *rag.Engine.
type QueryEngine interface {
	Query(ctx context.Context, req models.RagQueryRequest) (*models.RagQueryResponse, error)
}

// DocumentAnswerer answers directly from raw documents.
// Implemented by *generative.Service.
type DocumentAnswerer interface {
	DocumentAnswer(ctx context.Context, tenderID, question string, mode generative.Mode) (*generative.Result, error)
}

// CorpusImporter manages corpus files for a playbook run.
// Implemented by *corpus.Service.
type CorpusImporter interface {
	Import(ctx context.Context, tenderID string, uris []string) (map[string]string, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// Runner executes playbook batches.
type Runner struct {
	engine         QueryEngine
	docs           DocumentAnswerer
	importer       CorpusImporter
	objects        storage.ObjectStore
	artifactBucket string
	questionsPath  string
	pacing         time.Duration
	logger         *slog.Logger
}

// NewRunner creates a playbook runner. Pacing is the delay inserted
// between consecutive questions to stay under generation rate limits.
func NewRunner(
	engine QueryEngine,
	docs DocumentAnswerer,
	importer CorpusImporter,
	objects storage.ObjectStore,
	artifactBucket string,
	questionsPath string,
	pacing time.Duration,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		engine:         engine,
		docs:           docs,
		importer:       importer,
		objects:        objects,
		artifactBucket: artifactBucket,
		questionsPath:  questionsPath,
		pacing:         pacing,
		logger:         logger,
	}
}

// Run answers every playbook question for the tender and persists the
// combined results artifact.
func (r *Runner) Run(ctx context.Context, req models.PlaybookRequest) (*models.PlaybookResponse, error) {
	if strings.TrimSpace(req.TenderID) == "" {
		return nil, ErrMissingTenderID
	}
	if len(req.RagFileIDs) == 0 && len(req.SourceURIs) == 0 {
		return nil, ErrNoSources
	}

	questions := req.Questions
	if len(questions) == 0 {
		loaded, err := LoadQuestions(r.questionsPath)
		if err != nil {
			return nil, err
		}
		questions = loaded
	}

	fileIDs := append([]string(nil), req.RagFileIDs...)
	var handles []models.RagFileHandle
	var importedIDs []string
	if len(req.SourceURIs) > 0 {
		imported, err := r.importer.Import(ctx, req.TenderID, req.SourceURIs)
		if err != nil {
			return nil, fmt.Errorf("import playbook sources: %w", err)
		}
		uris := make([]string, 0, len(imported))
		for uri := range imported {
			uris = append(uris, uri)
		}
		sort.Strings(uris)
		for _, uri := range uris {
			id := imported[uri]
			fileIDs = append(fileIDs, id)
			importedIDs = append(importedIDs, id)
			handles = append(handles, models.RagFileHandle{RagFileName: id, SourceURI: uri})
		}
	}

	// Repeated questions are answered once per run; the cache does not
	// outlive the invocation so a later run sees its own document set.
	answered := make(map[string]models.PlaybookResult)
	results := make([]models.PlaybookResult, 0, len(questions))
	for i, question := range questions {
		if i > 0 && r.pacing > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.pacing):
			}
		}

		result, err := r.answerQuestion(ctx, req, question, fileIDs, answered)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", question.ID, err)
		}
		results = append(results, result)
	}

	resp := &models.PlaybookResponse{
		Results:  results,
		RagFiles: handles,
	}

	uri, err := r.persistArtifact(ctx, req.TenderID, resp)
	if err != nil {
		return nil, fmt.Errorf("persist playbook artifact: %w", err)
	}
	resp.OutputURI = uri

	if req.ForgetAfterRun {
		r.forgetFiles(ctx, importedIDs)
	}
	return resp, nil
}

// answerQuestion runs the structured pass and the retrieval pass and picks
// the best answer: filtered structured entries win, then a substantive
// retrieval answer, then a substantive raw-document answer, then the
// no-context sentinel.
func (r *Runner) answerQuestion(
	ctx context.Context,
	req models.PlaybookRequest,
	question models.PlaybookQuestion,
	fileIDs []string,
	answered map[string]models.PlaybookResult,
) (models.PlaybookResult, error) {
	prompt := strings.TrimSpace(question.Prompt)
	cacheKey := question.ID + "|" + prompt

	if cached, ok := answered[cacheKey]; ok {
		r.logger.Debug("playbook question already answered this run",
			"tenderId", req.TenderID, "questionId", question.ID)
		return cached, nil
	}

	pageSize := question.PageSize
	if pageSize <= 0 {
		pageSize = req.PageSize
	}

	var entries []models.StructuredEntry
	structured, err := r.docs.DocumentAnswer(ctx, req.TenderID, prompt, generative.ModeStructured)
	if err != nil {
		r.logger.Warn("structured pass failed, falling back to retrieval",
			"questionId", question.ID, "error", err)
	} else {
		entries = FilterStructuredEntries(structured.Entries, wantsScheduleFilter(question))
	}

	ragResp, err := r.engine.Query(ctx, models.RagQueryRequest{
		TenderID:   req.TenderID,
		Question:   prompt,
		PageSize:   pageSize,
		RagFileIDs: fileIDs,
	})
	if err != nil {
		return models.PlaybookResult{}, err
	}

	result := models.PlaybookResult{
		QuestionID: question.ID,
		Question:   question.Display,
		Documents:  ragResp.Documents,
	}
	if result.Question == "" {
		result.Question = prompt
	}

	// Structured and freeform winners inherit the retrieval pass's
	// citations so the answer stays traceable to corpus files.
	ragCitations := []models.Citation{}
	if len(ragResp.Answers) > 0 && len(ragResp.Answers[0].Citations) > 0 {
		ragCitations = ragResp.Answers[0].Citations
	}

	switch {
	case len(entries) > 0:
		answer := models.RagAnswer{
			Text:      FormatStructuredEntries(entries),
			Citations: ragCitations,
		}
		result.Answers = []models.RagAnswer{answer}
	case ragHasSubstantiveAnswer(ragResp):
		result.Answers = ragResp.Answers
	default:
		raw, err := r.docs.DocumentAnswer(ctx, req.TenderID, prompt, generative.ModeFreeform)
		if err == nil && generative.HasSubstantiveAnswer(raw.Text) {
			result.Answers = []models.RagAnswer{{
				Text:      strings.TrimSpace(strings.Trim(strings.TrimSpace(raw.Text), "`")),
				Citations: ragCitations,
			}}
			break
		}
		if err != nil {
			r.logger.Warn("freeform pass failed", "questionId", question.ID, "error", err)
		}
		result.Answers = []models.RagAnswer{{
			Text:      rag.NoContextFound,
			Citations: []models.Citation{},
		}}
	}

	answered[cacheKey] = result
	return result, nil
}

func ragHasSubstantiveAnswer(resp *models.RagQueryResponse) bool {
	for _, answer := range resp.Answers {
		if generative.HasSubstantiveAnswer(answer.Text) {
			return true
		}
	}
	return false
}

// persistArtifact writes the playbook results JSON next to the tender's
// other derived data.
func (r *Runner) persistArtifact(ctx context.Context, tenderID string, resp *models.PlaybookResponse) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	key := fmt.Sprintf("%s/rag/results-%s.json",
		tenderID, time.Now().UTC().Format("20060102T150405Z"))
	if err := r.objects.Put(ctx, r.artifactBucket, key, data, "application/json"); err != nil {
		return "", err
	}
	return storage.ObjectURI(r.artifactBucket, key), nil
}

// forgetFiles removes files imported for this run, best effort.
func (r *Runner) forgetFiles(ctx context.Context, fileIDs []string) {
	for _, id := range fileIDs {
		if err := r.importer.DeleteFile(ctx, id); err != nil {
			r.logger.Warn("failed to forget corpus file", "fileId", id, "error", err)
		}
	}
}
