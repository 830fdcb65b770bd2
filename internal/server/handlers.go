package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/generative"
	"github.com/tenderwise/tenderflow/internal/models"
	"github.com/tenderwise/tenderflow/internal/pipeline"
	"github.com/tenderwise/tenderflow/internal/playbook"
	"github.com/tenderwise/tenderflow/internal/rag"
)

// QueryEngine answers ad-hoc questions. Implemented by *rag.Engine.
type QueryEngine interface {
	Query(ctx context.Context, req models.RagQueryRequest) (*models.RagQueryResponse, error)
}

// PlaybookRunner executes playbook batches. Implemented by *playbook.Runner.
type PlaybookRunner interface {
	Run(ctx context.Context, req models.PlaybookRequest) (*models.PlaybookResponse, error)
}

// CorpusManager exposes the corpus operations handlers need.
// Implemented by *corpus.Service.
type CorpusManager interface {
	HasContent(ctx context.Context, tenderID string) (bool, error)
	ListFiles(ctx context.Context, tenderID string) ([]db.CorpusFileRecord, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// DocumentStore persists normalized tender documents pushed by the
// normalization service. Implemented by *db.Client.
type DocumentStore interface {
	PutParsedDocument(ctx context.Context, tenderID string, document map[string]any) error
}

// DocumentAnswerer runs direct document-grounded generation.
// Implemented by *generative.Service.
type DocumentAnswerer interface {
	DocumentAnswer(ctx context.Context, tenderID, question string, mode generative.Mode) (*generative.Result, error)
}

// RunStore persists and reads pipeline runs. Implemented by *db.Client.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.PipelineRun) error
	GetLatestRun(ctx context.Context, tenderID string) (*models.PipelineRun, error)
	ListRuns(ctx context.Context, tenderID string) ([]models.PipelineRun, error)
	SetLatestRun(ctx context.Context, tenderID, runID string) error
}

// PipelineExecutor drives a persisted run to completion.
// Implemented by *pipeline.Runner.
type PipelineExecutor interface {
	Execute(ctx context.Context, runID string) error
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleRagQuery answers an ad-hoc question. The retrieval answer is
// computed first; a direct structured pass over the raw documents takes
// precedence when it yields entries, then a substantive freeform pass,
// then the retrieval answer stands.
func (s *Server) handleRagQuery(w http.ResponseWriter, r *http.Request) {
	var req models.RagQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.TenderID) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenderId is required"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, rag.ErrEmptyQuestion)
		return
	}

	hasContent, err := s.corpus.HasContent(r.Context(), req.TenderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !hasContent {
		s.writeError(w, rag.ErrNoCorpus)
		return
	}

	resp, err := s.engine.Query(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if answer := s.directAnswer(r.Context(), req); answer != "" {
		resp.Answers = append([]models.RagAnswer{{
			Text:      answer,
			Citations: []models.Citation{},
		}}, resp.Answers...)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// directAnswer runs the document-grounded passes: filtered structured
// entries first, then a substantive freeform answer. Empty means neither
// pass produced anything usable.
func (s *Server) directAnswer(ctx context.Context, req models.RagQueryRequest) string {
	structured, err := s.docs.DocumentAnswer(ctx, req.TenderID, req.Question, generative.ModeStructured)
	if err != nil {
		s.logger.Warn("structured pass failed", "tenderId", req.TenderID, "error", err)
	} else {
		entries := playbook.FilterStructuredEntries(structured.Entries, false)
		if len(entries) > 0 {
			return playbook.FormatStructuredEntries(entries)
		}
	}

	raw, err := s.docs.DocumentAnswer(ctx, req.TenderID, req.Question, generative.ModeFreeform)
	if err != nil {
		s.logger.Warn("freeform pass failed", "tenderId", req.TenderID, "error", err)
		return ""
	}
	if generative.HasSubstantiveAnswer(raw.Text) {
		return strings.TrimSpace(raw.Text)
	}
	return ""
}

func (s *Server) handlePlaybook(w http.ResponseWriter, r *http.Request) {
	var req models.PlaybookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	resp, err := s.playbook.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFilesDelete(w http.ResponseWriter, r *http.Request) {
	var req models.RagDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if len(req.RagFileIDs) == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "ragFileIds is required"})
		return
	}

	resp := models.RagDeleteResponse{Deleted: []string{}, Errors: []string{}}
	for _, id := range req.RagFileIDs {
		if err := s.corpus.DeleteFile(r.Context(), id); err != nil {
			resp.Errors = append(resp.Errors, id+": "+err.Error())
			continue
		}
		resp.Deleted = append(resp.Deleted, id)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request) {
	tenderID := r.URL.Query().Get("tenderId")
	if tenderID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenderId is required"})
		return
	}

	files, err := s.corpus.ListFiles(r.Context(), tenderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, files)
}

// handlePutDocument stores the normalized document for a tender. The
// normalization service posts here once OCR output is cleaned up, before
// the pipeline's extractor stages run.
func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	tenderID := r.PathValue("tenderId")
	if tenderID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenderId is required"})
		return
	}

	var document map[string]any
	if err := json.NewDecoder(r.Body).Decode(&document); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if len(document) == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "document must not be empty"})
		return
	}

	if err := s.documents.PutParsedDocument(r.Context(), tenderID, document); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("stored normalized document", "tenderId", tenderID)
	s.writeJSON(w, http.StatusOK, map[string]string{"tenderId": tenderID})
}

// pubsubEnvelope is the push-delivery wrapper around a trigger message.
type pubsubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// handlePipelineTrigger decodes a base64 trigger envelope, persists a
// fresh run document and executes the pipeline in the background.
func (s *Server) handlePipelineTrigger(w http.ResponseWriter, r *http.Request) {
	var envelope pubsubEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	payload, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message data is not valid base64"})
		return
	}

	var trigger models.TriggerMessage
	if err := json.Unmarshal(payload, &trigger); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message data is not a valid trigger"})
		return
	}
	if strings.TrimSpace(trigger.TenderID) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenderId is required"})
		return
	}
	if trigger.Trigger == "" {
		trigger.Trigger = "ingest.complete"
	}

	run := pipeline.NewRunDocument(
		s.definition,
		uuid.NewString(),
		trigger.TenderID,
		trigger.Trigger,
		trigger.IngestJobID,
		time.Now().UTC(),
	)
	if err := s.runs.CreateRun(r.Context(), run); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.runs.SetLatestRun(r.Context(), trigger.TenderID, run.RunID); err != nil {
		s.logger.Error("failed to record latest run",
			"tenderId", trigger.TenderID, "runId", run.RunID, "error", err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()
		if err := s.executor.Execute(ctx, run.RunID); err != nil {
			s.logger.Error("pipeline execution failed",
				"tenderId", trigger.TenderID, "runId", run.RunID, "error", err)
		}
	}()

	s.logger.Info("pipeline run accepted",
		"tenderId", trigger.TenderID, "runId", run.RunID, "trigger", trigger.Trigger)
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"runId":    run.RunID,
		"tenderId": trigger.TenderID,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	tenderID := r.PathValue("tenderId")
	if tenderID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenderId is required"})
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), tenderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	tenderID := r.PathValue("tenderId")
	if tenderID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenderId is required"})
		return
	}

	run, err := s.runs.GetLatestRun(r.Context(), tenderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}
