package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/generative"
	"github.com/tenderwise/tenderflow/internal/llm"
	"github.com/tenderwise/tenderflow/internal/models"
	"github.com/tenderwise/tenderflow/internal/pipeline"
	"github.com/tenderwise/tenderflow/internal/playbook"
	"github.com/tenderwise/tenderflow/internal/rag"
)

type fakeEngine struct {
	resp *models.RagQueryResponse
	err  error
}

func (f *fakeEngine) Query(_ context.Context, _ models.RagQueryRequest) (*models.RagQueryResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakePlaybook struct {
	resp *models.PlaybookResponse
}

func (f *fakePlaybook) Run(_ context.Context, req models.PlaybookRequest) (*models.PlaybookResponse, error) {
	if req.TenderID == "" {
		return nil, playbook.ErrMissingTenderID
	}
	if len(req.RagFileIDs) == 0 && len(req.SourceURIs) == 0 {
		return nil, playbook.ErrNoSources
	}
	return f.resp, nil
}

type fakeCorpus struct {
	hasContent bool
	files      []db.CorpusFileRecord
	deleteErr  error
	deleted    []string
}

func (f *fakeCorpus) HasContent(_ context.Context, _ string) (bool, error) {
	return f.hasContent, nil
}

func (f *fakeCorpus) ListFiles(_ context.Context, tenderID string) ([]db.CorpusFileRecord, error) {
	files := []db.CorpusFileRecord{}
	for _, file := range f.files {
		if file.TenderID == tenderID {
			files = append(files, file)
		}
	}
	return files, nil
}

func (f *fakeCorpus) DeleteFile(_ context.Context, fileID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

type fakeDocs struct {
	structured []models.StructuredEntry
	freeform   string
}

func (f *fakeDocs) DocumentAnswer(_ context.Context, _, _ string, mode generative.Mode) (*generative.Result, error) {
	if mode == generative.ModeStructured {
		return &generative.Result{Entries: f.structured}, nil
	}
	return &generative.Result{Text: f.freeform}, nil
}

type fakeRunStore struct {
	mu     sync.Mutex
	runs   map[string]*models.PipelineRun
	latest map[string]string
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:   make(map[string]*models.PipelineRun),
		latest: make(map[string]string),
	}
}

func (f *fakeRunStore) CreateRun(_ context.Context, run *models.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.RunID] = run
	return nil
}

func (f *fakeRunStore) GetLatestRun(_ context.Context, tenderID string) (*models.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runID, ok := f.latest[tenderID]
	if !ok {
		return nil, fmt.Errorf("latest run for %q: %w", tenderID, db.ErrNotFound)
	}
	return f.runs[runID], nil
}

func (f *fakeRunStore) ListRuns(_ context.Context, tenderID string) ([]models.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runs := []models.PipelineRun{}
	for _, run := range f.runs {
		if run.TenderID == tenderID {
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

func (f *fakeRunStore) SetLatestRun(_ context.Context, tenderID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[tenderID] = runID
	return nil
}

type fakeDocStore struct {
	mu        sync.Mutex
	documents map[string]map[string]any
}

func (f *fakeDocStore) PutParsedDocument(_ context.Context, tenderID string, document map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.documents == nil {
		f.documents = make(map[string]map[string]any)
	}
	f.documents[tenderID] = document
	return nil
}

type fakeExecutor struct {
	executed chan string
}

func (f *fakeExecutor) Execute(_ context.Context, runID string) error {
	f.executed <- runID
	return nil
}

func newTestServer(deps Deps) *Server {
	if deps.Engine == nil {
		deps.Engine = &fakeEngine{resp: &models.RagQueryResponse{
			Answers: []models.RagAnswer{{Text: "retrieval answer"}},
		}}
	}
	if deps.Playbook == nil {
		deps.Playbook = &fakePlaybook{resp: &models.PlaybookResponse{}}
	}
	if deps.Corpus == nil {
		deps.Corpus = &fakeCorpus{hasContent: true}
	}
	if deps.Docs == nil {
		deps.Docs = &fakeDocs{}
	}
	if deps.Runs == nil {
		deps.Runs = newFakeRunStore()
	}
	if deps.Documents == nil {
		deps.Documents = &fakeDocStore{}
	}
	if deps.Executor == nil {
		deps.Executor = &fakeExecutor{executed: make(chan string, 1)}
	}
	deps.Definition = pipeline.Default
	return New("0", deps)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(Deps{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRagQueryValidation(t *testing.T) {
	srv := newTestServer(Deps{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/query",
		models.RagQueryRequest{Question: "q"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/rag/query",
		models.RagQueryRequest{TenderID: "t-1", Question: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRagQueryNoCorpusReturns503(t *testing.T) {
	srv := newTestServer(Deps{Corpus: &fakeCorpus{hasContent: false}})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/query",
		models.RagQueryRequest{TenderID: "t-1", Question: "q"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRagQueryReturnsRetrievalAnswer(t *testing.T) {
	srv := newTestServer(Deps{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/query",
		models.RagQueryRequest{TenderID: "t-1", Question: "q"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.RagQueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "retrieval answer", resp.Answers[0].Text)
}

func TestRagQueryPrefersStructuredDirectAnswer(t *testing.T) {
	srv := newTestServer(Deps{Docs: &fakeDocs{
		structured: []models.StructuredEntry{{Label: "Reference", Value: "TEN-42"}},
	}})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/query",
		models.RagQueryRequest{TenderID: "t-1", Question: "q"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.RagQueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Answers, 2)
	assert.Equal(t, "Reference: TEN-42", resp.Answers[0].Text)
	assert.Equal(t, "retrieval answer", resp.Answers[1].Text)
}

func TestRagQueryErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{llm.ErrQuotaExhausted, http.StatusTooManyRequests},
		{llm.ErrBackend, http.StatusBadGateway},
		{rag.ErrNotConfigured, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		srv := newTestServer(Deps{Engine: &fakeEngine{err: tt.err}})
		rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/query",
			models.RagQueryRequest{TenderID: "t-1", Question: "q"})
		assert.Equal(t, tt.code, rec.Code, "error %v", tt.err)
	}
}

func TestPlaybookValidation(t *testing.T) {
	srv := newTestServer(Deps{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/playbook", models.PlaybookRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A tender without any file scope is rejected too.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/rag/playbook",
		models.PlaybookRequest{TenderID: "t-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilesDelete(t *testing.T) {
	corpus := &fakeCorpus{hasContent: true}
	srv := newTestServer(Deps{Corpus: corpus})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/files/delete",
		models.RagDeleteRequest{RagFileIDs: []string{"f-1", "f-2"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.RagDeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"f-1", "f-2"}, resp.Deleted)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, []string{"f-1", "f-2"}, corpus.deleted)
}

func TestFilesDeleteRequiresIDs(t *testing.T) {
	srv := newTestServer(Deps{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/rag/files/delete",
		models.RagDeleteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func triggerEnvelope(t *testing.T, msg models.TriggerMessage) map[string]any {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString(payload),
			"messageId": "m-1",
		},
		"subscription": "projects/x/subscriptions/y",
	}
}

func TestPipelineTrigger(t *testing.T) {
	store := newFakeRunStore()
	executor := &fakeExecutor{executed: make(chan string, 1)}
	srv := newTestServer(Deps{Runs: store, Executor: executor})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/pubsub/pipeline-trigger",
		triggerEnvelope(t, models.TriggerMessage{TenderID: "t-1", IngestJobID: "job-1"}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	runID := resp["runId"]
	require.NotEmpty(t, runID)

	select {
	case executed := <-executor.executed:
		assert.Equal(t, runID, executed)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline execution was not started")
	}

	// The run document is persisted queued with every task pending, and
	// the tender points at it.
	store.mu.Lock()
	run := store.runs[runID]
	latest := store.latest["t-1"]
	store.mu.Unlock()
	require.NotNil(t, run)
	assert.Equal(t, models.RunQueued, run.Status)
	assert.Len(t, run.Tasks, len(pipeline.Default.Tasks))
	assert.Equal(t, runID, latest)
}

func TestPipelineTriggerRejectsBadEnvelope(t *testing.T) {
	srv := newTestServer(Deps{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/pubsub/pipeline-trigger",
		map[string]any{"message": map[string]any{"data": "not-base64!"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/pubsub/pipeline-trigger",
		triggerEnvelope(t, models.TriggerMessage{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLatestRun(t *testing.T) {
	store := newFakeRunStore()
	run := pipeline.NewRunDocument(pipeline.Default, "r-1", "t-1", "manual", "", time.Now().UTC())
	require.NoError(t, store.CreateRun(context.Background(), run))
	require.NoError(t, store.SetLatestRun(context.Background(), "t-1", "r-1"))

	srv := newTestServer(Deps{Runs: store})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/runs/t-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.PipelineRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "r-1", got.RunID)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilesList(t *testing.T) {
	corpus := &fakeCorpus{files: []db.CorpusFileRecord{
		{FileID: "f-1", TenderID: "t-1", SourceURI: "s3://tenders/t-1/a.json"},
		{FileID: "f-2", TenderID: "t-2", SourceURI: "s3://tenders/t-2/b.json"},
	}}
	srv := newTestServer(Deps{Corpus: corpus})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/rag/files?tenderId=t-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []db.CorpusFileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "f-1", files[0].FileID)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/rag/files", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutDocument(t *testing.T) {
	store := &fakeDocStore{}
	srv := newTestServer(Deps{Documents: store})

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/documents/t-1",
		map[string]any{"pages": []any{map[string]any{"text": "hello"}}})
	require.Equal(t, http.StatusOK, rec.Code)
	store.mu.Lock()
	assert.Contains(t, store.documents, "t-1")
	store.mu.Unlock()

	rec = doJSON(t, srv.Handler(), http.MethodPut, "/documents/t-1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRunHistory(t *testing.T) {
	store := newFakeRunStore()
	for _, id := range []string{"r-1", "r-2"} {
		run := pipeline.NewRunDocument(pipeline.Default, id, "t-1", "manual", "", time.Now().UTC())
		require.NoError(t, store.CreateRun(context.Background(), run))
	}

	srv := newTestServer(Deps{Runs: store})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/runs/t-1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.PipelineRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/runs/other/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Empty(t, runs)
}
