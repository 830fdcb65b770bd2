package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderwise/tenderflow/internal/models"
)

// memRunStore is an in-memory RunStore mirroring the partial-update
// contract of the database client.
type memRunStore struct {
	mu   sync.Mutex
	runs map[string]*models.PipelineRun
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[string]*models.PipelineRun)}
}

func (s *memRunStore) CreateRun(_ context.Context, run *models.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *memRunStore) GetRun(_ context.Context, runID string) (*models.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}

	// Copy so callers never observe later mutations.
	tasks := make(map[string]*models.TaskState, len(run.Tasks))
	for id, state := range run.Tasks {
		copied := *state
		tasks[id] = &copied
	}
	copied := *run
	copied.Tasks = tasks
	return &copied, nil
}

func (s *memRunStore) UpdateRunFields(_ context.Context, runID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	for name, value := range fields {
		switch name {
		case "status":
			run.Status = value.(models.RunStatus)
		case "error":
			run.Error = value.(string)
		case "currentStage":
			run.CurrentStage = value.(int)
		}
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memRunStore) UpdateTask(_ context.Context, runID, taskID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	state, ok := run.Tasks[taskID]
	if !ok {
		return errors.New("task not found")
	}
	for name, value := range fields {
		switch name {
		case "status":
			state.Status = value.(models.TaskStatus)
		case "error":
			state.Error = value.(string)
		case "note":
			state.Note = value.(string)
		case "retries":
			state.Retries = value.(int)
		case "startedAt":
			t := value.(time.Time)
			state.StartedAt = &t
		case "completedAt":
			t := value.(time.Time)
			state.CompletedAt = &t
		case "skippedAt":
			t := value.(time.Time)
			state.SkippedAt = &t
		}
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

type fakeDocs struct {
	document map[string]any
	err      error
}

func (f *fakeDocs) GetParsedDocument(_ context.Context, _ string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.document, nil
}

func serviceMapFor(url string) map[string]string {
	m := make(map[string]string, len(Default.Tasks))
	for _, task := range Default.Tasks {
		m[task.Target] = url
	}
	return m
}

func newTestRunner(store RunStore, docs DocumentSource, serviceMap map[string]string) *Runner {
	dispatcher := NewDispatcher(serviceMap, store, 5*time.Second, 3, nil, nil, nil)
	return NewRunner(store, docs, dispatcher, Default, nil, time.Millisecond, nil)
}

func seedRun(t *testing.T, store *memRunStore) *models.PipelineRun {
	t.Helper()
	run := NewRunDocument(Default, uuid.NewString(), "t-1", "ingest.complete", "job-1", time.Now().UTC())
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

func TestNewRunDocument(t *testing.T) {
	run := NewRunDocument(Default, "r-1", "t-1", "ingest.complete", "job-1", time.Time{})

	assert.Equal(t, models.RunQueued, run.Status)
	assert.Equal(t, 0, run.CurrentStage)
	assert.Len(t, run.Tasks, len(Default.Tasks))
	for id, state := range run.Tasks {
		assert.Equal(t, models.TaskPending, state.Status, "task %s", id)
		assert.Equal(t, 0, state.Retries, "task %s", id)
	}
	assert.Equal(t, models.StageLoop, run.Tasks["qa.loop"].Stage)
}

func TestDefinitionGrouped(t *testing.T) {
	grouped := Default.Grouped()
	assert.Len(t, grouped[0], 1)
	assert.Len(t, grouped[1], 5)
	assert.Len(t, grouped[2], 1)
	assert.Len(t, grouped[3], 3)
	assert.Len(t, grouped[4], 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, Default.StageOrders())
}

func TestExecuteAllTasksSucceed(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload taskPayload
		assert.NoError(t, decodeJSON(r, &payload))
		mu.Lock()
		calls = append(calls, payload.TaskID)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemRunStore()
	run := seedRun(t, store)
	runner := newTestRunner(store, &fakeDocs{document: map[string]any{"pages": []any{}}}, serviceMapFor(server.URL))

	require.NoError(t, runner.Execute(context.Background(), run.RunID))

	final, err := store.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, final.Status)
	for id, state := range final.Tasks {
		assert.Equal(t, models.TaskSucceeded, state.Status, "task %s", id)
		assert.NotNil(t, state.CompletedAt, "task %s", id)
	}
	assert.Equal(t, len(Default.Tasks), len(calls))

	// Stage ordering: normalization strictly precedes every extractor, and
	// every extractor precedes the qa loop.
	pos := make(map[string]int, len(calls))
	for i, id := range calls {
		pos[id] = i
	}
	for _, extractor := range []string{"extract.deadlines", "extract.emd", "extract.requirements", "extract.penalties", "extract.annexures"} {
		assert.Less(t, pos["normalize.documents"], pos[extractor])
		assert.Less(t, pos[extractor], pos["qa.loop"])
	}
	assert.Less(t, pos["qa.loop"], pos["artifact.annexures"])
	assert.Less(t, pos["artifact.plan"], pos["rag.index"])
}

func TestExecuteFailingServiceExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload taskPayload
		assert.NoError(t, decodeJSON(r, &payload))
		if payload.TaskID == "extract.emd" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemRunStore()
	run := seedRun(t, store)
	runner := newTestRunner(store, &fakeDocs{document: map[string]any{}}, serviceMapFor(server.URL))

	require.NoError(t, runner.Execute(context.Background(), run.RunID))

	final, err := store.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, final.Status)

	emd := final.Tasks["extract.emd"]
	assert.Equal(t, models.TaskFailed, emd.Status)
	assert.Equal(t, 3, emd.Retries)
	assert.Contains(t, emd.Error, "500")

	// Siblings in the parallel stage still completed.
	assert.Equal(t, models.TaskSucceeded, final.Tasks["extract.deadlines"].Status)
	// Later stages never ran.
	assert.Equal(t, models.TaskPending, final.Tasks["qa.loop"].Status)
	assert.Equal(t, models.TaskPending, final.Tasks["rag.index"].Status)
}

func TestExecuteSkipsTasksWithoutEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	serviceMap := serviceMapFor(server.URL)
	delete(serviceMap, "qa.loop")

	store := newMemRunStore()
	run := seedRun(t, store)
	runner := newTestRunner(store, &fakeDocs{document: map[string]any{}}, serviceMap)

	require.NoError(t, runner.Execute(context.Background(), run.RunID))

	final, err := store.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, final.Status)

	qa := final.Tasks["qa.loop"]
	assert.Equal(t, models.TaskSkipped, qa.Status)
	assert.Equal(t, "No endpoint configured.", qa.Note)
	assert.NotNil(t, qa.SkippedAt)
}

func TestExecuteFailsWithoutNormalizedDocument(t *testing.T) {
	store := newMemRunStore()
	run := seedRun(t, store)
	runner := newTestRunner(store, &fakeDocs{err: errors.New("not normalized yet")}, nil)

	err := runner.Execute(context.Background(), run.RunID)
	require.Error(t, err)

	final, getErr := store.GetRun(context.Background(), run.RunID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RunFailed, final.Status)
	assert.Contains(t, final.Error, "not normalized yet")

	// No task was touched.
	for id, state := range final.Tasks {
		assert.Equal(t, models.TaskPending, state.Status, "task %s", id)
	}
}

func TestExecuteResumesFromRecordedState(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload taskPayload
		assert.NoError(t, decodeJSON(r, &payload))
		mu.Lock()
		calls = append(calls, payload.TaskID)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemRunStore()
	run := seedRun(t, store)

	// A prior invocation already finished stage 0 and two extractors.
	now := time.Now().UTC()
	for _, id := range []string{"normalize.documents", "extract.deadlines", "extract.emd"} {
		run.Tasks[id].Status = models.TaskSucceeded
		run.Tasks[id].CompletedAt = &now
	}
	run.CurrentStage = 1
	run.Status = models.RunRunning

	runner := newTestRunner(store, &fakeDocs{document: map[string]any{}}, serviceMapFor(server.URL))
	require.NoError(t, runner.Execute(context.Background(), run.RunID))

	final, err := store.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, final.Status)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range calls {
		assert.NotContains(t, []string{"normalize.documents", "extract.deadlines", "extract.emd"}, id)
	}
	// Only the remaining three extractors plus the later stages dispatched.
	assert.Len(t, calls, 3+1+3+1)
}

func TestDispatchRecordsRetryBeforeFailure(t *testing.T) {
	var attempts int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt64(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemRunStore()
	run := seedRun(t, store)
	runner := newTestRunner(store, &fakeDocs{document: map[string]any{}}, serviceMapFor(server.URL))

	require.NoError(t, runner.Execute(context.Background(), run.RunID))

	final, err := store.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	// Two failed attempts on the first task, then success on the third.
	assert.Equal(t, models.RunSucceeded, final.Status)
	assert.Equal(t, models.TaskSucceeded, final.Tasks["normalize.documents"].Status)
	assert.Equal(t, 2, final.Tasks["normalize.documents"].Retries)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
