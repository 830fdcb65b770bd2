package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tenderwise/tenderflow/internal/events"
	"github.com/tenderwise/tenderflow/internal/metrics"
	"github.com/tenderwise/tenderflow/internal/models"
)

// taskPayload is the request body posted to every task service.
type taskPayload struct {
	TenderID string         `json:"tenderId"`
	TaskID   string         `json:"taskId"`
	Target   string         `json:"target"`
	Document map[string]any `json:"document"`
}

// Dispatcher sends one task to its service endpoint and persists every
// state transition synchronously, so a crash never loses progress.
type Dispatcher struct {
	client     *http.Client
	serviceMap map[string]string
	store      RunStore
	maxRetries int
	bus        *events.Bus
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewDispatcher creates a task dispatcher. Timeout bounds each HTTP call;
// maxRetries is the per-task retry ceiling before the task fails.
func NewDispatcher(
	serviceMap map[string]string,
	store RunStore,
	timeout time.Duration,
	maxRetries int,
	bus *events.Bus,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		client:     &http.Client{Timeout: timeout},
		serviceMap: serviceMap,
		store:      store,
		maxRetries: maxRetries,
		bus:        bus,
		metrics:    collector,
		logger:     logger,
	}
}

// Dispatch executes one task attempt and returns the task's new status.
// A missing endpoint skips the task terminally. A failed call bumps the
// retry counter: below the ceiling the task goes back to retry, at the
// ceiling it fails with the attempt's error recorded verbatim.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	run *models.PipelineRun,
	task models.Task,
	document map[string]any,
) models.TaskStatus {
	endpoint, ok := d.serviceMap[task.Target]
	if !ok || endpoint == "" {
		return d.skip(ctx, run, task)
	}

	now := time.Now().UTC()
	if err := d.store.UpdateTask(ctx, run.RunID, task.ID, map[string]any{
		"status":    models.TaskInProgress,
		"startedAt": now,
	}); err != nil {
		d.logger.Error("failed to persist task start", "taskId", task.ID, "error", err)
	}
	d.publish(run, task.ID, models.TaskInProgress, "")

	start := time.Now()
	err := d.call(ctx, endpoint, taskPayload{
		TenderID: run.TenderID,
		TaskID:   task.ID,
		Target:   task.Target,
		Document: document,
	})
	if d.metrics != nil {
		d.metrics.Record(metrics.OpDispatch, time.Since(start), err)
	}

	if err == nil {
		completed := time.Now().UTC()
		if err := d.store.UpdateTask(ctx, run.RunID, task.ID, map[string]any{
			"status":      models.TaskSucceeded,
			"completedAt": completed,
		}); err != nil {
			d.logger.Error("failed to persist task success", "taskId", task.ID, "error", err)
		}
		d.publish(run, task.ID, models.TaskSucceeded, "")
		d.logger.Info("task succeeded", "runId", run.RunID, "taskId", task.ID)
		return models.TaskSucceeded
	}

	return d.recordFailure(ctx, run, task, err)
}

func (d *Dispatcher) skip(ctx context.Context, run *models.PipelineRun, task models.Task) models.TaskStatus {
	if err := d.store.UpdateTask(ctx, run.RunID, task.ID, map[string]any{
		"status":    models.TaskSkipped,
		"skippedAt": time.Now().UTC(),
		"note":      "No endpoint configured.",
	}); err != nil {
		d.logger.Error("failed to persist task skip", "taskId", task.ID, "error", err)
	}
	d.publish(run, task.ID, models.TaskSkipped, "")
	d.logger.Warn("task skipped, no endpoint configured",
		"runId", run.RunID, "taskId", task.ID, "target", task.Target)
	return models.TaskSkipped
}

func (d *Dispatcher) recordFailure(ctx context.Context, run *models.PipelineRun, task models.Task, callErr error) models.TaskStatus {
	retries := 1
	if state, ok := run.Tasks[task.ID]; ok {
		retries = state.Retries + 1
	}

	status := models.TaskRetry
	if retries >= d.maxRetries {
		status = models.TaskFailed
	}

	if err := d.store.UpdateTask(ctx, run.RunID, task.ID, map[string]any{
		"status":  status,
		"error":   callErr.Error(),
		"retries": retries,
	}); err != nil {
		d.logger.Error("failed to persist task failure", "taskId", task.ID, "error", err)
	}
	// The run stays observable as running while tasks churn through retries.
	if err := d.store.UpdateRunFields(ctx, run.RunID, map[string]any{
		"status": models.RunRunning,
	}); err != nil {
		d.logger.Error("failed to persist run status", "runId", run.RunID, "error", err)
	}

	d.publish(run, task.ID, status, callErr.Error())
	d.logger.Warn("task attempt failed",
		"runId", run.RunID,
		"taskId", task.ID,
		"retries", retries,
		"status", status,
		"error", callErr)
	return status
}

func (d *Dispatcher) call(ctx context.Context, endpoint string, payload taskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) publish(run *models.PipelineRun, taskID string, status models.TaskStatus, errMsg string) {
	if d.bus != nil {
		d.bus.Publish(events.TaskEvent(run.TenderID, run.RunID, taskID, status, errMsg))
	}
}
