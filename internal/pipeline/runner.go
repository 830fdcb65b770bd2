package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tenderwise/tenderflow/internal/events"
	"github.com/tenderwise/tenderflow/internal/models"
)

// Runner drives a pipeline run to completion stage by stage. Each stage
// iteration re-reads the persisted run document, dispatches every task
// still pending or awaiting retry, and advances to the next stage only
// once no such task remains.
type Runner struct {
	store      RunStore
	docs       DocumentSource
	dispatcher *Dispatcher
	def        Definition
	bus        *events.Bus
	retryWait  time.Duration
	logger     *slog.Logger
}

// NewRunner creates a stage runner. retryWait seeds the backoff between
// retry rounds of a stage.
func NewRunner(
	store RunStore,
	docs DocumentSource,
	dispatcher *Dispatcher,
	def Definition,
	bus *events.Bus,
	retryWait time.Duration,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if retryWait <= 0 {
		retryWait = 500 * time.Millisecond
	}
	return &Runner{
		store:      store,
		docs:       docs,
		dispatcher: dispatcher,
		def:        def,
		bus:        bus,
		retryWait:  retryWait,
		logger:     logger,
	}
}

// Execute runs the pipeline for an already-persisted run document. A
// missing normalized document fails the run before any task dispatches.
func (r *Runner) Execute(ctx context.Context, runID string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	document, err := r.docs.GetParsedDocument(ctx, run.TenderID)
	if err != nil {
		msg := fmt.Sprintf("normalized document for tender %s not available: %v", run.TenderID, err)
		r.finishRun(ctx, run, models.RunFailed, msg)
		return fmt.Errorf("load normalized document: %w", err)
	}

	if err := r.store.UpdateRunFields(ctx, runID, map[string]any{
		"status": models.RunRunning,
	}); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	r.publishStatus(run, models.RunRunning, "")
	r.logger.Info("pipeline run started", "runId", runID, "tenderId", run.TenderID)

	grouped := r.def.Grouped()
	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = r.retryWait
	retryBackoff.MaxElapsedTime = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		run, err = r.store.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("reload run: %w", err)
		}

		stageTasks, ok := grouped[run.CurrentStage]
		if !ok {
			r.finishRun(ctx, run, models.RunSucceeded, "")
			r.logger.Info("pipeline run succeeded", "runId", runID, "tenderId", run.TenderID)
			return nil
		}

		eligible := eligibleTasks(stageTasks, run)
		if len(eligible) == 0 {
			next := run.CurrentStage + 1
			if err := r.store.UpdateRunFields(ctx, runID, map[string]any{
				"currentStage": next,
			}); err != nil {
				return fmt.Errorf("advance stage: %w", err)
			}
			r.logger.Debug("stage complete", "runId", runID, "stage", run.CurrentStage)
			retryBackoff.Reset()
			continue
		}

		var statuses []models.TaskStatus
		if stageTasks[0].Stage == models.StageParallel {
			statuses = r.dispatchParallel(ctx, run, eligible, document)
		} else {
			statuses = r.dispatchSequential(ctx, run, eligible, document)
		}

		if containsStatus(statuses, models.TaskFailed) {
			r.finishRun(ctx, run, models.RunFailed, "")
			r.logger.Error("pipeline run failed", "runId", runID, "stage", run.CurrentStage)
			return nil
		}

		if containsStatus(statuses, models.TaskRetry) {
			wait := retryBackoff.NextBackOff()
			r.logger.Debug("stage has retrying tasks, backing off",
				"runId", runID, "stage", run.CurrentStage, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// eligibleTasks returns the stage's tasks still pending or marked retry,
// in declared order.
func eligibleTasks(stageTasks []models.Task, run *models.PipelineRun) []models.Task {
	var eligible []models.Task
	for _, task := range stageTasks {
		state, ok := run.Tasks[task.ID]
		if !ok || state.Status == models.TaskPending || state.Status == models.TaskRetry {
			eligible = append(eligible, task)
		}
	}
	return eligible
}

// dispatchParallel fans the tasks out concurrently and awaits them all;
// one failing task never cancels its siblings.
func (r *Runner) dispatchParallel(
	ctx context.Context,
	run *models.PipelineRun,
	tasks []models.Task,
	document map[string]any,
) []models.TaskStatus {
	statuses := make([]models.TaskStatus, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = r.dispatcher.Dispatch(ctx, run, task, document)
		}()
	}
	wg.Wait()
	return statuses
}

func (r *Runner) dispatchSequential(
	ctx context.Context,
	run *models.PipelineRun,
	tasks []models.Task,
	document map[string]any,
) []models.TaskStatus {
	statuses := make([]models.TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		statuses = append(statuses, r.dispatcher.Dispatch(ctx, run, task, document))
	}
	return statuses
}

func (r *Runner) finishRun(ctx context.Context, run *models.PipelineRun, status models.RunStatus, errMsg string) {
	fields := map[string]any{"status": status}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if err := r.store.UpdateRunFields(ctx, run.RunID, fields); err != nil {
		r.logger.Error("failed to persist run status",
			"runId", run.RunID, "status", status, "error", err)
	}
	r.publishStatus(run, status, errMsg)
}

func (r *Runner) publishStatus(run *models.PipelineRun, status models.RunStatus, errMsg string) {
	if r.bus != nil {
		r.bus.Publish(events.StatusEvent(run.TenderID, run.RunID, status, errMsg))
	}
}

func containsStatus(statuses []models.TaskStatus, want models.TaskStatus) bool {
	for _, s := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
