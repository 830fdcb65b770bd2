package pipeline

import (
	"time"

	"github.com/tenderwise/tenderflow/internal/models"
)

// NewRunDocument builds the initial run document for a trigger: every task
// pending with zero retries, the run queued at stage zero.
func NewRunDocument(def Definition, runID, tenderID, trigger, ingestJobID string, createdAt time.Time) *models.PipelineRun {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tasks := make(map[string]*models.TaskState, len(def.Tasks))
	for _, task := range def.Tasks {
		tasks[task.ID] = &models.TaskState{
			Status:      models.TaskPending,
			Stage:       task.Stage,
			Order:       task.Order,
			Target:      task.Target,
			Description: task.Description,
			Retries:     0,
		}
	}

	return &models.PipelineRun{
		RunID:        runID,
		TenderID:     tenderID,
		IngestJobID:  ingestJobID,
		Trigger:      trigger,
		Status:       models.RunQueued,
		CurrentStage: 0,
		Tasks:        tasks,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}
