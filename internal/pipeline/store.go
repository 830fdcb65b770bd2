package pipeline

import (
	"context"

	"github.com/tenderwise/tenderflow/internal/models"
)

// RunStore persists run documents and their task transitions.
// Implemented by *db.Client.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.PipelineRun) error
	GetRun(ctx context.Context, runID string) (*models.PipelineRun, error)
	UpdateRunFields(ctx context.Context, runID string, fields map[string]any) error
	UpdateTask(ctx context.Context, runID, taskID string, fields map[string]any) error
}

// DocumentSource supplies the normalized tender document all tasks are
// dispatched with. Implemented by *db.Client.
type DocumentSource interface {
	GetParsedDocument(ctx context.Context, tenderID string) (map[string]any, error)
}
