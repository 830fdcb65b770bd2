package db

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/tenderwise/tenderflow/internal/models"
)

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

// CreateRun persists a new pipeline run document keyed by its run id.
func (c *Client) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("pipeline_run", $id) CONTENT $run
	`, map[string]any{"id": run.RunID, "run": run})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a pipeline run by its run id.
// Returns ErrNotFound if no such run exists.
func (c *Client) GetRun(ctx context.Context, runID string) (*models.PipelineRun, error) {
	results, err := surrealdb.Query[[]models.PipelineRun](ctx, c.db, `
		SELECT * FROM type::record("pipeline_run", $id)
	`, map[string]any{"id": runID})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get run %q: %w", runID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListRuns returns all pipeline runs for a tender, newest first.
func (c *Client) ListRuns(ctx context.Context, tenderID string) ([]models.PipelineRun, error) {
	results, err := surrealdb.Query[[]models.PipelineRun](ctx, c.db, `
		SELECT * FROM pipeline_run WHERE tenderId = $tenderId ORDER BY createdAt DESC
	`, map[string]any{"tenderId": tenderID})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.PipelineRun{}, nil
	}
	return (*results)[0].Result, nil
}

// GetLatestRun returns the most recent pipeline run for a tender.
// Returns ErrNotFound if the tender has no runs.
func (c *Client) GetLatestRun(ctx context.Context, tenderID string) (*models.PipelineRun, error) {
	results, err := surrealdb.Query[[]models.PipelineRun](ctx, c.db, `
		SELECT * FROM pipeline_run WHERE tenderId = $tenderId
		ORDER BY createdAt DESC LIMIT 1
	`, map[string]any{"tenderId": tenderID})
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("latest run for tender %q: %w", tenderID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// UpdateRunFields updates top-level fields of a run document. Keys are the
// json field names (status, error, currentStage). updatedAt is stamped
// automatically.
func (c *Client) UpdateRunFields(ctx context.Context, runID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	clauses, vars, err := buildSetClauses("", fields)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	vars["id"] = runID

	sql := fmt.Sprintf(`
		UPDATE type::record("pipeline_run", $id) SET %s, updatedAt = time::now()
	`, strings.Join(clauses, ", "))

	if _, err := surrealdb.Query[any](ctx, c.db, sql, vars); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// UpdateTask updates fields of a single task entry inside a run document
// without rewriting the rest of the tasks object. Task ids contain dots,
// so the path segment is backtick-escaped.
func (c *Client) UpdateTask(ctx context.Context, runID, taskID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if strings.ContainsAny(taskID, "`\n") {
		return fmt.Errorf("update task: invalid task id %q", taskID)
	}

	prefix := fmt.Sprintf("tasks.`%s`.", taskID)
	clauses, vars, err := buildSetClauses(prefix, fields)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	vars["id"] = runID

	sql := fmt.Sprintf(`
		UPDATE type::record("pipeline_run", $id) SET %s, updatedAt = time::now()
	`, strings.Join(clauses, ", "))

	if _, err := surrealdb.Query[any](ctx, c.db, sql, vars); err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return nil
}

// buildSetClauses turns a field map into deterministic SET clauses with
// bind parameters. Field names must be plain identifiers.
func buildSetClauses(prefix string, fields map[string]any) ([]string, map[string]any, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if !fieldNamePattern.MatchString(name) {
			return nil, nil, fmt.Errorf("invalid field name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	clauses := make([]string, 0, len(names))
	vars := make(map[string]any, len(names)+1)
	for i, name := range names {
		param := fmt.Sprintf("f%d", i)
		clauses = append(clauses, fmt.Sprintf("%s%s = $%s", prefix, name, param))
		vars[param] = fields[name]
	}
	return clauses, vars, nil
}

// SetLatestRun records the latest run id on the tender bookkeeping record.
func (c *Client) SetLatestRun(ctx context.Context, tenderID, runID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("tender", $tenderId) SET
			tenderId = $tenderId,
			latestRunId = $runId,
			updatedAt = time::now()
	`, map[string]any{"tenderId": tenderID, "runId": runID})
	if err != nil {
		return fmt.Errorf("set latest run: %w", err)
	}
	return nil
}
