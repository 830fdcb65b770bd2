// Package pipeline orchestrates the per-tender document processing run:
// a staged task schedule persisted as a run document, dispatched to
// independently deployed services over HTTP.
package pipeline

import (
	"sort"

	"github.com/tenderwise/tenderflow/internal/models"
)

// Definition is an ordered set of pipeline tasks.
type Definition struct {
	Tasks []models.Task
}

// Grouped returns the tasks bucketed by stage order, preserving declared
// order within each bucket.
func (d Definition) Grouped() map[int][]models.Task {
	groups := make(map[int][]models.Task)
	for _, task := range d.Tasks {
		groups[task.Order] = append(groups[task.Order], task)
	}
	return groups
}

// StageOrders returns the distinct stage orders, ascending.
func (d Definition) StageOrders() []int {
	seen := make(map[int]bool)
	var orders []int
	for _, task := range d.Tasks {
		if !seen[task.Order] {
			seen[task.Order] = true
			orders = append(orders, task.Order)
		}
	}
	sort.Ints(orders)
	return orders
}

// Default is the standard tender processing pipeline: normalization,
// parallel fact extraction, a QA loop, artifact generation and corpus
// indexing.
var Default = Definition{
	Tasks: []models.Task{
		{ID: "normalize.documents", Stage: models.StageSequential, Order: 0, Target: "ingest-api", Description: "Normalize OCR output"},
		{ID: "extract.deadlines", Stage: models.StageParallel, Order: 1, Target: "extractor.deadlines", Description: "Extract deadlines"},
		{ID: "extract.emd", Stage: models.StageParallel, Order: 1, Target: "extractor.emd", Description: "Extract earnest money deposits"},
		{ID: "extract.requirements", Stage: models.StageParallel, Order: 1, Target: "extractor.requirements", Description: "Extract requirements"},
		{ID: "extract.penalties", Stage: models.StageParallel, Order: 1, Target: "extractor.penalties", Description: "Extract penalty clauses"},
		{ID: "extract.annexures", Stage: models.StageParallel, Order: 1, Target: "extractor.annexures", Description: "Locate annexures"},
		{ID: "qa.loop", Stage: models.StageLoop, Order: 2, Target: "qa.loop", Description: "QA and retry low-confidence outputs"},
		{ID: "artifact.annexures", Stage: models.StageSequential, Order: 3, Target: "artifact.annexures", Description: "Generate annexure artifacts"},
		{ID: "artifact.checklist", Stage: models.StageSequential, Order: 3, Target: "artifact.checklist", Description: "Generate compliance checklist"},
		{ID: "artifact.plan", Stage: models.StageSequential, Order: 3, Target: "artifact.plan", Description: "Generate baseline plan"},
		{ID: "rag.index", Stage: models.StageSequential, Order: 4, Target: "rag.index", Description: "Publish layout-aware chunks to the retrieval index"},
	},
}
