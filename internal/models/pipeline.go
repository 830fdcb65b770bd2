// Package models defines data structures for the Tenderflow pipeline and RAG core.
package models

import "time"

// StageKind controls how the tasks of one stage are dispatched.
type StageKind string

const (
	// StageSequential dispatches tasks one at a time in declared order.
	StageSequential StageKind = "sequential"
	// StageParallel dispatches all eligible tasks of the stage concurrently.
	StageParallel StageKind = "parallel"
	// StageLoop marks a self-iterating target. Dispatch-wise it behaves like
	// a sequential stage; the target service drives its own iteration.
	StageLoop StageKind = "loop"
)

// TaskStatus is the per-task state machine:
// pending -> in-progress -> {succeeded | retry | failed}
// retry   -> in-progress -> {succeeded | retry | failed}
// pending -> skipped (terminal, no endpoint configured).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
	TaskRetry      TaskStatus = "retry"
	TaskSkipped    TaskStatus = "skipped"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskSkipped
}

// RunStatus is the run-level state machine: queued -> running -> {succeeded | failed}.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Task is one static, immutable pipeline task declaration.
type Task struct {
	ID          string    `json:"taskId"`
	Stage       StageKind `json:"stage"`
	Order       int       `json:"order"`
	Target      string    `json:"target"`
	Description string    `json:"description,omitempty"`
}

// TaskState is the mutable per-task record inside a run document.
type TaskState struct {
	Status      TaskStatus `json:"status"`
	Stage       StageKind  `json:"stage"`
	Order       int        `json:"order"`
	Target      string     `json:"target"`
	Description string     `json:"description,omitempty"`
	Retries     int        `json:"retries"`
	Error       string     `json:"error,omitempty"`
	Note        string     `json:"note,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	SkippedAt   *time.Time `json:"skippedAt,omitempty"`
}

// PipelineRun is the persisted state of one pipeline invocation.
// The orchestrating process owns it exclusively while executing; it is
// persisted after every transition for observability and crash recovery.
type PipelineRun struct {
	RunID        string                `json:"runId"`
	TenderID     string                `json:"tenderId"`
	IngestJobID  string                `json:"ingestJobId"`
	Trigger      string                `json:"trigger"`
	Status       RunStatus             `json:"status"`
	Error        string                `json:"error,omitempty"`
	CurrentStage int                   `json:"currentStage"`
	Tasks        map[string]*TaskState `json:"tasks"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// TriggerMessage is the decoded payload of a pipeline trigger envelope.
type TriggerMessage struct {
	TenderID    string `json:"tenderId"`
	IngestJobID string `json:"ingestJobId"`
	Trigger     string `json:"trigger,omitempty"`
}
