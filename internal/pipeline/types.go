// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"context"
	"time"
)

// StepStatus represents the lifecycle state of a pipeline step.
type StepStatus string

// Step status values reported by the orchestrator.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ResultKind classifies the outcome of one task attempt.
type ResultKind string

// Task outcome values.
const (
	KindSuccess   ResultKind = "success"
	KindRetryable ResultKind = "retryable"
	KindTerminal  ResultKind = "terminal"
)

// ReasonMaxRetries marks a task abandoned after exhausting its retry budget.
const ReasonMaxRetries = "max retries exceeded"

// Task is one unit of work flowing through a step. Key uniquely identifies
// the task within the step's run and is what the frontier dedups and the
// checkpoint tracks. Attempt and InitialDelay carry the backoff progression
// so a re-enqueued or restored task resumes its schedule instead of starting
// over.
type Task struct {
	Key          string        `json:"key"`
	Payload      Record        `json:"payload"`
	Attempt      int           `json:"attempt,omitempty"`
	InitialDelay time.Duration `json:"initial_delay,omitempty"`
	NextEligible time.Time     `json:"next_eligible,omitempty"`
}

// NewTask builds a task whose key is the payload URL.
func NewTask(rec Record) Task {
	return Task{Key: rec.URL, Payload: rec}
}

// Ready reports whether the task is eligible to run at now.
func (t Task) Ready(now time.Time) bool {
	return !t.NextEligible.After(now)
}

// TaskResult is the tagged outcome of invoking a stage on a task once.
type TaskResult struct {
	Kind     ResultKind
	Records  []Record
	NewTasks []Task
	Reason   string
}

// Succeed builds a success result carrying output records and, for the crawl
// stage, newly discovered tasks.
func Succeed(records []Record, newTasks ...Task) TaskResult {
	return TaskResult{Kind: KindSuccess, Records: records, NewTasks: newTasks}
}

// Retry builds a retryable failure result.
func Retry(reason string) TaskResult {
	return TaskResult{Kind: KindRetryable, Reason: reason}
}

// Terminal builds a terminal failure result. The task is recorded as failed
// and never attempted again.
func Terminal(reason string) TaskResult {
	return TaskResult{Kind: KindTerminal, Reason: reason}
}

// Record is the row exchanged between steps. The crawl step emits bare URLs,
// the scrape step adds blob location and format, and the parse step fills the
// extracted fields. Unused fields stay at their zero value and are omitted
// from the JSONL encoding.
type Record struct {
	URL     string `json:"url"`
	BlobURI string `json:"blob_uri,omitempty"`
	Format  string `json:"format,omitempty"`

	Header   string     `json:"header,omitempty"`
	Text     string     `json:"text,omitempty"`
	Category []string   `json:"category,omitempty"`
	Time     *time.Time `json:"time,omitempty"`

	SourceText    string  `json:"source_text,omitempty"`
	TargetText    string  `json:"target_text,omitempty"`
	SourceLang    string  `json:"source_lang,omitempty"`
	TargetLang    string  `json:"target_lang,omitempty"`
	QualityScore  float64 `json:"quality_score,omitempty"`
	LowQuality    bool    `json:"low_quality,omitempty"`
	TranslationID string  `json:"translation_id,omitempty"`

	Error string `json:"error,omitempty"`
}

// Stage is the uniform unit-of-work contract the worker pool drives. The
// adapters in internal/stage wrap the crawl/scrape/parse collaborators into
// this shape.
type Stage interface {
	Name() string
	Execute(ctx context.Context, task Task) TaskResult
}

// RecordSink receives output records as tasks complete. Implementations must
// be safe for concurrent use by multiple workers.
type RecordSink interface {
	Append(ctx context.Context, records []Record) error
}

// Summary reports per-step task counts for logging and the status endpoint.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Retries   int `json:"retries"`
}
