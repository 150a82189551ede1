package models

import "time"

// AIJobStatus represents the lifecycle state of an AI job.
// pending -> processing -> completed | failed. Terminal states never
// transition again.
type AIJobStatus string

const (
	AIJobStatusPending    AIJobStatus = "pending"
	AIJobStatusProcessing AIJobStatus = "processing"
	AIJobStatusCompleted  AIJobStatus = "completed"
	AIJobStatusFailed     AIJobStatus = "failed"
)

// AIJobTypeFullExtraction summarizes the whole thread of the issue the
// anchor event belongs to. It is the only job type the pipeline knows.
const AIJobTypeFullExtraction = "full_extraction"

// AIJob is an asynchronous unit of work anchored on one event.
// Output holds the JSON-encoded result: a summary object on success,
// {"error": "..."} on failure.
type AIJob struct {
	ID          string
	EventID     string
	JobType     string
	Status      AIJobStatus
	Output      string
	CreatedAt   time.Time
	CompletedAt *time.Time
	DeletedAt   *time.Time
}

// Terminal reports whether the job has reached a final state.
func (j *AIJob) Terminal() bool {
	return j.Status == AIJobStatusCompleted || j.Status == AIJobStatusFailed
}
