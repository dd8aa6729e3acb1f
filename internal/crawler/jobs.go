package crawler

import (
	"context"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a capture job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions follow s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// ErrJobNotFound is returned by job stores for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// JobParameters describes the runs a job performs: every domain on every device.
type JobParameters struct {
	Domains  []string     `json:"domains"`
	Devices  []DeviceName `json:"devices"`
	MaxLinks int          `json:"max_links,omitempty"`
}

// Job represents the metadata persisted for each submitted capture request.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks run outcomes per job.
type JobCounters struct {
	RunsCompleted int `json:"runs_completed"`
	RunsFailed    int `json:"runs_failed"`
	RunsCancelled int `json:"runs_cancelled"`
	Artifacts     int `json:"artifacts"`
	PageFailures  int `json:"page_failures"`
}

// Add folds one run result into the counters.
func (c *JobCounters) Add(result CrawlResult) {
	switch result.Status {
	case StatusCompleted:
		c.RunsCompleted++
	case StatusCancelled:
		c.RunsCancelled++
	default:
		c.RunsFailed++
	}
	c.Artifacts += len(result.Manifest)
	c.PageFailures += len(result.Failures)
}

// JobResult is returned by the API job endpoint.
type JobResult struct {
	Job     Job           `json:"job"`
	Results []CrawlResult `json:"results"`
}

// JobStore persists jobs and the run results they produce.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	RecordResult(ctx context.Context, jobID string, result CrawlResult) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListResults(ctx context.Context, jobID string) ([]CrawlResult, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunRecorder persists finished runs outside the process.
type RunRecorder interface {
	RecordRun(ctx context.Context, jobID string, result CrawlResult) error
}

// Queue provides enqueue/dequeue semantics for capture jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Submitted int64
}

// RunEvent is the notification published for every finished run. JobID is
// empty for runs started from the command line.
type RunEvent struct {
	JobID      string     `json:"job_id,omitempty"`
	RunID      string     `json:"run_id"`
	Domain     string     `json:"domain"`
	SeedURL    string     `json:"seed_url"`
	Device     DeviceName `json:"device"`
	Status     RunStatus  `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Artifacts  int        `json:"artifacts"`
	Failures   int        `json:"failures"`
	OutputDir  string     `json:"output_dir"`
	FinishedAt string     `json:"finished_at"`
}

// NewRunEvent summarizes result for publication.
func NewRunEvent(jobID string, result CrawlResult) RunEvent {
	return RunEvent{
		JobID:      jobID,
		RunID:      result.RunID,
		Domain:     result.DomainLabel,
		SeedURL:    result.SeedURL,
		Device:     result.Device,
		Status:     result.Status,
		Reason:     result.Reason,
		Artifacts:  len(result.Manifest),
		Failures:   len(result.Failures),
		OutputDir:  result.OutputDir,
		FinishedAt: result.FinishedAt.UTC().Format(time.RFC3339),
	}
}
