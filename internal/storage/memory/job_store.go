// Package memory holds the in-process job store used by the API server.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// JobStore keeps jobs and their run results in memory.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]crawler.Job
	results map[string][]crawler.CrawlResult
	now     func() time.Time
}

var _ crawler.JobStore = (*JobStore)(nil)

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]crawler.Job),
		results: make(map[string][]crawler.CrawlResult),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job. A job that has
// reached a terminal status keeps it.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// RecordResult appends a run result for a job.
func (s *JobStore) RecordResult(_ context.Context, jobID string, result crawler.CrawlResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	s.results[jobID] = append(s.results[jobID], result)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	return job, nil
}

// ListResults returns the run results recorded for a job.
func (s *JobStore) ListResults(_ context.Context, jobID string) ([]crawler.CrawlResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	results := s.results[jobID]
	out := make([]crawler.CrawlResult, len(results))
	copy(out, results)
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
