// Package worker implements the capture job execution loop.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/batch"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/metrics"
	"github.com/JakeFAU/site-screenshot-crawler/internal/telemetry"
)

// Config controls Worker behavior.
type Config struct {
	// Topic receives one message per finished run. Empty disables publishing.
	Topic string
}

// Canceller lets a worker expose its running jobs to cancellation.
type Canceller interface {
	// Register reports true when the job was cancelled before it started.
	Register(jobID string, cancel context.CancelFunc) bool
	Done(jobID string)
}

// Worker consumes queue items and runs every (domain, device) pair of a job.
type Worker struct {
	queue     crawler.Queue
	jobStore  crawler.JobStore
	runner    *batch.Runner
	publisher crawler.Publisher
	recorder  crawler.RunRecorder
	cancels   Canceller
	cfg       Config
	logger    *zap.Logger
}

// Option configures optional Worker collaborators.
type Option func(*Worker)

// WithPublisher announces finished runs on cfg.Topic.
func WithPublisher(p crawler.Publisher) Option {
	return func(w *Worker) { w.publisher = p }
}

// WithRecorder persists finished runs.
func WithRecorder(r crawler.RunRecorder) Option {
	return func(w *Worker) { w.recorder = r }
}

// WithCanceller registers running jobs so they can be cancelled.
func WithCanceller(c Canceller) Option {
	return func(w *Worker) { w.cancels = c }
}

// New constructs a Worker.
func New(
	queue crawler.Queue,
	jobStore crawler.JobStore,
	runner *batch.Runner,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		queue:    queue,
		jobStore: jobStore,
		runner:   runner,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	ctx, span := telemetry.Tracer("worker").Start(ctx, "capture.job",
		trace.WithAttributes(attribute.String("job.id", item.JobID)))
	defer span.End()
	logger := w.logger.With(zap.String("job_id", item.JobID))
	// Store writes must land even when the job or the process is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	if w.runner == nil || w.jobStore == nil {
		logger.Error("worker is missing its runner or job store")
		w.finish(storeCtx, logger, item.JobID, crawler.JobStatusFailed, "worker not configured", crawler.JobCounters{})
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if w.cancels != nil {
		if w.cancels.Register(item.JobID, cancel) {
			logger.Info("job cancelled before start")
			w.finish(storeCtx, logger, item.JobID, crawler.JobStatusCanceled, "cancelled before start", crawler.JobCounters{})
			return
		}
		defer w.cancels.Done(item.JobID)
	}

	if err := w.jobStore.UpdateJobStatus(storeCtx, item.JobID, crawler.JobStatusRunning, "", crawler.JobCounters{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	reqs := batch.Plan(item.Params.Domains, item.Params.Devices, item.Params.MaxLinks)
	var (
		mu       sync.Mutex
		counters crawler.JobCounters
	)
	_, runErr := w.runner.Run(jobCtx, reqs, func(_ int, result crawler.CrawlResult) error {
		mu.Lock()
		counters.Add(result)
		snapshot := counters
		mu.Unlock()
		return w.handleResult(storeCtx, logger, item.JobID, result, snapshot)
	})

	mu.Lock()
	final := counters
	mu.Unlock()
	status, errText := w.deriveFinalStatus(jobCtx, len(reqs), final, runErr)
	span.SetAttributes(
		attribute.String("job.status", string(status)),
		attribute.Int("job.runs", len(reqs)),
	)
	w.finish(storeCtx, logger, item.JobID, status, errText, final)
}

// handleResult stores one run result. Only a job-store failure aborts the job;
// the recorder and publisher are best effort.
func (w *Worker) handleResult(
	ctx context.Context,
	logger *zap.Logger,
	jobID string,
	result crawler.CrawlResult,
	counters crawler.JobCounters,
) error {
	if err := w.jobStore.RecordResult(ctx, jobID, result); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	if err := w.jobStore.UpdateJobStatus(ctx, jobID, crawler.JobStatusRunning, "", counters); err != nil {
		logger.Warn("progress update failed", zap.Error(err))
	}
	if w.recorder != nil {
		if err := w.recorder.RecordRun(ctx, jobID, result); err != nil {
			logger.Warn("run record failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	if err := w.publishResult(ctx, jobID, result); err != nil {
		logger.Warn("run publish failed", zap.String("run_id", result.RunID), zap.Error(err))
	}
	return nil
}

func (w *Worker) publishResult(ctx context.Context, jobID string, result crawler.CrawlResult) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := crawler.NewRunEvent(jobID, result)
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Info("run published",
		zap.String("job_id", jobID),
		zap.String("run_id", result.RunID),
		zap.String("message_id", id),
	)
	return nil
}

func (w *Worker) finish(
	ctx context.Context,
	logger *zap.Logger,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) {
	metrics.ObserveJob(string(status))
	if w.jobStore == nil {
		return
	}
	if err := w.jobStore.UpdateJobStatus(ctx, jobID, status, errText, counters); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
		return
	}
	logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("runs_completed", counters.RunsCompleted),
		zap.Int("runs_failed", counters.RunsFailed),
		zap.Int("artifacts", counters.Artifacts),
	)
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	planned int,
	counters crawler.JobCounters,
	runErr error,
) (crawler.JobStatus, string) {
	switch {
	case runErr != nil:
		return crawler.JobStatusFailed, runErr.Error()
	case planned == 0:
		return crawler.JobStatusFailed, "no runs planned"
	case ctx.Err() != nil:
		return crawler.JobStatusCanceled, "cancelled"
	case counters.RunsCompleted == 0:
		return crawler.JobStatusFailed, "no run completed"
	default:
		return crawler.JobStatusSucceeded, ""
	}
}
