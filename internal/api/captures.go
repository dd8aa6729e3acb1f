package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

const enqueueTimeout = 5 * time.Second

type captureRequest struct {
	Domain   string   `json:"domain"`
	Devices  []string `json:"devices"`
	MaxLinks *int     `json:"max_links"`
}

type bulkRequest struct {
	// Domains defaults to the stored domain list.
	Domains  []string `json:"domains"`
	Devices  []string `json:"devices"`
	MaxLinks *int     `json:"max_links"`
}

func (s *Server) submitCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		writeError(w, http.StatusBadRequest, "domain required")
		return
	}
	params, err := s.toJobParameters([]string{req.Domain}, req.Devices, req.MaxLinks)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueAndRespond(w, r, params)
}

func (s *Server) submitBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	domains := req.Domains
	if len(domains) == 0 && s.deps.Domains != nil {
		stored, err := s.deps.Domains.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load domain list")
			return
		}
		domains = stored
	}
	if len(domains) == 0 {
		writeError(w, http.StatusBadRequest, "no domains to capture")
		return
	}
	params, err := s.toJobParameters(domains, req.Devices, req.MaxLinks)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueAndRespond(w, r, params)
}

func (s *Server) enqueueAndRespond(w http.ResponseWriter, r *http.Request, params crawler.JobParameters) {
	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  jobID,
		"domains": params.Domains,
		"devices": params.Devices,
	})
}

func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	results, err := s.deps.JobStore.ListResults(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job results")
		return
	}
	writeJSON(w, http.StatusOK, crawler.JobResult{Job: job, Results: results})
}

func (s *Server) cancelCapture(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status.Terminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}
	if s.deps.Jobs.Cancel(jobID) {
		// The worker records the final status once in-flight runs stop.
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "canceling"})
		return
	}
	if err := s.deps.JobStore.UpdateJobStatus(
		r.Context(),
		jobID,
		crawler.JobStatusCanceled,
		"canceled via API",
		job.Counters,
	); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(crawler.JobStatusCanceled)})
}

func (s *Server) enqueueJob(ctx context.Context, params crawler.JobParameters) (string, error) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.deps.Clock.Now()
	job := crawler.Job{
		ID:         jobID,
		Status:     crawler.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
		Counters:   crawler.JobCounters{},
	}
	if err := s.deps.JobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := crawler.QueueItem{
		JobID:     jobID,
		Params:    params,
		Submitted: now.Unix(),
	}
	if err := s.deps.Jobs.Enqueue(queueCtx, item); err != nil {
		if uerr := s.deps.JobStore.UpdateJobStatus(
			context.WithoutCancel(ctx), jobID, crawler.JobStatusFailed, "enqueue failed", crawler.JobCounters{},
		); uerr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	s.logger.Info("job queued",
		zap.String("job_id", jobID),
		zap.Int("domains", len(params.Domains)),
		zap.Int("devices", len(params.Devices)),
	)
	return jobID, nil
}

// toJobParameters validates the request and fills in configured defaults.
func (s *Server) toJobParameters(domains, devices []string, maxLinks *int) (crawler.JobParameters, error) {
	cleaned := make([]string, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := crawler.NormalizeURL(d); err != nil {
			return crawler.JobParameters{}, fmt.Errorf("domain %q: %w", d, err)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		cleaned = append(cleaned, d)
	}
	if len(cleaned) == 0 {
		return crawler.JobParameters{}, errors.New("at least one domain required")
	}

	var names []crawler.DeviceName
	var err error
	if len(devices) == 0 {
		names, err = s.cfg.Devices()
	} else {
		names, err = crawler.ParseDevices(devices)
	}
	if err != nil {
		return crawler.JobParameters{}, err
	}

	limit := valueOrDefault(maxLinks, 0)
	if limit < 0 {
		return crawler.JobParameters{}, errors.New("max_links must be >= 0")
	}
	if hard := s.cfg.Crawler.HardMaxLinks; hard > 0 && limit > hard {
		return crawler.JobParameters{}, fmt.Errorf("max_links must be <= %d", hard)
	}
	return crawler.JobParameters{Domains: cleaned, Devices: names, MaxLinks: limit}, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
