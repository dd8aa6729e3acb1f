package crawler

import (
	"time"
)

// RunStatus is the terminal state of a crawl run.
type RunStatus string

// Run status values reported in CrawlResult.
const (
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// DefaultMaxLinks caps link visits when a request does not override it.
const DefaultMaxLinks = 50

// CrawlRequest describes one run: a seed, a device, and a visit cap.
type CrawlRequest struct {
	SeedURL     string     `json:"seed_url"`
	Device      DeviceName `json:"device"`
	MaxLinks    int        `json:"max_links,omitempty"`
	DomainLabel string     `json:"domain_label,omitempty"`
}

// CaptureArtifact is one persisted screenshot.
type CaptureArtifact struct {
	Path       string     `json:"path"`
	URL        string     `json:"url"`
	Device     DeviceName `json:"device"`
	CapturedAt time.Time  `json:"captured_at"`
	RemoteURI  string     `json:"remote_uri,omitempty"`
	// SHA256 is the hex digest of the PNG when a hasher is configured.
	SHA256 string `json:"sha256,omitempty"`
}

// Manifest lists artifacts in visitation order.
type Manifest []CaptureArtifact

// FailureStage records where a per-link failure happened.
type FailureStage string

// Failure stages.
const (
	StageNavigate FailureStage = "navigate"
	StageCapture  FailureStage = "capture"
)

// LinkFailure is a page that failed without aborting the run.
type LinkFailure struct {
	URL   string       `json:"url"`
	Stage FailureStage `json:"stage"`
	Error string       `json:"error"`
}

// CrawlResult is returned by Orchestrator.Run on every exit path.
type CrawlResult struct {
	RunID       string        `json:"run_id"`
	DomainLabel string        `json:"domain_label"`
	OutputDir   string        `json:"output_dir"`
	SeedURL     string        `json:"seed_url"`
	Device      DeviceName    `json:"device"`
	Status      RunStatus     `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Manifest    Manifest      `json:"manifest"`
	Failures    []LinkFailure `json:"failures"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Page is the outcome of a successful navigation.
type Page struct {
	URL      string
	FinalURL string
	Duration time.Duration
}

// Viewport is the emulated window size of a session.
type Viewport struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}
