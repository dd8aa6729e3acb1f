package crawler

import (
	"context"
	"time"
)

// Session owns one browser process bound to one device profile. A Session is
// not safe for concurrent navigation.
type Session interface {
	Navigate(ctx context.Context, rawURL string) (Page, error)
	Capture(ctx context.Context) ([]byte, error)
	ExtractLinks(ctx context.Context) ([]string, error)
	Viewport() Viewport
	Close() error
}

// Launcher starts browser sessions. Open may block until a session slot is
// free and returns an error once ctx is done; the session itself is not bound
// to ctx.
type Launcher interface {
	Open(ctx context.Context, profile DeviceProfile) (Session, error)
}

// ArtifactStore names and persists screenshots.
type ArtifactStore interface {
	Root() string
	DomainLabel(host string) string
	NewRunID() string
	RunDir(domainLabel, runID string, device DeviceName) string
	PathFor(domainLabel, runID string, device DeviceName, index int) string
	Write(ctx context.Context, relPath string, data []byte) (string, error)
}

// AuditSink receives run lifecycle events.
type AuditSink interface {
	RunStarted(runID string, req CrawlRequest)
	LinkFailed(runID string, failure LinkFailure)
	RunFinished(result CrawlResult)
}

// RobotsPolicy decides whether a discovered URL may be visited.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// HostLimiter paces navigations per host across concurrent runs.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Hasher computes artifact checksums.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type nopAudit struct{}

func (nopAudit) RunStarted(string, CrawlRequest) {}
func (nopAudit) LinkFailed(string, LinkFailure)  {}
func (nopAudit) RunFinished(CrawlResult)         {}
