package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/site-screenshot-crawler/internal/metrics"
)

// State is a step of the orchestrator's run state machine.
type State string

// Orchestrator states in the order a run moves through them.
const (
	StateInitialized    State = "initialized"
	StateNavigatingSeed State = "navigating_seed"
	StateCapturingSeed  State = "capturing_seed"
	StateDiscovering    State = "discovering"
	StateNavigatingLink State = "navigating_link"
	StateCapturingLink  State = "capturing_link"
	StateFinalizing     State = "finalizing"
)

// Orchestrator runs one crawl per call to Run: it opens a browser session,
// captures the seed, discovers the seed's same-origin links, and captures each
// of them in discovery order until the queue drains, the visit cap is reached,
// or the context is cancelled.
type Orchestrator struct {
	cfg      Config
	launcher Launcher
	store    ArtifactStore
	robots   RobotsPolicy
	audit    AuditSink
	hosts    HostLimiter
	hasher   Hasher
	clock    Clock
	logger   *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRobotsPolicy filters discovered links through policy.
func WithRobotsPolicy(policy RobotsPolicy) Option {
	return func(o *Orchestrator) {
		if policy != nil {
			o.robots = policy
		}
	}
}

// WithAuditSink routes run lifecycle events to sink.
func WithAuditSink(sink AuditSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.audit = sink
		}
	}
}

// WithHostLimiter paces every navigation, seed included, through limiter
// instead of a per-run limiter. Runs sharing limiter share each host's budget.
func WithHostLimiter(limiter HostLimiter) Option {
	return func(o *Orchestrator) { o.hosts = limiter }
}

// WithHasher records a checksum for every artifact.
func WithHasher(h Hasher) Option {
	return func(o *Orchestrator) { o.hasher = h }
}

// WithClock overrides the clock used for timestamps.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(cfg Config, launcher Launcher, store ArtifactStore, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:      cfg,
		launcher: launcher,
		store:    store,
		robots:   allowAll{},
		audit:    nopAudit{},
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds the mutable state of a single Run call.
type run struct {
	id       string
	label    string
	profile  DeviceProfile
	seed     *url.URL
	state    State
	visited  map[string]struct{}
	manifest Manifest
	failures []LinkFailure
	logger   *zap.Logger
}

func (r *run) transition(next State) {
	r.logger.Debug("run state changed", zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.state = next
}

// Run executes req and always returns a result. Cancelling ctx stops the run
// before the next link is visited; an in-flight navigation or capture is
// allowed to finish.
func (o *Orchestrator) Run(ctx context.Context, req CrawlRequest) (result CrawlResult) {
	started := o.clock.Now()
	result = CrawlResult{
		SeedURL:   req.SeedURL,
		Device:    req.Device,
		Manifest:  Manifest{},
		Failures:  []LinkFailure{},
		StartedAt: started,
	}

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	r, err := o.prepare(req)
	if err != nil {
		o.logger.Warn("crawl rejected", zap.String("seed", req.SeedURL), zap.Error(err))
		return o.finish(result, nil, StatusFailed, err.Error())
	}
	result.RunID = r.id
	result.Device = r.profile.Name
	result.DomainLabel = r.label
	result.SeedURL = r.seed.String()
	result.OutputDir = filepath.Join(o.store.Root(), o.store.RunDir(r.label, r.id, r.profile.Name))
	o.audit.RunStarted(r.id, req)
	r.logger.Info("crawl started", zap.Int("max_links", o.cfg.maxLinks(req.MaxLinks)))

	if ctx.Err() != nil {
		return o.finish(result, r, StatusCancelled, "cancelled before start")
	}

	// Browser work is detached from ctx so cancellation never interrupts it mid-operation.
	opCtx := context.WithoutCancel(ctx)

	session, err := o.launcher.Open(ctx, r.profile)
	if err != nil {
		if ctx.Err() != nil {
			r.logger.Info("crawl cancelled while waiting for a browser", zap.Error(err))
			return o.finish(result, r, StatusCancelled, "cancelled before start")
		}
		if !errors.Is(err, ErrSessionStart) {
			err = fmt.Errorf("%w: %w", ErrSessionStart, err)
		}
		r.logger.Error("browser session failed to start", zap.Error(err))
		return o.finish(result, r, StatusFailed, err.Error())
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("browser session close failed", zap.Error(cerr))
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("crawl panicked", zap.Any("panic", rec), zap.String("state", string(r.state)))
			result = o.finish(result, r, StatusFailed, fmt.Sprintf("internal error in %s: %v", r.state, rec))
		}
	}()

	status, reason := o.crawl(ctx, opCtx, session, r, req)
	return o.finish(result, r, status, reason)
}

func (o *Orchestrator) prepare(req CrawlRequest) (*run, error) {
	profile, err := Profile(req.Device)
	if err != nil {
		return nil, err
	}
	seed, err := NormalizeURL(req.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	label := o.store.DomainLabel(seed.Host)
	if override := strings.TrimSpace(req.DomainLabel); override != "" {
		label = o.store.DomainLabel(override)
	}
	if err := ValidateDomainLabel(label); err != nil {
		return nil, err
	}
	id := o.store.NewRunID()
	return &run{
		id:       id,
		label:    label,
		profile:  profile,
		seed:     seed,
		state:    StateInitialized,
		visited:  make(map[string]struct{}),
		manifest: Manifest{},
		logger: o.logger.With(
			zap.String("run_id", id),
			zap.String("domain", label),
			zap.String("device", string(profile.Name)),
		),
	}, nil
}

func (o *Orchestrator) crawl(ctx, opCtx context.Context, session Session, r *run, req CrawlRequest) (RunStatus, string) {
	r.transition(StateNavigatingSeed)
	seedKey := r.seed.String()
	r.visited[seedKey] = struct{}{}
	if o.hosts != nil {
		if err := o.hosts.Wait(ctx, seedKey); err != nil {
			return StatusCancelled, "cancelled"
		}
	}
	page, err := session.Navigate(opCtx, seedKey)
	metrics.ObserveNavigation(string(r.profile.Name), err == nil, page.Duration)
	if err != nil {
		r.logger.Error("seed navigation failed", zap.String("url", seedKey), zap.Error(err))
		return StatusFailed, fmt.Sprintf("navigate seed: %v", err)
	}

	r.transition(StateCapturingSeed)
	o.capture(opCtx, session, r, seedKey, 0)

	r.transition(StateDiscovering)
	queue := o.discover(opCtx, session, r)

	limiter := o.newLimiter()
	limit := o.cfg.maxLinks(req.MaxLinks)
	visits := 0
	for _, link := range queue {
		if ctx.Err() != nil {
			r.logger.Info("crawl cancelled", zap.Int("visited_links", visits))
			return StatusCancelled, "cancelled"
		}
		if visits >= limit {
			r.logger.Info("visit cap reached", zap.Int("max_links", limit), zap.Int("queued", len(queue)))
			break
		}
		key := link.String()
		if _, seen := r.visited[key]; seen {
			continue
		}
		if err := o.pace(ctx, limiter, key); err != nil {
			r.logger.Info("crawl cancelled while pacing", zap.Int("visited_links", visits))
			return StatusCancelled, "cancelled"
		}
		visits++
		r.visited[key] = struct{}{}

		r.transition(StateNavigatingLink)
		page, err := session.Navigate(opCtx, key)
		metrics.ObserveNavigation(string(r.profile.Name), err == nil, page.Duration)
		if err != nil {
			o.recordFailure(r, key, StageNavigate, err)
			continue
		}
		r.transition(StateCapturingLink)
		o.capture(opCtx, session, r, key, visits)
	}
	return StatusCompleted, ""
}

// capture screenshots the current page and appends it to the manifest.
// Failures are recorded against pageURL and never abort the run.
func (o *Orchestrator) capture(ctx context.Context, session Session, r *run, pageURL string, index int) {
	data, err := session.Capture(ctx)
	if err != nil {
		if !errors.Is(err, ErrCapture) {
			err = fmt.Errorf("%w: %w", ErrCapture, err)
		}
		o.recordFailure(r, pageURL, StageCapture, err)
		metrics.ObserveCapture(string(r.profile.Name), false)
		return
	}
	rel := o.store.PathFor(r.label, r.id, r.profile.Name, index)
	remote, err := o.store.Write(ctx, rel, data)
	if err != nil {
		o.recordFailure(r, pageURL, StageCapture, fmt.Errorf("%w: %w", ErrCapture, err))
		metrics.ObserveCapture(string(r.profile.Name), false)
		return
	}
	artifact := CaptureArtifact{
		Path:       rel,
		URL:        pageURL,
		Device:     r.profile.Name,
		CapturedAt: o.clock.Now(),
		RemoteURI:  remote,
	}
	if o.hasher != nil {
		sum, err := o.hasher.Hash(data)
		if err != nil {
			r.logger.Warn("artifact checksum failed", zap.String("path", rel), zap.Error(err))
		}
		artifact.SHA256 = sum
	}
	r.manifest = append(r.manifest, artifact)
	metrics.ObserveCapture(string(r.profile.Name), true)
	r.logger.Debug("page captured", zap.String("url", pageURL), zap.String("path", rel))
}

// discover extracts the seed page's links and returns the ones to visit.
func (o *Orchestrator) discover(ctx context.Context, session Session, r *run) []*url.URL {
	hrefs, err := session.ExtractLinks(ctx)
	if err != nil {
		r.logger.Warn("link extraction failed; continuing without links", zap.Error(err))
		return nil
	}
	var queue []*url.URL
	for _, link := range DiscoverLinks(r.seed, hrefs) {
		key := link.String()
		if _, seen := r.visited[key]; seen {
			continue
		}
		if !o.robots.Allowed(ctx, key) {
			r.logger.Debug("link disallowed by robots.txt", zap.String("url", key))
			continue
		}
		queue = append(queue, link)
	}
	r.logger.Info("links discovered", zap.Int("raw", len(hrefs)), zap.Int("queued", len(queue)))
	return queue
}

func (o *Orchestrator) recordFailure(r *run, pageURL string, stage FailureStage, err error) {
	failure := LinkFailure{URL: pageURL, Stage: stage, Error: err.Error()}
	r.failures = append(r.failures, failure)
	metrics.ObserveLinkFailure(string(r.profile.Name), string(stage))
	o.audit.LinkFailed(r.id, failure)
	r.logger.Warn("page failed", zap.String("url", pageURL), zap.String("stage", string(stage)), zap.Error(err))
}

// pace waits for the next navigation slot. The shared host limiter wins over
// the per-run limiter.
func (o *Orchestrator) pace(ctx context.Context, limiter *rate.Limiter, rawURL string) error {
	if o.hosts != nil {
		return o.hosts.Wait(ctx, rawURL)
	}
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func (o *Orchestrator) newLimiter() *rate.Limiter {
	if o.hosts != nil || o.cfg.NavigationQPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(o.cfg.NavigationQPS), 1)
}

func (o *Orchestrator) finish(result CrawlResult, r *run, status RunStatus, reason string) CrawlResult {
	result.Status = status
	result.Reason = reason
	result.FinishedAt = o.clock.Now()
	if r != nil {
		r.transition(StateFinalizing)
		result.Manifest = append(Manifest{}, r.manifest...)
		result.Failures = append([]LinkFailure{}, r.failures...)
		o.audit.RunFinished(result)
		r.logger.Info("crawl finished",
			zap.String("status", string(status)),
			zap.String("reason", reason),
			zap.Int("artifacts", len(result.Manifest)),
			zap.Int("failures", len(result.Failures)),
			zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
		)
	}
	metrics.ObserveRun(string(result.Device), string(status))
	return result
}
