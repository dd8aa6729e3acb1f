// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/artifact"
	"github.com/JakeFAU/site-screenshot-crawler/internal/audit"
	"github.com/JakeFAU/site-screenshot-crawler/internal/batch"
	"github.com/JakeFAU/site-screenshot-crawler/internal/browser"
	"github.com/JakeFAU/site-screenshot-crawler/internal/config"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/domains"
	"github.com/JakeFAU/site-screenshot-crawler/internal/hash/sha256"
	"github.com/JakeFAU/site-screenshot-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/site-screenshot-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/site-screenshot-crawler/internal/storage/gcs"
	"github.com/JakeFAU/site-screenshot-crawler/internal/storage/postgres"
	"github.com/JakeFAU/site-screenshot-crawler/internal/telemetry"
)

// App holds the shared services: artifact store, domain list, audit sink,
// browser launcher, orchestrator and the optional run recorder, publisher and
// artifact mirror.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	artifacts    *artifact.Store
	domains      *domains.Store
	audit        *audit.Sink
	launcher     *browser.Launcher
	orchestrator *crawler.Orchestrator
	recorder     crawler.RunRecorder
	publisher    crawler.Publisher
	mirror       artifact.Mirror

	closers []func() error
	closed  bool
}

// Option overrides a service during construction.
type Option func(*App)

// WithMirror replaces the configured artifact mirror.
func WithMirror(m artifact.Mirror) Option {
	return func(a *App) { a.mirror = m }
}

// WithPublisher replaces the configured run publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithRecorder replaces the configured run recorder.
func WithRecorder(r crawler.RunRecorder) Option {
	return func(a *App) { a.recorder = r }
}

// New builds every service described by cfg. It fails fast when an enabled
// external dependency cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	// Release whatever was opened before the failure.
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("initializing application services")

	if cfg.Tracing.Enabled {
		tp, traceErr := telemetry.InitTracerProvider(ctx, cfg.Tracing)
		if traceErr != nil {
			return nil, fmt.Errorf("init tracing: %w", traceErr)
		}
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
	}

	if a.mirror == nil && cfg.Storage.GCS.Bucket != "" {
		blobs, openErr := gcs.Open(ctx, cfg.Storage.GCS)
		if openErr != nil {
			return nil, fmt.Errorf("init gcs mirror: %w", openErr)
		}
		a.closers = append(a.closers, blobs.Close)
		a.mirror = blobs
		logger.Info("mirroring screenshots to gcs", zap.String("bucket", cfg.Storage.GCS.Bucket))
	}

	var storeOpts []artifact.Option
	if a.mirror != nil {
		storeOpts = append(storeOpts, artifact.WithMirror(a.mirror))
	}
	a.artifacts, err = artifact.New(cfg.Artifacts, logger, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}

	a.domains, err = domains.NewStore(cfg.Domains.Path, logger.Named("domains"))
	if err != nil {
		return nil, fmt.Errorf("init domain store: %w", err)
	}

	if cfg.Audit.Enabled {
		a.audit, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("init audit log: %w", err)
		}
		a.closers = append(a.closers, a.audit.Close)
	}

	if a.recorder == nil && cfg.DB.DSN != "" {
		runs, dbErr := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:             cfg.DB.DSN,
			RunsTable:       cfg.DB.RunsTable,
			ArtifactsTable:  cfg.DB.ArtifactsTable,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if dbErr != nil {
			return nil, fmt.Errorf("init run store: %w", dbErr)
		}
		a.closers = append(a.closers, func() error { runs.Close(); return nil })
		if cfg.DB.EnsureSchema {
			if dbErr := runs.EnsureSchema(ctx); dbErr != nil {
				return nil, dbErr
			}
		}
		a.recorder = runs
		logger.Info("recording runs in postgres", zap.String("table", cfg.DB.RunsTable))
	}

	if a.publisher == nil && cfg.PubSub.ProjectID != "" {
		pub, pubErr := pubsub.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if pubErr != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", pubErr)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
		logger.Info("publishing runs to pubsub", zap.String("topic", cfg.PubSub.TopicName))
	}

	a.launcher, err = browser.NewLauncher(cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("init browser launcher: %w", err)
	}

	orchOpts := []crawler.Option{
		crawler.WithRobotsPolicy(crawler.NewRobotsPolicy(
			cfg.Crawler.RespectRobots,
			cfg.Crawler.RobotsUserAgent,
			cfg.Crawler.RobotsTimeout,
			logger.Named("robots"),
		)),
		crawler.WithHasher(sha256.New()),
	}
	if cfg.Crawler.NavigationQPS > 0 {
		orchOpts = append(orchOpts, crawler.WithHostLimiter(ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.NavigationQPS})))
	}
	if a.audit != nil {
		orchOpts = append(orchOpts, crawler.WithAuditSink(a.audit))
	}
	a.orchestrator = crawler.NewOrchestrator(
		cfg.CrawlerConfig(),
		a.launcher,
		a.artifacts,
		logger.Named("orchestrator"),
		orchOpts...,
	)

	logger.Info("application services initialized")
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Artifacts returns the screenshot store.
func (a *App) Artifacts() *artifact.Store { return a.artifacts }

// Domains returns the bulk domain list.
func (a *App) Domains() *domains.Store { return a.domains }

// Audit returns the audit sink, or nil when auditing is disabled.
func (a *App) Audit() *audit.Sink { return a.audit }

// Orchestrator returns the crawl engine.
func (a *App) Orchestrator() *crawler.Orchestrator { return a.orchestrator }

// Recorder returns the run recorder, or nil when none is configured.
func (a *App) Recorder() crawler.RunRecorder { return a.recorder }

// Publisher returns the run publisher, or nil when none is configured.
func (a *App) Publisher() crawler.Publisher { return a.publisher }

// Runner returns a batch runner sized by worker.concurrency.
func (a *App) Runner() *batch.Runner {
	return batch.NewRunner(a.orchestrator, a.cfg.Worker.Concurrency, a.logger.Named("batch"))
}

// Ready reports whether local state is usable.
func (a *App) Ready(context.Context) error {
	if _, err := a.domains.List(); err != nil {
		return fmt.Errorf("domain list: %w", err)
	}
	return nil
}

// Close releases every service in reverse construction order. It is safe to
// call more than once.
func (a *App) Close() {
	if a == nil || a.closed {
		return
	}
	a.closed = true
	a.logger.Info("shutting down application services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
}
