// Package batch runs one crawl per (domain, device) pair with bounded
// concurrency.
package batch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// Crawler executes a single run. *crawler.Orchestrator satisfies it.
type Crawler interface {
	Run(ctx context.Context, req crawler.CrawlRequest) crawler.CrawlResult
}

// ResultFunc observes each result as soon as its run finishes. Returning an
// error cancels the runs that have not started yet.
type ResultFunc func(index int, result crawler.CrawlResult) error

// Runner fans a request list out over a Crawler.
type Runner struct {
	crawler     Crawler
	concurrency int
	logger      *zap.Logger
}

// NewRunner builds a Runner. A concurrency below one runs sequentially.
func NewRunner(c Crawler, concurrency int, logger *zap.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{crawler: c, concurrency: concurrency, logger: logger}
}

// Plan expands domains × devices into requests, domain-major. Blank and
// repeated domains are skipped; no devices means every built-in profile.
func Plan(domains []string, devices []crawler.DeviceName, maxLinks int) []crawler.CrawlRequest {
	if len(devices) == 0 {
		devices = crawler.Devices()
	}
	seen := make(map[string]struct{}, len(domains))
	reqs := make([]crawler.CrawlRequest, 0, len(domains)*len(devices))
	for _, domain := range domains {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		for _, device := range devices {
			reqs = append(reqs, crawler.CrawlRequest{SeedURL: domain, Device: device, MaxLinks: maxLinks})
		}
	}
	return reqs
}

// Run executes every request and returns results in request order. Runs that
// never started because the batch was aborted are reported as cancelled.
func (r *Runner) Run(ctx context.Context, reqs []crawler.CrawlRequest, onResult ResultFunc) ([]crawler.CrawlResult, error) {
	results := make([]crawler.CrawlResult, len(reqs))
	started := make([]bool, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			res := r.crawler.Run(gctx, req)
			results[i] = res
			r.logger.Debug("batch run finished",
				zap.Int("index", i),
				zap.String("seed", req.SeedURL),
				zap.String("device", string(req.Device)),
				zap.String("status", string(res.Status)),
			)
			if onResult != nil {
				if err := onResult(i, res); err != nil {
					return fmt.Errorf("handle result %d: %w", i, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	for i, req := range reqs {
		if started[i] {
			continue
		}
		results[i] = crawler.CrawlResult{
			SeedURL:  req.SeedURL,
			Device:   req.Device,
			Status:   crawler.StatusCancelled,
			Reason:   "batch aborted before start",
			Manifest: crawler.Manifest{},
			Failures: []crawler.LinkFailure{},
		}
	}
	return results, err
}
