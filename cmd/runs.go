package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/app"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/telemetry"
)

// runOptions are the flags shared by crawl and bulk.
type runOptions struct {
	devices  []string
	maxLinks int
	asJSON   bool
}

func (o runOptions) resolveDevices(a *app.App) ([]crawler.DeviceName, error) {
	if len(o.devices) == 0 {
		return a.Config().Devices()
	}
	return crawler.ParseDevices(o.devices)
}

func (o runOptions) validate(hardMax int) error {
	if o.maxLinks < 0 {
		return fmt.Errorf("--max-links must be >= 0")
	}
	if hardMax > 0 && o.maxLinks > hardMax {
		return fmt.Errorf("--max-links must be <= %d", hardMax)
	}
	return nil
}

// executeRuns crawls reqs with the app's batch runner, sending each finished
// run to the recorder and publisher when they are configured, and reports the
// results to out.
func executeRuns(ctx context.Context, a *app.App, reqs []crawler.CrawlRequest, out io.Writer, asJSON bool) error {
	ctx, span := telemetry.Tracer("cli").Start(ctx, "capture.batch",
		trace.WithAttributes(attribute.Int("batch.runs", len(reqs))))
	defer span.End()

	logger := a.Logger()
	topic := a.Config().PubSub.TopicName
	var mu sync.Mutex
	results, err := a.Runner().Run(ctx, reqs, func(_ int, result crawler.CrawlResult) error {
		storeCtx := context.WithoutCancel(ctx)
		if rec := a.Recorder(); rec != nil {
			if err := rec.RecordRun(storeCtx, "", result); err != nil {
				logger.Warn("run record failed", zap.String("run_id", result.RunID), zap.Error(err))
			}
		}
		if pub := a.Publisher(); pub != nil && topic != "" {
			if _, err := pub.Publish(storeCtx, topic, crawler.NewRunEvent("", result)); err != nil {
				logger.Warn("run publish failed", zap.String("run_id", result.RunID), zap.Error(err))
			}
		}
		if !asJSON {
			mu.Lock()
			printResult(out, result)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
	}
	return summarize(results)
}

func printResult(out io.Writer, result crawler.CrawlResult) {
	line := fmt.Sprintf("%-9s %-7s %s  %d captured, %d failed  %s",
		result.Status, result.Device, result.SeedURL,
		len(result.Manifest), len(result.Failures), result.OutputDir)
	if result.Reason != "" {
		line += "  (" + result.Reason + ")"
	}
	fmt.Fprintln(out, strings.TrimRight(line, " "))
}

// summarize fails the command when no run completed.
func summarize(results []crawler.CrawlResult) error {
	if len(results) == 0 {
		return nil
	}
	var completed, cancelled int
	for _, r := range results {
		switch r.Status {
		case crawler.StatusCompleted:
			completed++
		case crawler.StatusCancelled:
			cancelled++
		}
	}
	switch {
	case completed > 0:
		return nil
	case cancelled > 0:
		return fmt.Errorf("crawl cancelled")
	default:
		return fmt.Errorf("all %d runs failed", len(results))
	}
}
