package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// Session is one Chrome process bound to one device profile.
// It implements crawler.Session and is not safe for concurrent navigation.
type Session struct {
	cfg     Config
	profile crawler.DeviceProfile
	driver  driver
	logger  *zap.Logger

	// tabCtx is the chromedp context every browser call derives from.
	tabCtx context.Context
	// shutdown releases the tab, browser, allocator and session slot.
	shutdown func() error

	mu       sync.Mutex
	viewport crawler.Viewport

	closeOnce sync.Once
	closeErr  error
}

var _ crawler.Session = (*Session)(nil)

// Navigate loads rawURL, waits for the body to be ready and sleeps the settle
// delay. The navigation timeout covers the load and ready wait only. There are
// no retries.
func (s *Session) Navigate(ctx context.Context, rawURL string) (crawler.Page, error) {
	start := time.Now()
	opCtx, cancel := s.opContext(ctx, s.cfg.navTimeout())
	finalURL, err := s.driver.navigate(opCtx, rawURL)
	cancel()
	if err != nil {
		return crawler.Page{URL: rawURL, Duration: time.Since(start)},
			fmt.Errorf("%w: %s: %w", crawler.ErrNavigation, rawURL, err)
	}
	if err := sleepCtx(ctx, s.cfg.SettleDelay); err != nil {
		return crawler.Page{URL: rawURL, Duration: time.Since(start)},
			fmt.Errorf("%w: %s: settle: %w", crawler.ErrNavigation, rawURL, err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	return crawler.Page{URL: rawURL, FinalURL: finalURL, Duration: time.Since(start)}, nil
}

// Capture takes a PNG of the current page. Full-height profiles grow the
// viewport to the document size first; the viewport in effect before the call
// is restored on every return path.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opCtx, cancel := s.opContext(ctx, s.cfg.captureTimeout())
	defer cancel()

	if !s.profile.FullHeight {
		data, err := s.driver.screenshot(opCtx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrCapture, err)
		}
		return data, nil
	}

	before := s.viewport
	width, height, err := s.driver.contentSize(opCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrCapture, err)
	}
	target := fullPageViewport(s.profile, width, height, s.cfg.maxCaptureHeight())

	defer func() {
		// opCtx may already be expired; restore gets its own budget.
		restoreCtx, restoreCancel := s.opContext(context.Background(), s.cfg.captureTimeout())
		defer restoreCancel()
		if rerr := s.applyViewport(restoreCtx, before); rerr != nil {
			s.logger.Warn("viewport restore failed", zap.Error(rerr),
				zap.Int64("width", before.Width), zap.Int64("height", before.Height))
		}
	}()

	if target != before {
		if err := s.applyViewport(opCtx, target); err != nil {
			return nil, fmt.Errorf("%w: resize: %w", crawler.ErrCapture, err)
		}
		if err := sleepCtx(opCtx, s.cfg.ResizeDelay); err != nil {
			return nil, fmt.Errorf("%w: resize settle: %w", crawler.ErrCapture, err)
		}
	}
	data, err := s.driver.screenshot(opCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrCapture, err)
	}
	return data, nil
}

// ExtractLinks returns every anchor href on the current page. Reading the DOM
// is retried with backoff; after the final attempt the error is returned and
// the caller treats the page as having no links.
func (s *Session) ExtractLinks(ctx context.Context) ([]string, error) {
	policy := newRetryPolicy(s.cfg.linkAttempts(), s.cfg.LinkRetryDelay)
	var lastErr error
	for attempt := 1; ; attempt++ {
		hrefs, err := s.readLinks(ctx)
		if err == nil {
			return hrefs, nil
		}
		lastErr = err
		if !policy.shouldRetry(err, attempt) {
			return nil, fmt.Errorf("extract links after %d attempt(s): %w", attempt, lastErr)
		}
		wait := policy.backoff(attempt)
		s.logger.Debug("link extraction failed; retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, fmt.Errorf("extract links: %w", lastErr)
		}
	}
}

func (s *Session) readLinks(ctx context.Context) ([]string, error) {
	opCtx, cancel := s.opContext(ctx, s.cfg.navTimeout())
	defer cancel()
	html, err := s.driver.outerHTML(opCtx)
	if err != nil {
		return nil, err
	}
	return parseHrefs(html)
}

// Viewport reports the viewport currently applied to the tab.
func (s *Session) Viewport() crawler.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Close terminates the browser. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.shutdown != nil {
			s.closeErr = s.shutdown()
		}
		s.logger.Debug("browser session closed")
	})
	return s.closeErr
}

// applyViewport must be called with mu held or before the session is shared.
func (s *Session) applyViewport(ctx context.Context, vp crawler.Viewport) error {
	if err := s.driver.setViewport(ctx, vp, s.profile.Scale, s.profile.Mobile); err != nil {
		return err
	}
	s.viewport = vp
	return nil
}

// opContext derives a bounded browser context from the tab that is also
// cancelled when ctx is.
func (s *Session) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// fullPageViewport sizes the viewport to the measured document. Mobile keeps
// the profile width; desktop widens to fit horizontal overflow. Height is
// clamped to [profile height, maxHeight].
func fullPageViewport(profile crawler.DeviceProfile, contentWidth, contentHeight, maxHeight int64) crawler.Viewport {
	width := profile.Width
	if !profile.Mobile && contentWidth > width {
		width = contentWidth
	}
	height := contentHeight
	if height < profile.Height {
		height = profile.Height
	}
	if maxHeight > 0 && height > maxHeight {
		height = maxHeight
	}
	return crawler.Viewport{Width: width, Height: height}
}
