package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

type fakeDriver struct {
	mu sync.Mutex

	width, height int64
	sizeErr       error
	shotErr       error
	navErr        error
	navDelay      time.Duration
	htmlErrs      []error
	html          string

	viewports []crawler.Viewport
	htmlCalls int
}

func (d *fakeDriver) navigate(ctx context.Context, rawURL string) (string, error) {
	if d.navDelay > 0 {
		if err := sleepCtx(ctx, d.navDelay); err != nil {
			return "", err
		}
	}
	if d.navErr != nil {
		return "", d.navErr
	}
	return rawURL + "?final", nil
}

func (d *fakeDriver) contentSize(context.Context) (int64, int64, error) {
	return d.width, d.height, d.sizeErr
}

func (d *fakeDriver) setViewport(_ context.Context, vp crawler.Viewport, _ float64, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewports = append(d.viewports, vp)
	return nil
}

func (d *fakeDriver) screenshot(context.Context) ([]byte, error) {
	if d.shotErr != nil {
		return nil, d.shotErr
	}
	return []byte("\x89PNG"), nil
}

func (d *fakeDriver) outerHTML(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.htmlCalls++
	if len(d.htmlErrs) > 0 {
		err := d.htmlErrs[0]
		d.htmlErrs = d.htmlErrs[1:]
		return "", err
	}
	return d.html, nil
}

func newTestSession(t *testing.T, name crawler.DeviceName, drv *fakeDriver) *Session {
	t.Helper()
	profile, err := crawler.Profile(name)
	require.NoError(t, err)
	return &Session{
		cfg:      Config{LinkRetryDelay: time.Millisecond, MaxCaptureHeight: 10000},
		profile:  profile,
		driver:   drv,
		logger:   zap.NewNop(),
		tabCtx:   context.Background(),
		viewport: profile.Viewport(),
	}
}

func TestCaptureRestoresViewport(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{width: 2400, height: 5000}
	s := newTestSession(t, crawler.DeviceDesktop, drv)
	before := s.Viewport()

	data, err := s.Capture(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, before, s.Viewport())
	assert.Equal(t, []crawler.Viewport{{Width: 2400, Height: 5000}, before}, drv.viewports)
}

func TestCaptureRestoresViewportOnScreenshotError(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{width: 1920, height: 4000, shotErr: errors.New("target closed")}
	s := newTestSession(t, crawler.DeviceDesktop, drv)
	before := s.Viewport()

	_, err := s.Capture(context.Background())
	require.ErrorIs(t, err, crawler.ErrCapture)
	assert.Equal(t, before, s.Viewport())
	require.Len(t, drv.viewports, 2)
	assert.Equal(t, before, drv.viewports[1])
}

func TestCaptureMeasureErrorLeavesViewport(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{sizeErr: errors.New("no document")}
	s := newTestSession(t, crawler.DeviceMobile, drv)

	_, err := s.Capture(context.Background())
	require.ErrorIs(t, err, crawler.ErrCapture)
	assert.Empty(t, drv.viewports)
	assert.Equal(t, crawler.Viewport{Width: 375, Height: 812}, s.Viewport())
}

func TestFullPageViewport(t *testing.T) {
	t.Parallel()

	desktop, err := crawler.Profile(crawler.DeviceDesktop)
	require.NoError(t, err)
	mobile, err := crawler.Profile(crawler.DeviceMobile)
	require.NoError(t, err)

	tests := []struct {
		name          string
		profile       crawler.DeviceProfile
		width, height int64
		want          crawler.Viewport
	}{
		{"desktop tall page", desktop, 1200, 6000, crawler.Viewport{Width: 1920, Height: 6000}},
		{"desktop wide page", desktop, 2500, 3000, crawler.Viewport{Width: 2500, Height: 3000}},
		{"desktop short page", desktop, 800, 300, crawler.Viewport{Width: 1920, Height: 1080}},
		{"mobile keeps width", mobile, 1400, 9000, crawler.Viewport{Width: 375, Height: 9000}},
		{"height is capped", mobile, 375, 50000, crawler.Viewport{Width: 375, Height: 16384}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := fullPageViewport(tc.profile, tc.width, tc.height, defaultMaxCaptureHeight)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNavigateWrapsErrors(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	s := newTestSession(t, crawler.DeviceDesktop, drv)

	_, err := s.Navigate(context.Background(), "https://nowhere.invalid/")
	require.ErrorIs(t, err, crawler.ErrNavigation)
	assert.Contains(t, err.Error(), "nowhere.invalid")

	drv.navErr = nil
	page, err := s.Navigate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/?final", page.FinalURL)
}

func TestNavigateSettleIsOutsideNavigationTimeout(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{navDelay: 60 * time.Millisecond}
	s := newTestSession(t, crawler.DeviceDesktop, drv)
	s.cfg.NavigationTimeout = 100 * time.Millisecond
	s.cfg.SettleDelay = 100 * time.Millisecond

	page, err := s.Navigate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, page.Duration, 160*time.Millisecond)

	drv.navDelay = 200 * time.Millisecond
	_, err = s.Navigate(context.Background(), "https://example.com/slow")
	require.ErrorIs(t, err, crawler.ErrNavigation)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractLinksRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{
		htmlErrs: []error{errors.New("node not found"), errors.New("node not found")},
		html:     `<html><body><a href="/a">A</a><a>none</a><a href="https://b.com/">B</a></body></html>`,
	}
	s := newTestSession(t, crawler.DeviceDesktop, drv)

	hrefs, err := s.ExtractLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "https://b.com/"}, hrefs)
	assert.Equal(t, 3, drv.htmlCalls)
}

func TestExtractLinksGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	fail := errors.New("execution context destroyed")
	drv := &fakeDriver{htmlErrs: []error{fail, fail, fail, fail}}
	s := newTestSession(t, crawler.DeviceDesktop, drv)

	hrefs, err := s.ExtractLinks(context.Background())
	require.Error(t, err)
	assert.Nil(t, hrefs)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, defaultLinkAttempts, drv.htmlCalls)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := newTestSession(t, crawler.DeviceDesktop, &fakeDriver{})
	s.shutdown = func() error {
		calls.Add(1)
		return nil
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), calls.Load())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero value", Config{}, ""},
		{"settle within range", Config{SettleDelay: 10 * time.Second}, ""},
		{"settle too long", Config{SettleDelay: 11 * time.Second}, "browser.settle_delay"},
		{"negative resize", Config{ResizeDelay: -time.Second}, "browser.resize_delay"},
		{"negative sessions", Config{MaxSessions: -1}, "browser.max_sessions"},
		{"negative height", Config{MaxCaptureHeight: -1}, "browser.max_capture_height"},
		{"negative attempts", Config{LinkAttempts: -2}, "browser.link_attempts"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3, 100*time.Millisecond)
	assert.True(t, p.shouldRetry(errors.New("x"), 1))
	assert.True(t, p.shouldRetry(errors.New("x"), 2))
	assert.False(t, p.shouldRetry(errors.New("x"), 3))
	assert.False(t, p.shouldRetry(context.Canceled, 1))
	assert.False(t, p.shouldRetry(nil, 1))

	for attempt := 1; attempt <= 6; attempt++ {
		wait := p.backoff(attempt)
		assert.GreaterOrEqual(t, wait, 50*time.Millisecond)
		assert.LessOrEqual(t, wait, 800*time.Millisecond)
	}
}

func TestNewLauncherRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewLauncher(Config{SettleDelay: time.Minute}, nil)
	require.Error(t, err)

	l, err := NewLauncher(Config{MaxSessions: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cap(l.limiter))
}
