package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/app"
	"github.com/JakeFAU/site-screenshot-crawler/internal/config"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

type testEnv struct {
	dir        string
	configPath string
	cfg        config.Config
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "screenshots")
	domainsPath := filepath.Join(dir, "domains.json")
	auditPath := filepath.Join(dir, "audit.log")
	yaml := fmt.Sprintf(`logging:
  level: error
artifacts:
  root: %q
domains:
  path: %q
audit:
  enabled: true
  path: %q
`, root, domainsPath, auditPath)
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	return testEnv{dir: dir, configPath: configPath, cfg: cfg}
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append(args, "--config", e.configPath), &stdout, &stderr)
	return stdout.String(), err
}

func TestDomainsCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "domains", "add", "Example.com", "golang.org", "example.com")
	require.NoError(t, err)
	assert.Equal(t, "added example.com\nadded golang.org\n", out)

	out, err = env.run(t, "domains", "add", "golang.org")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing added")

	_, err = env.run(t, "domains", "rename", "golang.org", "go.dev")
	require.NoError(t, err)

	out, err = env.run(t, "domains", "list")
	require.NoError(t, err)
	assert.Equal(t, "example.com\ngo.dev\n", out)

	_, err = env.run(t, "domains", "remove", "example.com")
	require.NoError(t, err)
	out, err = env.run(t, "domains", "list")
	require.NoError(t, err)
	assert.Equal(t, "go.dev\n", out)

	_, err = env.run(t, "domains", "remove", "missing.org")
	require.Error(t, err)
}

func TestGalleryCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "gallery")
	require.NoError(t, err)
	assert.Equal(t, "no screenshots found\n", out)

	shot := filepath.Join(env.cfg.Artifacts.Root, "example.com", "run-1", "mobile", "main_page_mobile.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(shot), 0o755))
	require.NoError(t, os.WriteFile(shot, []byte("png"), 0o600))

	out, err = env.run(t, "gallery", "--device", "mobile")
	require.NoError(t, err)
	assert.Contains(t, out, "example.com/run-1/mobile/main_page_mobile.png")

	out, err = env.run(t, "gallery", "--device", "desktop")
	require.NoError(t, err)
	assert.Equal(t, "no screenshots found\n", out)

	_, err = env.run(t, "gallery", "--device", "tablet")
	require.Error(t, err)

	_, err = env.run(t, "gallery", "--date", "17-10-2026")
	require.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestLogsCommand(t *testing.T) {
	env := newTestEnv(t)
	lines := []string{`{"msg":"one"}`, `{"msg":"two"}`, `{"msg":"three"}`}
	require.NoError(t, os.WriteFile(env.cfg.Audit.Path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	out, err := env.run(t, "logs", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "{\"msg\":\"two\"}\n{\"msg\":\"three\"}\n", out)

	_, err = env.run(t, "logs", "--lines", "0")
	require.ErrorContains(t, err, "must be positive")
}

func TestRunFlagValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "crawl")
	require.Error(t, err)

	_, err = env.run(t, "crawl", "example.com", "--max-links", "-1")
	require.ErrorContains(t, err, "--max-links must be >= 0")

	_, err = env.run(t, "crawl", "example.com", "--max-links", "100000")
	require.ErrorContains(t, err, "--max-links must be <=")

	_, err = env.run(t, "crawl", "example.com", "--label", "../outside")
	require.ErrorContains(t, err, "--label: invalid domain label")

	_, err = env.run(t, "crawl", "example.com", "--device", "watch")
	require.ErrorContains(t, err, "unknown device profile")

	_, err = env.run(t, "bulk")
	require.ErrorContains(t, err, "no domains to capture")
}

func TestRunReportsAppInitFailure(t *testing.T) {
	env := newTestEnv(t)
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config, *zap.Logger) (*app.App, error) {
		return nil, errors.New("boom")
	}

	_, err := env.run(t, "domains", "list")
	require.ErrorContains(t, err, "failed to initialize application services: boom")
}

func TestRunRejectsBadConfig(t *testing.T) {
	env := newTestEnv(t)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"domains", "list", "--config", filepath.Join(env.dir, "missing.yaml")}, &stdout, &stderr)
	require.ErrorContains(t, err, "load config")
}

func TestSummarize(t *testing.T) {
	assert.NoError(t, summarize(nil))
	assert.NoError(t, summarize([]crawler.CrawlResult{
		{Status: crawler.StatusFailed},
		{Status: crawler.StatusCompleted},
	}))
	assert.ErrorContains(t, summarize([]crawler.CrawlResult{
		{Status: crawler.StatusFailed},
		{Status: crawler.StatusCancelled},
	}), "cancelled")
	assert.ErrorContains(t, summarize([]crawler.CrawlResult{
		{Status: crawler.StatusFailed},
		{Status: crawler.StatusFailed},
	}), "all 2 runs failed")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, crawler.CrawlResult{
		Status:    crawler.StatusFailed,
		Device:    crawler.DeviceDesktop,
		SeedURL:   "http://example.com/",
		OutputDir: "out/example.com/desktop",
		Reason:    "navigate seed: timeout",
	})
	assert.Equal(t,
		"failed    desktop http://example.com/  0 captured, 0 failed  out/example.com/desktop  (navigate seed: timeout)\n",
		buf.String())
}

func TestListenPort(t *testing.T) {
	t.Setenv("PORT", "")
	assert.Equal(t, 8080, listenPort(8080))
	t.Setenv("PORT", "9090")
	assert.Equal(t, 9090, listenPort(8080))
	t.Setenv("PORT", "nope")
	assert.Equal(t, 8080, listenPort(8080))
}

func TestServiceAcceptsCaptureJobs(t *testing.T) {
	env := newTestEnv(t)
	a, err := app.New(context.Background(), env.cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	svc := newService(a)

	rec := httptest.NewRecorder()
	svc.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/captures", strings.NewReader(`{"domain":"example.com","devices":["desktop"]}`))
	req.Header.Set("Content-Type", "application/json")
	svc.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 1, svc.queue.Len())

	rec = httptest.NewRecorder()
	svc.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/logs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t)
	a, err := app.New(context.Background(), env.cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, 0) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
