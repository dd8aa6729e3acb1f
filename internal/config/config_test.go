package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, crawler.DefaultMaxLinks, cfg.Crawler.MaxLinks)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2*time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, int64(16384), cfg.Browser.MaxCaptureHeight)
	assert.Equal(t, "static/screenshots", cfg.Artifacts.Root)
	assert.True(t, cfg.Artifacts.NamespaceByRun)
	assert.Equal(t, "capture_runs", cfg.DB.RunsTable)
	assert.Empty(t, cfg.DB.DSN)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "screencrawler", cfg.Tracing.ServiceName)

	devices, err := cfg.Devices()
	require.NoError(t, err)
	assert.Equal(t, []crawler.DeviceName{crawler.DeviceDesktop, crawler.DeviceMobile}, devices)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
  level: debug
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  max_links: 10
  hard_max_links: 20
  navigation_qps: 2.5
  respect_robots: true
  devices: [mobile]
browser:
  settle_delay: 3s
  navigation_timeout: 1m
  max_sessions: 1
artifacts:
  root: /tmp/shots
  namespace_by_run: false
db:
  dsn: postgres://localhost/screens
pubsub:
  project_id: proj
  topic_name: runs
storage:
  gcs:
    bucket: shots-bucket
worker:
  count: 3
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.Equal(t, crawler.Config{DefaultMaxLinks: 10, HardMaxLinks: 20, NavigationQPS: 2.5}, cfg.CrawlerConfig())
	assert.True(t, cfg.Crawler.RespectRobots)
	assert.Equal(t, 3*time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, time.Minute, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 1, cfg.Browser.MaxSessions)
	assert.Equal(t, "/tmp/shots", cfg.Artifacts.Root)
	assert.False(t, cfg.Artifacts.NamespaceByRun)
	assert.Equal(t, "shots-bucket", cfg.Storage.GCS.Bucket)
	assert.Equal(t, 3, cfg.Worker.Count)

	devices, err := cfg.Devices()
	require.NoError(t, err)
	assert.Equal(t, []crawler.DeviceName{crawler.DeviceMobile}, devices)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCREENCRAWLER_SERVER_PORT", "7070")
	t.Setenv("SCREENCRAWLER_CRAWLER_MAX_LINKS", "5")
	t.Setenv("SCREENCRAWLER_BROWSER_HEADLESS", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Crawler.MaxLinks)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"max links", func(c *Config) { c.Crawler.MaxLinks = 900 }, "crawler.max_links"},
		{"devices", func(c *Config) { c.Crawler.Devices = []string{"tablet"} }, "crawler.devices"},
		{"settle", func(c *Config) { c.Browser.SettleDelay = time.Minute }, "browser.settle_delay"},
		{"root", func(c *Config) { c.Artifacts.Root = " " }, "artifacts.root"},
		{"domains", func(c *Config) { c.Domains.Path = "" }, "domains.path"},
		{"audit", func(c *Config) { c.Audit.Path = "" }, "audit.path"},
		{"pubsub", func(c *Config) { c.PubSub.ProjectID = "p" }, "pubsub.topic_name"},
		{"workers", func(c *Config) { c.Worker.Count = 0 }, "worker.count"},
		{"queue", func(c *Config) { c.Worker.QueueDepth = 0 }, "worker.queue_depth"},
		{"concurrency", func(c *Config) { c.Worker.Concurrency = -1 }, "worker.concurrency"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			cfg.Crawler.Devices = append([]string(nil), valid.Crawler.Devices...)
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.wantErr)
		})
	}
}
