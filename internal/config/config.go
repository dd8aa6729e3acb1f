// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/site-screenshot-crawler/internal/artifact"
	"github.com/JakeFAU/site-screenshot-crawler/internal/browser"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/logging"
	"github.com/JakeFAU/site-screenshot-crawler/internal/storage/gcs"
	"github.com/JakeFAU/site-screenshot-crawler/internal/telemetry"
)

// EnvPrefix namespaces environment overrides, e.g. SCREENCRAWLER_SERVER_PORT.
const EnvPrefix = "SCREENCRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   logging.Config   `mapstructure:"logging"`
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Crawler   CrawlerConfig    `mapstructure:"crawler"`
	Browser   browser.Config   `mapstructure:"browser"`
	Artifacts artifact.Config  `mapstructure:"artifacts"`
	Domains   DomainsConfig    `mapstructure:"domains"`
	Audit     AuditConfig      `mapstructure:"audit"`
	DB        DBConfig         `mapstructure:"db"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Worker    WorkerConfig     `mapstructure:"worker"`
	Tracing   telemetry.Config `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs per-run behavior.
type CrawlerConfig struct {
	MaxLinks        int           `mapstructure:"max_links"`
	HardMaxLinks    int           `mapstructure:"hard_max_links"`
	NavigationQPS   float64       `mapstructure:"navigation_qps"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
	RobotsUserAgent string        `mapstructure:"robots_user_agent"`
	RobotsTimeout   time.Duration `mapstructure:"robots_timeout"`
	Devices         []string      `mapstructure:"devices"`
}

// DomainsConfig locates the domain list file.
type DomainsConfig struct {
	Path string `mapstructure:"path"`
}

// AuditConfig controls the audit log.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DBConfig controls access to the relational database. An empty DSN disables
// run recording.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	RunsTable       string        `mapstructure:"runs_table"`
	ArtifactsTable  string        `mapstructure:"artifacts_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StorageConfig configures the optional artifact mirror.
type StorageConfig struct {
	GCS gcs.Config `mapstructure:"gcs"`
}

// WorkerConfig sizes the API job pipeline and bulk runs.
type WorkerConfig struct {
	Count       int `mapstructure:"count"`
	QueueDepth  int `mapstructure:"queue_depth"`
	Concurrency int `mapstructure:"concurrency"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.max_links", crawler.DefaultMaxLinks)
	v.SetDefault("crawler.hard_max_links", 500)
	v.SetDefault("crawler.navigation_qps", 0)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.robots_user_agent", "site-screenshot-crawler/1.0")
	v.SetDefault("crawler.robots_timeout", 10*time.Second)
	v.SetDefault("crawler.devices", []string{"all"})
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_sessions", 4)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.settle_delay", 2*time.Second)
	v.SetDefault("browser.resize_delay", 500*time.Millisecond)
	v.SetDefault("browser.capture_timeout", 60*time.Second)
	v.SetDefault("browser.max_capture_height", 16384)
	v.SetDefault("browser.link_attempts", 3)
	v.SetDefault("browser.link_retry_delay", 500*time.Millisecond)
	v.SetDefault("artifacts.root", "static/screenshots")
	v.SetDefault("artifacts.namespace_by_run", true)
	v.SetDefault("artifacts.mirror_prefix", "screenshots")
	v.SetDefault("domains.path", "data/domains.json")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "logs/audit.log")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.runs_table", "capture_runs")
	v.SetDefault("db.artifacts_table", "capture_artifacts")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.cache_control", "")
	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.service_name", "screencrawler")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.CrawlerConfig().Validate(); err != nil {
		return err
	}
	if _, err := c.Devices(); err != nil {
		return fmt.Errorf("crawler.devices: %w", err)
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Artifacts.Root) == "" {
		return fmt.Errorf("artifacts.root is required")
	}
	if strings.TrimSpace(c.Domains.Path) == "" {
		return fmt.Errorf("domains.path is required")
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		return fmt.Errorf("audit.path must be set when audit is enabled")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}

// CrawlerConfig converts the crawler section into orchestrator settings.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		DefaultMaxLinks: c.Crawler.MaxLinks,
		HardMaxLinks:    c.Crawler.HardMaxLinks,
		NavigationQPS:   c.Crawler.NavigationQPS,
	}
}

// Devices resolves crawler.devices into profile names.
func (c Config) Devices() ([]crawler.DeviceName, error) {
	names := c.Crawler.Devices
	if len(names) == 0 {
		names = []string{"all"}
	}
	return crawler.ParseDevices(names)
}
