package browser

import (
	"fmt"
	"time"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultMaxCaptureHeight  = 16384
	defaultLinkAttempts      = 3
	maxSettleDelay           = 10 * time.Second
)

// Config controls browser launch and page handling.
type Config struct {
	// ExecPath overrides the Chrome binary. Empty uses chromedp's lookup.
	ExecPath string `mapstructure:"exec_path"`
	// Headless runs Chrome without a window.
	Headless bool `mapstructure:"headless"`
	// MaxSessions bounds concurrently open sessions. Zero means unbounded.
	MaxSessions int `mapstructure:"max_sessions"`
	// NavigationTimeout bounds a single navigation including the ready wait.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	// SettleDelay is slept after the body is ready so late scripts can render.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// ResizeDelay is slept after the viewport grows and before the screenshot.
	ResizeDelay time.Duration `mapstructure:"resize_delay"`
	// CaptureTimeout bounds measure, resize and screenshot together.
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
	// MaxCaptureHeight caps the full-page viewport height in CSS pixels.
	MaxCaptureHeight int64 `mapstructure:"max_capture_height"`
	// LinkAttempts is how many times link extraction is tried.
	LinkAttempts int `mapstructure:"link_attempts"`
	// LinkRetryDelay is the base backoff between link extraction attempts.
	LinkRetryDelay time.Duration `mapstructure:"link_retry_delay"`
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.MaxSessions < 0 {
		return fmt.Errorf("browser.max_sessions must be >= 0")
	}
	if c.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must be >= 0")
	}
	if c.SettleDelay < 0 || c.SettleDelay > maxSettleDelay {
		return fmt.Errorf("browser.settle_delay must be between 0 and %s", maxSettleDelay)
	}
	if c.ResizeDelay < 0 || c.ResizeDelay > maxSettleDelay {
		return fmt.Errorf("browser.resize_delay must be between 0 and %s", maxSettleDelay)
	}
	if c.CaptureTimeout < 0 {
		return fmt.Errorf("browser.capture_timeout must be >= 0")
	}
	if c.MaxCaptureHeight < 0 {
		return fmt.Errorf("browser.max_capture_height must be >= 0")
	}
	if c.LinkAttempts < 0 {
		return fmt.Errorf("browser.link_attempts must be >= 0")
	}
	if c.LinkRetryDelay < 0 {
		return fmt.Errorf("browser.link_retry_delay must be >= 0")
	}
	return nil
}

func (c Config) navTimeout() time.Duration {
	if c.NavigationTimeout > 0 {
		return c.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (c Config) captureTimeout() time.Duration {
	if c.CaptureTimeout > 0 {
		return c.CaptureTimeout
	}
	return c.navTimeout()
}

func (c Config) maxCaptureHeight() int64 {
	if c.MaxCaptureHeight > 0 {
		return c.MaxCaptureHeight
	}
	return defaultMaxCaptureHeight
}

func (c Config) linkAttempts() int {
	if c.LinkAttempts > 0 {
		return c.LinkAttempts
	}
	return defaultLinkAttempts
}
