package crawler

import (
	"fmt"
)

// Config captures the orchestrator knobs that apply to every run.
// It is decoupled from Viper so the engine can be configured in tests directly.
type Config struct {
	// DefaultMaxLinks applies when a request does not set MaxLinks.
	DefaultMaxLinks int
	// HardMaxLinks bounds any requested MaxLinks. Zero disables the bound.
	HardMaxLinks int
	// NavigationQPS paces navigations within a run. Zero disables pacing.
	NavigationQPS float64
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.DefaultMaxLinks < 0 {
		return fmt.Errorf("crawler.max_links must be >= 0")
	}
	if c.HardMaxLinks < 0 {
		return fmt.Errorf("crawler.hard_max_links must be >= 0")
	}
	if c.HardMaxLinks > 0 && c.DefaultMaxLinks > c.HardMaxLinks {
		return fmt.Errorf("crawler.max_links must be <= crawler.hard_max_links")
	}
	if c.NavigationQPS < 0 {
		return fmt.Errorf("crawler.navigation_qps must be >= 0")
	}
	return nil
}

func (c Config) maxLinks(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = c.DefaultMaxLinks
	}
	if limit <= 0 {
		limit = DefaultMaxLinks
	}
	if c.HardMaxLinks > 0 && limit > c.HardMaxLinks {
		limit = c.HardMaxLinks
	}
	return limit
}
