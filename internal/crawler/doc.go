// Package crawler implements the screenshot crawl engine: URL normalization,
// same-origin link discovery, and the orchestrator that drives one browser
// session per run and records the resulting manifest.
package crawler
