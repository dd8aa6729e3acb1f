// Package audit appends run lifecycle events to a JSON-lines file that
// operators can tail through the CLI and API.
package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// DefaultTail is the number of lines returned when a caller does not ask for
// a specific count.
const DefaultTail = 20

// Sink writes audit events through a dedicated zap core. It is safe for
// concurrent runs; events logged after Close are dropped.
type Sink struct {
	path   string
	file   *os.File
	logger *zap.Logger
	mu     sync.RWMutex
}

var _ crawler.AuditSink = (*Sink)(nil)

// Open creates (or appends to) the audit log at path.
func Open(path string) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zapcore.InfoLevel)
	return &Sink{path: path, file: f, logger: zap.New(core)}, nil
}

// Path returns the log file location.
func (s *Sink) Path() string { return s.path }

// RunStarted logs the accepted request.
func (s *Sink) RunStarted(runID string, req crawler.CrawlRequest) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return
	}
	s.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("seed_url", req.SeedURL),
		zap.String("device", string(req.Device)),
		zap.Int("max_links", req.MaxLinks),
	)
}

// LinkFailed logs a page that could not be navigated or captured.
func (s *Sink) LinkFailed(runID string, failure crawler.LinkFailure) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return
	}
	s.logger.Warn("page failed",
		zap.String("run_id", runID),
		zap.String("url", failure.URL),
		zap.String("stage", string(failure.Stage)),
		zap.String("error", failure.Error),
	)
}

// RunFinished logs the final outcome of a run.
func (s *Sink) RunFinished(result crawler.CrawlResult) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return
	}
	fields := []zap.Field{
		zap.String("run_id", result.RunID),
		zap.String("domain", result.DomainLabel),
		zap.String("device", string(result.Device)),
		zap.String("status", string(result.Status)),
		zap.Int("artifacts", len(result.Manifest)),
		zap.Int("failures", len(result.Failures)),
		zap.String("output_dir", result.OutputDir),
	}
	if result.Reason != "" {
		fields = append(fields, zap.String("reason", result.Reason))
	}
	if result.Status == crawler.StatusFailed {
		s.logger.Error("run finished", fields...)
		return
	}
	s.logger.Info("run finished", fields...)
}

// Tail returns the last n lines of the log, oldest first. n <= 0 means
// DefaultTail.
func (s *Sink) Tail(n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file != nil {
		_ = s.logger.Sync()
	}
	return TailFile(s.path, n)
}

// Close flushes and closes the log file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	_ = s.logger.Sync()
	err := s.file.Close()
	s.file = nil
	return err
}

// TailFile returns the last n lines of path. A missing file has no lines.
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultTail
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	ring := make([]string, 0, n)
	start := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		ring[start] = line
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return append(ring[start:], ring[:start]...), nil
}
