// Package artifact owns the on-disk screenshot layout: domain labels, run ids,
// deterministic file names, lazy directory creation, and an optional remote
// mirror for every file written.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/metrics"
)

// RunIDLayout is the time layout run ids are rendered with.
const RunIDLayout = "2006-01-02_15-04-05.000000"

// Config captures the parameters for the artifact store.
type Config struct {
	// Root is the directory screenshots are written under.
	Root string `mapstructure:"root"`
	// NamespaceByRun adds a run id directory between domain and device.
	NamespaceByRun bool `mapstructure:"namespace_by_run"`
	// MirrorPrefix is prepended to object names uploaded to the mirror.
	MirrorPrefix string `mapstructure:"mirror_prefix"`
}

// Mirror receives a copy of every artifact written.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Store writes screenshots under a root directory.
type Store struct {
	root         string
	namespace    bool
	mirror       Mirror
	mirrorPrefix string
	now          func() time.Time
	logger       *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
}

var _ crawler.ArtifactStore = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithMirror uploads every written artifact to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithNow overrides the clock used for run ids.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates the root if needed and verifies that it is writable.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Store, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("artifacts.root is required")
	}
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create artifact root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat artifact root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("artifact root %q is not a directory", root)
	}

	probe, err := os.CreateTemp(root, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("artifact root is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("clean up writability probe: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		root:         filepath.Clean(root),
		namespace:    cfg.NamespaceByRun,
		mirrorPrefix: strings.Trim(cfg.MirrorPrefix, "/"),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.Named("artifact"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DomainLabel turns a host into a directory name: a leading "www." is
// stripped, ":" becomes "_", and the result is lowercased.
func DomainLabel(host string) string {
	label := strings.ToLower(strings.TrimSpace(host))
	label = strings.TrimPrefix(label, "www.")
	return strings.ReplaceAll(label, ":", "_")
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// DomainLabel implements crawler.ArtifactStore.
func (s *Store) DomainLabel(host string) string { return DomainLabel(host) }

// NewRunID returns a clock-derived id that is strictly greater than every id
// this store handed out before.
func (s *Store) NewRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(s.lastRun) {
		now = s.lastRun.Add(time.Microsecond)
	}
	s.lastRun = now
	return now.Format(RunIDLayout)
}

// RunDir returns the directory of one run relative to the root.
func (s *Store) RunDir(label, runID string, device crawler.DeviceName) string {
	if !s.namespace {
		return filepath.Join(label, string(device))
	}
	return filepath.Join(label, runID, string(device))
}

// PathFor names the artifact at index within a run. The seed is index 0.
func (s *Store) PathFor(label, runID string, device crawler.DeviceName, index int) string {
	return filepath.Join(s.RunDir(label, runID, device), FileName(device, index))
}

// FileName returns the base name for the artifact at index.
func FileName(device crawler.DeviceName, index int) string {
	if index <= 0 {
		return fmt.Sprintf("main_page_%s.png", device)
	}
	return fmt.Sprintf("screen_%d_%s.png", index, device)
}

// EnsureDirectory creates rel under the root if it is absent. Concurrent
// calls for overlapping paths all succeed.
func (s *Store) EnsureDirectory(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return nil
}

// Write stores data at rel, creating parent directories on demand, and
// returns the mirror URI when a mirror is configured. Mirror failures are
// logged and do not fail the write.
func (s *Store) Write(ctx context.Context, rel string, data []byte) (string, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("rename file: %w", err)
	}

	if s.mirror == nil {
		return "", nil
	}
	object := path.Join(s.mirrorPrefix, filepath.ToSlash(rel))
	uri, err := s.mirror.PutObject(ctx, object, "image/png", bytes.NewReader(data))
	metrics.ObserveMirrorUpload(err == nil)
	if err != nil {
		s.logger.Warn("mirror upload failed", zap.String("object", object), zap.Error(err))
		return "", nil
	}
	return uri, nil
}

// resolve maps rel to an absolute path and rejects escapes from the root.
func (s *Store) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative", rel)
	}
	full := filepath.Clean(filepath.Join(s.root, rel))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
