// Package domains persists the list of sites that bulk captures visit.
package domains

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

var (
	// ErrNotFound is returned when a domain is not in the list.
	ErrNotFound = errors.New("domain not found")
	// ErrExists is returned when a rename would create a duplicate.
	ErrExists = errors.New("domain already listed")
)

type document struct {
	Domains []string `json:"domains"`
}

// Store is a JSON file of the form {"domains": [...]}. Order is preserved and
// entries are unique.
type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore returns a Store backed by path. The file is created on first write.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("domains.path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// List returns the stored domains.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add appends every domain not already listed and returns the ones added.
func (s *Store) Add(domains ...string) ([]string, error) {
	cleaned := make([]string, 0, len(domains))
	for _, d := range domains {
		c, err := clean(d)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	var added []string
	for _, d := range cleaned {
		if indexOf(list, d) >= 0 {
			continue
		}
		list = append(list, d)
		added = append(added, d)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := s.save(list); err != nil {
		return nil, err
	}
	s.logger.Info("domains added", zap.Strings("domains", added))
	return added, nil
}

// Remove deletes domain from the list.
func (s *Store) Remove(domain string) error {
	d, err := clean(domain)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(list, d)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, d)
	}
	list = append(list[:i], list[i+1:]...)
	if err := s.save(list); err != nil {
		return err
	}
	s.logger.Info("domain removed", zap.String("domain", d))
	return nil
}

// Rename replaces oldName with newName in place.
func (s *Store) Rename(oldName, newName string) error {
	from, err := clean(oldName)
	if err != nil {
		return err
	}
	to, err := clean(newName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(list, from)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if from == to {
		return nil
	}
	if indexOf(list, to) >= 0 {
		return fmt.Errorf("%w: %s", ErrExists, to)
	}
	list[i] = to
	if err := s.save(list); err != nil {
		return err
	}
	s.logger.Info("domain renamed", zap.String("from", from), zap.String("to", to))
	return nil
}

func (s *Store) load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read domains file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []string{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode domains file %s: %w", s.path, err)
	}
	// Older files may carry duplicates or blanks.
	out := make([]string, 0, len(doc.Domains))
	for _, d := range doc.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || indexOf(out, d) >= 0 {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) save(list []string) error {
	data, err := json.MarshalIndent(document{Domains: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode domains: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create domains dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".domains-*.json")
	if err != nil {
		return fmt.Errorf("create temp domains file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write domains file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close domains file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace domains file: %w", err)
	}
	return nil
}

// clean trims and lowercases d and checks that it can seed a crawl.
func clean(d string) (string, error) {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return "", fmt.Errorf("domain must not be empty")
	}
	if _, err := crawler.NormalizeURL(d); err != nil {
		return "", fmt.Errorf("domain %q: %w", d, err)
	}
	return d, nil
}

func indexOf(list []string, d string) int {
	for i, v := range list {
		if v == d {
			return i
		}
	}
	return -1
}
