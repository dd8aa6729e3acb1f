package crawler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"
)

type fakeSession struct {
	mu          sync.Mutex
	links       []string
	linksErr    error
	navFailures map[string]error
	capFailures map[string]error
	onNavigate  func(call int, rawURL string)
	panicOn     string

	current    string
	navigated  []string
	closeCalls int
}

func (s *fakeSession) Navigate(_ context.Context, rawURL string) (Page, error) {
	s.mu.Lock()
	s.navigated = append(s.navigated, rawURL)
	call := len(s.navigated)
	hook := s.onNavigate
	s.mu.Unlock()

	if hook != nil {
		hook(call, rawURL)
	}
	if rawURL == s.panicOn {
		panic("renderer crashed")
	}
	if err := s.navFailures[rawURL]; err != nil {
		return Page{URL: rawURL}, fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	s.mu.Lock()
	s.current = rawURL
	s.mu.Unlock()
	return Page{URL: rawURL, FinalURL: rawURL, Duration: time.Millisecond}, nil
}

func (s *fakeSession) Capture(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.capFailures[s.current]; err != nil {
		return nil, err
	}
	return []byte("png:" + s.current), nil
}

func (s *fakeSession) ExtractLinks(context.Context) ([]string, error) {
	return s.links, s.linksErr
}

func (s *fakeSession) Viewport() Viewport { return Viewport{Width: 1920, Height: 1080} }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *fakeSession) navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

type fakeLauncher struct {
	session *fakeSession
	err     error
	// slots, when set, must have room before a session opens.
	slots   chan struct{}
	waiting chan struct{}
	opened  []DeviceProfile
}

func (l *fakeLauncher) Open(ctx context.Context, profile DeviceProfile) (Session, error) {
	if l.slots != nil {
		if l.waiting != nil {
			close(l.waiting)
		}
		select {
		case l.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: slot wait: %w", ErrSessionStart, ctx.Err())
		}
	}
	l.opened = append(l.opened, profile)
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type memoryStore struct {
	mu       sync.Mutex
	runs     int
	writeErr error
	files    map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{files: make(map[string][]byte)}
}

func (m *memoryStore) Root() string                   { return "/screens" }
func (m *memoryStore) DomainLabel(host string) string { return host }

func (m *memoryStore) NewRunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	return fmt.Sprintf("run-%d", m.runs)
}

func (m *memoryStore) RunDir(label, runID string, device DeviceName) string {
	return path.Join(label, runID, string(device))
}

func (m *memoryStore) PathFor(label, runID string, device DeviceName, index int) string {
	name := fmt.Sprintf("screen_%d_%s.png", index, device)
	if index == 0 {
		name = fmt.Sprintf("main_page_%s.png", device)
	}
	return path.Join(m.RunDir(label, runID, device), name)
}

func (m *memoryStore) Write(_ context.Context, rel string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return "", m.writeErr
	}
	m.files[rel] = data
	return "", nil
}

type recordingAudit struct {
	mu       sync.Mutex
	started  []string
	failures []LinkFailure
	finished []CrawlResult
}

func (a *recordingAudit) RunStarted(runID string, _ CrawlRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = append(a.started, runID)
}

func (a *recordingAudit) LinkFailed(_ string, failure LinkFailure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, failure)
}

func (a *recordingAudit) RunFinished(result CrawlResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finished = append(a.finished, result)
}

type denyPaths map[string]bool

func (d denyPaths) Allowed(_ context.Context, rawURL string) bool { return !d[rawURL] }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errBoom = errors.New("boom")
