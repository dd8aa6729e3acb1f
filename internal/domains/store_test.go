package domains

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "domains.json"), nil)
	require.NoError(t, err)
	return s
}

func TestListMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	got, err := newTestStore(t).List()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAddDeduplicatesInOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	added, err := s.Add("b.com", " A.com ", "b.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.com", "a.com"}, added)

	added, err = s.Add("a.com", "c.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.com"}, added)

	got, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b.com", "a.com", "c.com"}, got)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"domains":["b.com","a.com","c.com"]}`, string(raw))
}

func TestAddRejectsInvalid(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Add("ok.com", "   ")
	require.Error(t, err)
	_, err = s.Add("http://")
	require.ErrorIs(t, err, crawler.ErrInvalidURL)

	got, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, got, "a rejected batch must not be partially applied")
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Add("a.com", "b.com", "c.com")
	require.NoError(t, err)

	require.NoError(t, s.Remove("B.com"))
	require.ErrorIs(t, s.Remove("b.com"), ErrNotFound)

	got, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "c.com"}, got)
}

func TestRenameKeepsPosition(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Add("a.com", "b.com", "c.com")
	require.NoError(t, err)

	require.NoError(t, s.Rename("b.com", "z.com"))
	require.NoError(t, s.Rename("z.com", "z.com"))
	require.ErrorIs(t, s.Rename("missing.com", "x.com"), ErrNotFound)
	require.ErrorIs(t, s.Rename("a.com", "c.com"), ErrExists)

	got, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "z.com", "c.com"}, got)
}

func TestLoadCleansExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "domains.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"domains":["a.com"," ","A.com","b.com"]}`), 0o600))
	s, err := NewStore(path, nil)
	require.NoError(t, err)

	got, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "b.com"}, got)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "domains.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"domains":`), 0o600))
	s, err := NewStore(path, nil)
	require.NoError(t, err)
	_, err = s.List()
	require.Error(t, err)
}

func TestConcurrentAdds(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	var wg sync.WaitGroup
	for _, d := range []string{"a.com", "b.com", "c.com", "d.com", "e.com"} {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			_, err := s.Add(domain)
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	got, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.com", "b.com", "c.com", "d.com", "e.com"}, got)
}

func TestNewStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewStore(" ", nil)
	require.Error(t, err)
}
