package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRobotsPolicy_DisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	policy := NewRobotsPolicy(false, "screencrawler-test", time.Second, zap.NewNop())
	require.True(t, policy.Allowed(context.Background(), "https://example.com/private"))
}

func TestRobotsPolicy_HonorsDisallowAndCaches(t *testing.T) {
	t.Parallel()

	var robotsHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			fmt.Fprintln(w, "User-agent: *\nDisallow: /private")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(true, "screencrawler-test", time.Second, zap.NewNop())
	ctx := context.Background()

	require.True(t, policy.Allowed(ctx, srv.URL+"/about"))
	require.False(t, policy.Allowed(ctx, srv.URL+"/private/page"))
	require.Equal(t, int32(1), robotsHits.Load())
}

func TestRobotsPolicy_FetchFailureAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	policy := NewRobotsPolicy(true, "screencrawler-test", 200*time.Millisecond, zap.NewNop())
	require.True(t, policy.Allowed(context.Background(), addr+"/anything"))
}
