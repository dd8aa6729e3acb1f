package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "screens", CacheControl: "no-cache"})
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsToBucket(t *testing.T) {
	object := "example.com/run/desktop/main_page_desktop.png"
	payload := []byte("\x89PNG-data")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/screens/o")
		assert.Equal(t, object, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(payload))
		assert.Contains(t, string(body), "image/png")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"bucket":"screens","name":%q}`, object)
	})

	store := newTestStore(t, handler)
	uri, err := store.PutObject(context.Background(), object, "image/png", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "gs://screens/"+object, uri)
}

func TestPutObjectSurfacesServerErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	store := newTestStore(t, handler)
	_, err := store.PutObject(context.Background(), "a.png", "image/png", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.ErrorContains(t, err, "storage.gcs.bucket")

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
	require.NoError(t, store.Close())
}
