package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/townsquare/mediastore/ingest"
	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/metrics"
	"github.com/townsquare/mediastore/normalize"
	"github.com/townsquare/mediastore/queue"
	"github.com/townsquare/mediastore/resolve"
	"github.com/townsquare/mediastore/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type handlerFixture struct {
	handler *Handler
	server  *httptest.Server
	primary *storage.MemoryBackend
	legacy  *storage.MemoryBackend
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	normalizer := normalize.New("media.townsquare-cdn.net")
	primary := storage.NewMemoryBackend("object-store")
	legacy := storage.NewMemoryBackend("legacy-fs")
	q := queue.NewMemoryQueue(testLogger())

	resolver := resolve.New(normalizer, primary, []interfaces.Backend{legacy}, q, testLogger())
	ingestSvc := ingest.New(primary, nil, normalizer, testLogger())
	handler := NewHandler(ingestSvc, resolver, metrics.New("mediastore_test"), testLogger())

	srv, err := New(&HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        testLogger(),
	}, handler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)

	return &handlerFixture{handler: handler, server: ts, primary: primary, legacy: legacy}
}

func multipartUpload(t *testing.T, category, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("category", category))
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	f := newHandlerFixture(t)
	body, contentType := multipartUpload(t, "banner", "bannerImage-1.png", []byte("png-bytes"))

	resp, err := http.Post(f.server.URL+"/api/media", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "banner/banner-slides/bannerImage-1.png", result.FileID)
	assert.Equal(t, "https://media.townsquare-cdn.net/banner/banner-slides/bannerImage-1.png", result.CanonicalURL)
	assert.Equal(t, "/storage-proxy/BANNER/banner-slides/bannerImage-1.png", result.ProxyPath)

	// The upload is durably in the object store.
	key := interfaces.CanonicalKey{Bucket: interfaces.BucketBanner, Path: "banner-slides/bannerImage-1.png"}
	obj, err := f.primary.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), obj.Data)
}

func TestHandleUploadMissingFile(t *testing.T) {
	f := newHandlerFixture(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("category", "banner"))
	require.NoError(t, w.Close())

	resp, err := http.Post(f.server.URL+"/api/media", w.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleProxyRedirect(t *testing.T) {
	f := newHandlerFixture(t)
	key := interfaces.CanonicalKey{Bucket: interfaces.BucketCalendar, Path: "events/x.jpg"}
	require.NoError(t, f.primary.Write(context.Background(), key, []byte("jpeg"), "image/jpeg"))

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.server.URL + "/storage-proxy/CALENDAR/x.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://media.townsquare-cdn.net/calendar/events/x.jpg", resp.Header.Get("Location"))
}

// A file only the legacy backend holds streams instead of redirecting.
func TestHandleProxyStreamsLegacy(t *testing.T) {
	f := newHandlerFixture(t)
	key := interfaces.CanonicalKey{Bucket: interfaces.BucketCalendar, Path: "events/x.jpg"}
	require.NoError(t, f.legacy.Write(context.Background(), key, []byte("old-bytes"), "image/jpeg"))

	resp, err := http.Get(f.server.URL + "/storage-proxy/CALENDAR/x.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("old-bytes"), data)
}

func TestHandleProxyNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	resp, err := http.Get(f.server.URL + "/storage-proxy/CALENDAR/missing.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Contains(t, payload["error"], "not found")
}

func TestHandleResolve(t *testing.T) {
	f := newHandlerFixture(t)
	key := interfaces.CanonicalKey{Bucket: interfaces.BucketForum, Path: "forum/a.jpg"}
	require.NoError(t, f.primary.Write(context.Background(), key, []byte("jpeg"), "image/jpeg"))

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.server.URL + "/api/media/resolve?ref=/uploads/forum/a.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://media.townsquare-cdn.net/forum/forum/a.jpg", resp.Header.Get("Location"))
}

func TestHandleResolveStreamMode(t *testing.T) {
	f := newHandlerFixture(t)
	key := interfaces.CanonicalKey{Bucket: interfaces.BucketForum, Path: "forum/a.jpg"}
	require.NoError(t, f.primary.Write(context.Background(), key, []byte("jpeg"), "image/jpeg"))

	resp, err := http.Get(f.server.URL + "/api/media/resolve?ref=/uploads/forum/a.jpg&mode=stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)
}

func TestHandleResolveMissingRef(t *testing.T) {
	f := newHandlerFixture(t)

	resp, err := http.Get(f.server.URL + "/api/media/resolve")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	f := newHandlerFixture(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := http.Get(f.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
