package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/normalize"
	"github.com/townsquare/mediastore/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNormalizer() *normalize.Normalizer {
	return normalize.New("media.townsquare-cdn.net")
}

func TestIngestCategorized(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend("object-store")
	svc := New(store, nil, testNormalizer(), testLogger())

	result, err := svc.Ingest(ctx, []byte("png-bytes"), "bannerImage-123-456.jpg", "banner", "image/jpeg")
	require.NoError(t, err)

	want := interfaces.CanonicalKey{Bucket: interfaces.BucketBanner, Path: "banner-slides/bannerImage-123-456.jpg"}
	assert.Equal(t, want, result.Key)
	assert.Equal(t, "https://media.townsquare-cdn.net/banner/banner-slides/bannerImage-123-456.jpg", result.CanonicalURL)
	assert.Equal(t, "/storage-proxy/BANNER/banner-slides/bannerImage-123-456.jpg", result.ProxyPath)

	obj, err := store.Read(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), obj.Data)
	assert.Equal(t, "image/jpeg", obj.ContentType)
}

// Without a usable category the filename convention decides the bucket.
func TestIngestFilenameFallback(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend("object-store")
	svc := New(store, nil, testNormalizer(), testLogger())

	result, err := svc.Ingest(ctx, []byte("x"), "eventImage-7.jpg", "", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketCalendar, result.Key.Bucket)
	assert.Equal(t, "events/eventImage-7.jpg", result.Key.Path)
}

func TestIngestUnclassified(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend("object-store")
	svc := New(store, nil, testNormalizer(), testLogger())

	result, err := svc.Ingest(ctx, []byte("x"), "photo.jpg", "scrapbook", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketDefault, result.Key.Bucket)
	assert.Equal(t, "photo.jpg", result.Key.Path)
}

func TestIngestEmptyPayload(t *testing.T) {
	svc := New(storage.NewMemoryBackend("object-store"), nil, testNormalizer(), testLogger())

	_, err := svc.Ingest(context.Background(), nil, "a.jpg", "banner", "image/jpeg")
	assert.Error(t, err)
}

// A failed authoritative write surfaces; there is no silent filesystem
// fallback.
func TestIngestStoreFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	mirror := storage.NewMemoryBackend("mirror")
	svc := New(&failingBackend{}, mirror, testNormalizer(), testLogger())

	_, err := svc.Ingest(ctx, []byte("x"), "a.jpg", "banner", "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authoritative write")

	// Nothing may be mirrored when the authoritative write failed.
	assert.Equal(t, 0, mirror.Len())
}

// A write the store later cannot confirm is corruption, not success.
func TestIngestUnconfirmedWrite(t *testing.T) {
	svc := New(&vanishingBackend{}, nil, testNormalizer(), testLogger())

	_, err := svc.Ingest(context.Background(), []byte("x"), "a.jpg", "banner", "image/jpeg")
	assert.ErrorIs(t, err, interfaces.ErrCorrupt)
}

// Mirror failures are logged, never surfaced.
func TestIngestMirrorFailureIgnored(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend("object-store")
	svc := New(store, &failingBackend{}, testNormalizer(), testLogger())

	_, err := svc.Ingest(ctx, []byte("x"), "a.jpg", "banner", "image/jpeg")
	assert.NoError(t, err)
}

func TestIngestDetectsContentType(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend("object-store")
	svc := New(store, nil, testNormalizer(), testLogger())

	result, err := svc.Ingest(ctx, []byte("plain text payload"), "notes.txt", "forum", "")
	require.NoError(t, err)

	obj, err := store.Read(ctx, result.Key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.ContentType, "text/plain"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a.jpg", sanitizeFilename("../../etc/a.jpg", "image/jpeg"))
	assert.Equal(t, "a.jpg", sanitizeFilename("C:\\Users\\x\\a.jpg", "image/jpeg"))
	assert.Equal(t, "open-house.jpg", sanitizeFilename("open house.jpg", "image/jpeg"))

	generated := sanitizeFilename("", "image/jpeg")
	assert.True(t, strings.HasPrefix(generated, "upload-"))
	assert.Contains(t, generated, ".")
}

// failingBackend rejects every write.
type failingBackend struct {
	storage.MemoryBackend
}

func (b *failingBackend) Write(ctx context.Context, key interfaces.CanonicalKey, data []byte, contentType string) error {
	return errors.New("bucket rejected write")
}

// vanishingBackend accepts writes but never shows the object afterwards.
type vanishingBackend struct {
	storage.MemoryBackend
}

func (b *vanishingBackend) Write(ctx context.Context, key interfaces.CanonicalKey, data []byte, contentType string) error {
	return nil
}

func (b *vanishingBackend) Exists(ctx context.Context, key interfaces.CanonicalKey) (bool, error) {
	return false, nil
}
