package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/townsquare/mediastore/interfaces"
)

func TestS3BackendReadOnlyWrite(t *testing.T) {
	backend, err := NewS3Backend("media-bucket", "uploads", "eu-central-1", "", "", "", testLogger())
	require.NoError(t, err)
	require.False(t, backend.HasWriteAccess())

	key := interfaces.CanonicalKey{Bucket: interfaces.BucketBanner, Path: "banner-slides/s.png"}

	// Without credentials a write fails loudly instead of pretending.
	err = backend.Write(context.Background(), key, []byte("png"), "image/png")
	assert.ErrorIs(t, err, interfaces.ErrUnsupported)

	err = backend.Delete(context.Background(), key)
	assert.ErrorIs(t, err, interfaces.ErrUnsupported)
}

func TestS3BackendObjectKey(t *testing.T) {
	withPrefix, err := NewS3Backend("b", "uploads", "eu-central-1", "", "", "", testLogger())
	require.NoError(t, err)
	key := interfaces.CanonicalKey{Bucket: interfaces.BucketCalendar, Path: "events/x.jpg"}
	assert.Equal(t, "uploads/calendar/events/x.jpg", withPrefix.objectKey(key))

	flat, err := NewS3Backend("b", "", "eu-central-1", "", "", "", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "calendar/events/x.jpg", flat.objectKey(key))
}

func TestIsS3NotFound(t *testing.T) {
	assert.True(t, isS3NotFound(errors.New("NoSuchKey: The specified key does not exist")))
	assert.True(t, isS3NotFound(errors.New("status code: 404, request id: x")))
	assert.False(t, isS3NotFound(errors.New("AccessDenied")))
	assert.False(t, isS3NotFound(nil))
}
