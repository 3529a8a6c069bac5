package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/townsquare/mediastore/interfaces"
)

const testHost = "media.townsquare-cdn.net"

func TestNormalizeDialects(t *testing.T) {
	n := New(testHost)

	tests := []struct {
		name      string
		reference string
		bucket    interfaces.Bucket
		path      string
	}{
		// absolute object store URLs
		{
			name:      "object store url",
			reference: "https://media.townsquare-cdn.net/CALENDAR/events/eventImage-1.jpg",
			bucket:    interfaces.BucketCalendar,
			path:      "events/eventImage-1.jpg",
		},
		{
			name:      "object store url with query",
			reference: "https://media.townsquare-cdn.net/BANNER/banner-slides/slide.png?v=3",
			bucket:    interfaces.BucketBanner,
			path:      "banner-slides/slide.png",
		},

		// storage proxy paths
		{
			name:      "proxy path uppercase bucket",
			reference: "/storage-proxy/FORUM/forum/post-42.jpg",
			bucket:    interfaces.BucketForum,
			path:      "forum/post-42.jpg",
		},
		{
			name:      "proxy path lowercase synonym",
			reference: "/storage-proxy/listings/house.jpg",
			bucket:    interfaces.BucketListing,
			path:      "real-estate-media/house.jpg",
		},

		// legacy filesystem paths with category tokens and noise
		{
			name:      "uploads calendar",
			reference: "/uploads/calendar/x.jpg",
			bucket:    interfaces.BucketCalendar,
			path:      "events/x.jpg",
		},
		{
			name:      "bare category dir",
			reference: "/calendar/x.jpg",
			bucket:    interfaces.BucketCalendar,
			path:      "events/x.jpg",
		},
		{
			name:      "modern events dir",
			reference: "/events/x.jpg",
			bucket:    interfaces.BucketCalendar,
			path:      "events/x.jpg",
		},
		{
			name:      "deep htdocs prefix",
			reference: "/var/www/htdocs/uploads/banners/bannerImage-9.gif",
			bucket:    interfaces.BucketBanner,
			path:      "banner-slides/bannerImage-9.gif",
		},
		{
			name:      "windows separators",
			reference: "uploads\\forum\\attachment.png",
			bucket:    interfaces.BucketForum,
			path:      "forum/attachment.png",
		},
		{
			name:      "percent encoded filename",
			reference: "/uploads/listings/open%20house.jpg",
			bucket:    interfaces.BucketListing,
			path:      "real-estate-media/open house.jpg",
		},

		// double nesting collapses
		{
			name:      "double nested events",
			reference: "/calendar/events/events/x.jpg",
			bucket:    interfaces.BucketCalendar,
			path:      "events/x.jpg",
		},

		// bare filenames classified by prefix convention
		{
			name:      "banner filename prefix",
			reference: "bannerImage-123-456.jpg",
			bucket:    interfaces.BucketBanner,
			path:      "banner-slides/bannerImage-123-456.jpg",
		},
		{
			name:      "listing filename prefix",
			reference: "estatePhoto-7.jpg",
			bucket:    interfaces.BucketListing,
			path:      "real-estate-media/estatePhoto-7.jpg",
		},

		// everything else falls flat into the default bucket
		{
			name:      "plain filename",
			reference: "photo.jpg",
			bucket:    interfaces.BucketDefault,
			path:      "photo.jpg",
		},
		{
			name:      "unknown dir",
			reference: "/uploads/avatars/face.png",
			bucket:    interfaces.BucketDefault,
			path:      "face.png",
		},
		{
			name:      "foreign host url",
			reference: "https://other-cdn.example/uploads/events/x.jpg",
			bucket:    interfaces.BucketCalendar,
			path:      "events/x.jpg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key := n.Normalize(tc.reference)
			assert.Equal(t, tc.bucket, key.Bucket, "bucket for %q", tc.reference)
			assert.Equal(t, tc.path, key.Path, "path for %q", tc.reference)
		})
	}
}

// Divergent spellings of the same file must normalize to one key.
func TestNormalizeConverges(t *testing.T) {
	n := New(testHost)

	references := []string{
		"/uploads/calendar/x.jpg",
		"/calendar/x.jpg",
		"/events/x.jpg",
		"/storage-proxy/CALENDAR/x.jpg",
		"https://media.townsquare-cdn.net/CALENDAR/events/x.jpg",
		"/htdocs/uploads/events/events/x.jpg",
	}

	want := interfaces.CanonicalKey{Bucket: interfaces.BucketCalendar, Path: "events/x.jpg"}
	for _, ref := range references {
		assert.Equal(t, want, n.Normalize(ref), "reference %q", ref)
	}
}

// Normalization must be idempotent: the canonical spellings normalize to
// the key that produced them.
func TestNormalizeIdempotent(t *testing.T) {
	n := New(testHost)

	keys := []interfaces.CanonicalKey{
		{Bucket: interfaces.BucketBanner, Path: "banner-slides/slide-1.png"},
		{Bucket: interfaces.BucketCalendar, Path: "events/eventImage-2.jpg"},
		{Bucket: interfaces.BucketForum, Path: "forum/attachment.pdf"},
		{Bucket: interfaces.BucketListing, Path: "real-estate-media/house.jpg"},
		{Bucket: interfaces.BucketDefault, Path: "photo.jpg"},
	}

	for _, key := range keys {
		assert.Equal(t, key, n.Normalize(n.CanonicalURL(key)), "canonical URL of %s", key.FileID())
		assert.Equal(t, key, n.Normalize(n.ProxyPath(key)), "proxy path of %s", key.FileID())
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	n := New(testHost)

	// Garbage input still yields a key, never a panic.
	for _, ref := range []string{"", "   ", "///", "?v=1", "https://%zz"} {
		key := n.Normalize(ref)
		assert.Equal(t, interfaces.BucketDefault, key.Bucket, "reference %q", ref)
	}
}

func TestCanonicalURL(t *testing.T) {
	n := New(testHost)
	key := interfaces.CanonicalKey{Bucket: interfaces.BucketCalendar, Path: "events/x.jpg"}

	assert.Equal(t, "https://media.townsquare-cdn.net/calendar/events/x.jpg", n.CanonicalURL(key))
	assert.Equal(t, "/storage-proxy/CALENDAR/events/x.jpg", n.ProxyPath(key))
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t,
		interfaces.CanonicalKey{Bucket: interfaces.BucketBanner, Path: "banner-slides/s.png"},
		KeyFor(interfaces.BucketBanner, "s.png"))
	assert.Equal(t,
		interfaces.CanonicalKey{Bucket: interfaces.BucketDefault, Path: "s.png"},
		KeyFor(interfaces.BucketDefault, "s.png"))
	assert.True(t, KeyFor(interfaces.BucketBanner, " ").IsZero())
}
