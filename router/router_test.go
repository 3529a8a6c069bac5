package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/townsquare/mediastore/interfaces"
)

func TestRouteKnown(t *testing.T) {
	tests := []struct {
		category string
		bucket   interfaces.Bucket
		known    bool
	}{
		// banner slides
		{"banner", interfaces.BucketBanner, true},
		{"banners", interfaces.BucketBanner, true},
		{"banner-slides", interfaces.BucketBanner, true},
		{"bannerslides", interfaces.BucketBanner, true},
		{"slides", interfaces.BucketBanner, true},

		// calendar events
		{"calendar", interfaces.BucketCalendar, true},
		{"calendars", interfaces.BucketCalendar, true},
		{"events", interfaces.BucketCalendar, true},
		{"event", interfaces.BucketCalendar, true},

		// forum attachments
		{"forum", interfaces.BucketForum, true},
		{"forums", interfaces.BucketForum, true},
		{"forum-media", interfaces.BucketForum, true},

		// real estate listings
		{"listing", interfaces.BucketListing, true},
		{"listings", interfaces.BucketListing, true},
		{"real-estate", interfaces.BucketListing, true},
		{"realestate", interfaces.BucketListing, true},
		{"real-estate-media", interfaces.BucketListing, true},

		{"default", interfaces.BucketDefault, true},

		// spelling variations the normalizer produces
		{"BANNER", interfaces.BucketBanner, true},
		{" events ", interfaces.BucketCalendar, true},
		{"/forum/", interfaces.BucketForum, true},

		// unknown categories fall to default, flagged unknown
		{"", interfaces.BucketDefault, false},
		{"avatars", interfaces.BucketDefault, false},
		{"banner2", interfaces.BucketDefault, false},
	}

	for _, tc := range tests {
		t.Run(tc.category, func(t *testing.T) {
			bucket, known := RouteKnown(tc.category)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.known, known)
		})
	}
}

func TestRouteNeverFails(t *testing.T) {
	assert.Equal(t, interfaces.BucketDefault, Route("no-such-category"))
	assert.Equal(t, interfaces.BucketBanner, Route("slides"))
}

func TestRouteFilename(t *testing.T) {
	tests := []struct {
		filename string
		bucket   interfaces.Bucket
		known    bool
	}{
		{"bannerImage-123-456.jpg", interfaces.BucketBanner, true},
		{"bannerslide-7.png", interfaces.BucketBanner, true},
		{"eventImage-20240101.jpg", interfaces.BucketCalendar, true},
		{"calendarimage-5.gif", interfaces.BucketCalendar, true},
		{"forumImage-99.jpg", interfaces.BucketForum, true},
		{"forumupload-1.pdf", interfaces.BucketForum, true},
		{"listingImage-42.jpg", interfaces.BucketListing, true},
		{"estatePhoto-11.jpg", interfaces.BucketListing, true},
		{"photo.jpg", interfaces.BucketDefault, false},
		{"", interfaces.BucketDefault, false},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			bucket, known := RouteFilename(tc.filename)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.known, known)
		})
	}
}

func TestIsNoise(t *testing.T) {
	assert.True(t, IsNoise("uploads"))
	assert.True(t, IsNoise("UPLOADS"))
	assert.True(t, IsNoise("htdocs"))
	assert.False(t, IsNoise("events"))
	assert.False(t, IsNoise("photo.jpg"))
}

// Every synonym must round-trip through RouteKnown so the table cannot
// silently lose entries.
func TestSynonymsRoundTrip(t *testing.T) {
	for _, bucket := range interfaces.Buckets() {
		for _, synonym := range Synonyms(bucket) {
			got, known := RouteKnown(synonym)
			assert.True(t, known, "synonym %q not routed", synonym)
			assert.Equal(t, bucket, got, "synonym %q misrouted", synonym)
		}
	}
}
