// Package router classifies content-origin signals (upload form categories,
// URL path segments, filename conventions) into storage buckets.
//
// The mapping is a static table rather than cascading conditionals: new
// dialects are added as table rows. Missing synonym entries have
// historically been the single largest source of misrouted media, so the
// table is enumerated exhaustively and covered by literal test cases.
package router

import (
	"strings"

	"github.com/townsquare/mediastore/interfaces"
)

// categorySynonyms maps every known spelling of a content category to its
// bucket. Keys are lowercase.
var categorySynonyms = map[string]interfaces.Bucket{
	// banner slides
	"banner":        interfaces.BucketBanner,
	"banners":       interfaces.BucketBanner,
	"banner-slides": interfaces.BucketBanner,
	"bannerslides":  interfaces.BucketBanner,
	"slides":        interfaces.BucketBanner,

	// calendar events
	"calendar":  interfaces.BucketCalendar,
	"calendars": interfaces.BucketCalendar,
	"events":    interfaces.BucketCalendar,
	"event":     interfaces.BucketCalendar,

	// forum attachments
	"forum":       interfaces.BucketForum,
	"forums":      interfaces.BucketForum,
	"forum-media": interfaces.BucketForum,

	// real estate listings
	"listing":           interfaces.BucketListing,
	"listings":          interfaces.BucketListing,
	"real-estate":       interfaces.BucketListing,
	"realestate":        interfaces.BucketListing,
	"real-estate-media": interfaces.BucketListing,

	"default": interfaces.BucketDefault,
}

// filenamePrefixes maps upload filename conventions to buckets. Entries are
// matched case-insensitively against the start of the bare filename.
var filenamePrefixes = []struct {
	prefix string
	bucket interfaces.Bucket
}{
	{"bannerimage-", interfaces.BucketBanner},
	{"bannerslide-", interfaces.BucketBanner},
	{"eventimage-", interfaces.BucketCalendar},
	{"calendarimage-", interfaces.BucketCalendar},
	{"forumimage-", interfaces.BucketForum},
	{"forumupload-", interfaces.BucketForum},
	{"listingimage-", interfaces.BucketListing},
	{"estatephoto-", interfaces.BucketListing},
}

// noiseSegments are path segments that carry no category signal and are
// skipped when scanning legacy paths.
var noiseSegments = map[string]bool{
	"uploads": true,
	"upload":  true,
	"media":   true,
	"static":  true,
	"files":   true,
	"images":  true,
	"img":     true,
	"assets":  true,
	"public":  true,
	"htdocs":  true,
	"www":     true,
	"tmp":     true,
}

// Route maps a content category to its bucket. Unknown categories fall to
// the default bucket; Route never fails.
func Route(category string) interfaces.Bucket {
	bucket, _ := RouteKnown(category)
	return bucket
}

// RouteKnown is Route plus a flag reporting whether the category was an
// enumerated synonym rather than a default fallback.
func RouteKnown(category string) (interfaces.Bucket, bool) {
	normalized := strings.ToLower(strings.TrimSpace(category))
	normalized = strings.Trim(normalized, "/")
	if bucket, ok := categorySynonyms[normalized]; ok {
		return bucket, true
	}
	return interfaces.BucketDefault, false
}

// RouteFilename classifies a bare filename by its prefix convention.
func RouteFilename(filename string) (interfaces.Bucket, bool) {
	lower := strings.ToLower(filename)
	for _, p := range filenamePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.bucket, true
		}
	}
	return interfaces.BucketDefault, false
}

// IsNoise reports whether a path segment carries no category signal.
func IsNoise(segment string) bool {
	return noiseSegments[strings.ToLower(segment)]
}

// Synonyms returns every category spelling routed to bucket. Used by tests
// to assert the table stays exhaustive.
func Synonyms(bucket interfaces.Bucket) []string {
	var out []string
	for synonym, b := range categorySynonyms {
		if b == bucket {
			out = append(out, synonym)
		}
	}
	return out
}
