package interfaces

import (
	"fmt"
	"strings"
)

// Bucket identifies the storage namespace a media object belongs to.
// Every object lives in exactly one bucket, chosen by its content category.
type Bucket int

const (
	// BucketDefault holds media that could not be classified.
	BucketDefault Bucket = iota
	// BucketBanner holds banner slide images.
	BucketBanner
	// BucketCalendar holds calendar event media.
	BucketCalendar
	// BucketForum holds forum post attachments.
	BucketForum
	// BucketListing holds real estate listing media.
	BucketListing
)

// Buckets returns all known buckets.
func Buckets() []Bucket {
	return []Bucket{BucketDefault, BucketBanner, BucketCalendar, BucketForum, BucketListing}
}

// Slug returns the lowercase bucket name used in URLs and object keys.
func (b Bucket) Slug() string {
	switch b {
	case BucketBanner:
		return "banner"
	case BucketCalendar:
		return "calendar"
	case BucketForum:
		return "forum"
	case BucketListing:
		return "listing"
	default:
		return "default"
	}
}

// Subdir returns the canonical category sub-directory for keys in this
// bucket. The default bucket stores flat keys and has no sub-directory.
func (b Bucket) Subdir() string {
	switch b {
	case BucketBanner:
		return "banner-slides"
	case BucketCalendar:
		return "events"
	case BucketForum:
		return "forum"
	case BucketListing:
		return "real-estate-media"
	default:
		return ""
	}
}

// String returns the uppercase bucket token.
func (b Bucket) String() string {
	return strings.ToUpper(b.Slug())
}

// BucketFromSlug resolves a bucket from its slug, case-insensitively.
func BucketFromSlug(s string) (Bucket, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "banner":
		return BucketBanner, true
	case "calendar":
		return BucketCalendar, true
	case "forum":
		return BucketForum, true
	case "listing":
		return BucketListing, true
	case "default":
		return BucketDefault, true
	default:
		return BucketDefault, false
	}
}

// CanonicalKey is the one normalized (bucket, path) pair identifying a media
// object. Keys are produced by the path normalizer only; the path carries no
// leading slash, no doubled separators and no legacy prefix tokens.
type CanonicalKey struct {
	Bucket Bucket
	Path   string
}

// FileID derives the durable ledger identifier for this key.
func (k CanonicalKey) FileID() string {
	return k.Bucket.Slug() + "/" + k.Path
}

// String returns the file ID.
func (k CanonicalKey) String() string {
	return k.FileID()
}

// IsZero reports whether the key carries no path.
func (k CanonicalKey) IsZero() bool {
	return k.Path == ""
}

// ParseFileID reverses FileID. It fails on identifiers that do not carry a
// known bucket slug prefix.
func ParseFileID(fileID string) (CanonicalKey, error) {
	slug, path, ok := strings.Cut(fileID, "/")
	if !ok || path == "" {
		return CanonicalKey{}, fmt.Errorf("malformed file ID %q", fileID)
	}
	bucket, ok := BucketFromSlug(slug)
	if !ok {
		return CanonicalKey{}, fmt.Errorf("unknown bucket slug in file ID %q", fileID)
	}
	return CanonicalKey{Bucket: bucket, Path: path}, nil
}

// StorageObject is a media payload together with the metadata needed to
// serve it. The backend that returned it owns the copy it describes.
type StorageObject struct {
	Data        []byte
	ContentType string
	SizeBytes   int64
	Backend     string
	Key         CanonicalKey
}
