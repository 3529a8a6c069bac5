// Package normalize maps every historical media reference dialect to one
// canonical (bucket, path) key.
//
// Over the platform's history media references were written as absolute
// object store URLs, storage proxy paths, legacy filesystem paths with
// arbitrary prefix noise, and bare filenames. Normalization is total: any
// non-empty reference yields a key, with unclassifiable input falling to
// the default bucket. The normalizer performs no I/O.
package normalize

import (
	"net/url"
	"path"
	"strings"

	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/router"
)

// proxyPrefix is the first path segment of storage proxy references.
const proxyPrefix = "storage-proxy"

// Normalizer resolves references against a configured object store host.
// All methods are pure.
type Normalizer struct {
	scheme string
	host   string
	rules  []rule
}

// rule is one tagged dialect detector. Rules are tried in declaration
// order; the first match wins. New dialects are added as table rows, not
// branches.
type rule struct {
	name  string
	apply func(n *Normalizer, ref parsedRef) (interfaces.CanonicalKey, bool)
}

// parsedRef is a reference after dialect-independent preprocessing.
type parsedRef struct {
	host     string
	segments []string
}

// New creates a normalizer for the given canonical object store host,
// e.g. "media.townsquare-cdn.net".
func New(host string) *Normalizer {
	return &Normalizer{
		scheme: "https",
		host:   strings.ToLower(host),
		rules: []rule{
			{name: "object-store-url", apply: (*Normalizer).applyObjectStoreURL},
			{name: "proxy-path", apply: (*Normalizer).applyProxyPath},
			{name: "category-token", apply: (*Normalizer).applyCategoryToken},
			{name: "filename-prefix", apply: (*Normalizer).applyFilenamePrefix},
		},
	}
}

// Normalize maps any historical reference spelling to its canonical key.
// It is total: malformed input yields a default-bucket key with best-effort
// path extraction, never an error.
func (n *Normalizer) Normalize(reference string) interfaces.CanonicalKey {
	ref := preprocess(reference)

	for _, r := range n.rules {
		if key, ok := r.apply(n, ref); ok {
			return key
		}
	}

	return KeyFor(interfaces.BucketDefault, ref.filename())
}

// CanonicalURL renders the authoritative object store URL for a key:
// {scheme}://{host}/{bucket-slug}/{path}.
func (n *Normalizer) CanonicalURL(key interfaces.CanonicalKey) string {
	return n.scheme + "://" + n.host + "/" + key.Bucket.Slug() + "/" + key.Path
}

// ProxyPath renders the storage proxy spelling for a key:
// /storage-proxy/{BUCKET}/{path}.
func (n *Normalizer) ProxyPath(key interfaces.CanonicalKey) string {
	return "/" + proxyPrefix + "/" + key.Bucket.String() + "/" + key.Path
}

// Host returns the configured object store host.
func (n *Normalizer) Host() string {
	return n.host
}

// KeyFor builds the canonical key for a bucket and bare filename. The path
// is the bucket's category sub-directory plus the filename, flat for the
// default bucket.
func KeyFor(bucket interfaces.Bucket, filename string) interfaces.CanonicalKey {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return interfaces.CanonicalKey{Bucket: bucket}
	}
	if subdir := bucket.Subdir(); subdir != "" {
		return interfaces.CanonicalKey{Bucket: bucket, Path: subdir + "/" + filename}
	}
	return interfaces.CanonicalKey{Bucket: bucket, Path: filename}
}

// applyObjectStoreURL decodes absolute URLs pointing at the object store
// host. The first path segment names the bucket.
func (n *Normalizer) applyObjectStoreURL(ref parsedRef) (interfaces.CanonicalKey, bool) {
	if ref.host == "" || ref.host != n.host {
		return interfaces.CanonicalKey{}, false
	}
	if len(ref.segments) == 0 {
		return interfaces.CanonicalKey{}, false
	}
	bucket, ok := interfaces.BucketFromSlug(ref.segments[0])
	if !ok {
		// Host matches but the layout is foreign; let the token scan
		// have a go at the path.
		return interfaces.CanonicalKey{}, false
	}
	return KeyFor(bucket, filenameOf(ref.segments[1:])), true
}

// applyProxyPath decodes /storage-proxy/{BUCKET}/{path...} references. The
// bucket token is accepted in either case and as any category synonym.
func (n *Normalizer) applyProxyPath(ref parsedRef) (interfaces.CanonicalKey, bool) {
	if len(ref.segments) < 2 || !strings.EqualFold(ref.segments[0], proxyPrefix) {
		return interfaces.CanonicalKey{}, false
	}
	bucket, ok := interfaces.BucketFromSlug(ref.segments[1])
	if !ok {
		bucket, ok = router.RouteKnown(ref.segments[1])
		if !ok {
			return interfaces.CanonicalKey{}, false
		}
	}
	return KeyFor(bucket, filenameOf(ref.segments[2:])), true
}

// applyCategoryToken classifies legacy paths by the first recognized
// category token anywhere in the path, regardless of surrounding prefix
// noise. Rebuilding the key from the bucket and bare filename also
// collapses double-nesting (a key containing its own bucket segment),
// a known failure mode of earlier fix scripts.
func (n *Normalizer) applyCategoryToken(ref parsedRef) (interfaces.CanonicalKey, bool) {
	if len(ref.segments) < 2 {
		return interfaces.CanonicalKey{}, false
	}
	for _, segment := range ref.segments[:len(ref.segments)-1] {
		if bucket, ok := router.RouteKnown(segment); ok {
			return KeyFor(bucket, filenameOf(ref.segments)), true
		}
	}
	return interfaces.CanonicalKey{}, false
}

// applyFilenamePrefix classifies bare filenames by upload naming
// convention.
func (n *Normalizer) applyFilenamePrefix(ref parsedRef) (interfaces.CanonicalKey, bool) {
	filename := ref.filename()
	if filename == "" {
		return interfaces.CanonicalKey{}, false
	}
	if bucket, ok := router.RouteFilename(filename); ok {
		return KeyFor(bucket, filename), true
	}
	return interfaces.CanonicalKey{}, false
}

// filename returns the best-effort bare filename of a reference.
func (r parsedRef) filename() string {
	return filenameOf(r.segments)
}

// filenameOf returns the last segment that is neither a category token nor
// prefix noise. Legacy references sometimes end in a directory.
func filenameOf(segments []string) string {
	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]
		if router.IsNoise(segment) {
			continue
		}
		if _, known := router.RouteKnown(segment); known {
			continue
		}
		return segment
	}
	return ""
}

// preprocess applies dialect-independent cleanup: query strings and
// fragments are dropped, URL hosts are split off, Windows separators and
// doubled slashes are collapsed, percent escapes are decoded best-effort.
func preprocess(reference string) parsedRef {
	ref := strings.TrimSpace(reference)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.ReplaceAll(ref, "\\", "/")

	var host string
	if strings.Contains(ref, "://") {
		if u, err := url.Parse(ref); err == nil {
			host = strings.ToLower(u.Host)
			ref = u.Path
		}
	}

	cleaned := path.Clean("/" + ref)
	var segments []string
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		if decoded, err := url.PathUnescape(segment); err == nil {
			segment = decoded
		}
		segments = append(segments, segment)
	}

	return parsedRef{host: host, segments: segments}
}
