// Package interfaces defines the shared types and capability contracts of
// the media storage layer.
//
// The package contains no implementation logic, only:
//
//   - Bucket and CanonicalKey, the normalized identity of a media object
//   - StorageObject, a payload plus serving metadata
//   - Backend, the uniform capability surface over a storage medium
//   - LedgerStore, the durable per-file migration state tracker
//   - MigrationQueue, the lazy self-healing work channel
//   - the error taxonomy shared by every component
//
// # Canonical keys
//
// A canonical key is the one normalized (bucket, path) pair identifying a
// media object, for example:
//
//	{CALENDAR, events/summerfest.jpg}
//	{BANNER, banner-slides/bannerImage-123-456.jpg}
//
// Keys are produced exclusively by the normalize package. Business records
// store references in whatever historical dialect they were written with;
// the normalizer maps every dialect to the same key.
//
// # Error taxonomy
//
// All components signal failure through the sentinel errors declared here,
// wrapped with context via fmt.Errorf and %w. Callers branch with
// errors.Is; ErrNotFound is recoverable (placeholder substitution),
// ErrConflict means a migration race was lost and the file should be
// skipped, ErrUnsupported is a wiring mistake.
package interfaces
