package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key is absent from a backend (or, from
	// the resolver, absent from every backend). Callers may substitute a
	// placeholder; the storage layer never fabricates content.
	ErrNotFound = errors.New("media not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible. This could be due to network issues, authentication
	// failures, or service outages. Callers retry with bounded backoff.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrUnsupported is returned when a backend does not implement an
	// operation. It indicates a wiring mistake, never a runtime condition.
	ErrUnsupported = errors.New("operation not supported by backend")

	// ErrConflict is returned when a ledger single-flight claim loses a
	// race. The caller should skip the file, not retry immediately.
	ErrConflict = errors.New("migration claim conflict")

	// ErrCorrupt is returned when a post-write verification detects a byte
	// length or content type mismatch. The copy is treated as failed.
	ErrCorrupt = errors.New("stored object failed verification")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ListFunc receives keys during a backend enumeration. Returning an error
// stops the walk and propagates out of List.
type ListFunc func(key CanonicalKey) error

// Backend is the uniform capability surface over a storage medium. All three
// media stores (local filesystem, object store, database blob backup)
// implement it; operations a backend cannot serve return ErrUnsupported
// rather than silently succeeding.
type Backend interface {
	// Exists reports whether the key is present.
	Exists(ctx context.Context, key CanonicalKey) (bool, error)

	// Read returns the object stored under key, or ErrNotFound.
	Read(ctx context.Context, key CanonicalKey) (*StorageObject, error)

	// Write stores data under key. Object store implementations must not
	// return success until a subsequent Exists/Read is guaranteed to see
	// the object.
	Write(ctx context.Context, key CanonicalKey, data []byte, contentType string) error

	// List enumerates the keys of one bucket, lazily, in backend-native
	// order. Backends derive canonical keys from their native layout.
	List(ctx context.Context, bucket Bucket, fn ListFunc) error

	// Delete removes the object under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key CanonicalKey) error

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging and ledger records.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// BackendFactory creates storage backends from location URIs.
type BackendFactory interface {
	// BackendFor creates a backend from a URI.
	// Supports file://, s3://, pgblob:// and memory://.
	BackendFor(ctx context.Context, locationURI string) (Backend, error)
}

// MigrationQueue carries keys discovered on a non-authoritative backend
// toward the migration engine (lazy self-healing).
type MigrationQueue interface {
	// Enqueue schedules a key for migration. Duplicate enqueues are
	// harmless; the engine verifies against the ledger and destination.
	Enqueue(ctx context.Context, key CanonicalKey) error

	// Dequeue pops one key. ok is false when the queue is empty.
	Dequeue(ctx context.Context) (key CanonicalKey, ok bool, err error)

	// Name returns an identifier for logging.
	Name() string
}
