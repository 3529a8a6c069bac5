// Package resolve turns any stored media reference into bytes or a
// redirect by walking the backend fallback chain: object store first
// (authoritative), then legacy filesystem, then database blob backup.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/normalize"
)

// Mode selects how a hit is returned to the caller.
type Mode int

const (
	// ModeStream returns the bytes directly.
	ModeStream Mode = iota
	// ModeRedirect returns a redirect to the canonical object store URL
	// when the object is confirmed present there, and streams otherwise.
	ModeRedirect
)

// ResolvedMedia is the outcome of a successful resolution. Exactly one of
// RedirectURL and Object is set.
type ResolvedMedia struct {
	Key         interfaces.CanonicalKey
	Backend     string
	RedirectURL string
	Object      *interfaces.StorageObject
}

// IsRedirect reports whether the caller should redirect.
func (r *ResolvedMedia) IsRedirect() bool {
	return r.RedirectURL != ""
}

// Resolver walks the fallback chain. Resolution is read-only and safe
// under concurrent calls for the same key; hits outside the object store
// are enqueued for migration so the chain heals itself over time.
type Resolver struct {
	normalizer *normalize.Normalizer
	primary    interfaces.Backend
	fallbacks  []interfaces.Backend
	queue      interfaces.MigrationQueue
	log        *slog.Logger
}

// New creates a resolver. primary is the authoritative object store;
// fallbacks are consulted in the given order after it. queue may be nil to
// disable lazy self-healing.
func New(normalizer *normalize.Normalizer, primary interfaces.Backend, fallbacks []interfaces.Backend, queue interfaces.MigrationQueue, log *slog.Logger) *Resolver {
	return &Resolver{
		normalizer: normalizer,
		primary:    primary,
		fallbacks:  fallbacks,
		queue:      queue,
		log:        log,
	}
}

// Resolve normalizes reference and returns the first hit along the
// fallback chain, or ErrNotFound when every backend misses. The resolver
// never fabricates content; callers map ErrNotFound to a placeholder.
func (r *Resolver) Resolve(ctx context.Context, reference string, mode Mode) (*ResolvedMedia, error) {
	start := time.Now()
	key := r.normalizer.Normalize(reference)
	if key.IsZero() {
		return nil, fmt.Errorf("reference %q carries no path: %w", reference, interfaces.ErrNotFound)
	}

	var errs []error
	for _, backend := range r.chain() {
		if !backend.Available(ctx) {
			r.log.Debug("Backend unavailable",
				slog.String("backend", backend.Name()),
				slog.String("fileID", key.FileID()))
			continue
		}

		exists, err := backend.Exists(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}
		if !exists {
			continue
		}

		resolved, err := r.serveHit(ctx, backend, key, mode)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}

		r.log.Info("Resolved media",
			slog.String("backend", backend.Name()),
			slog.String("fileID", key.FileID()),
			slog.Bool("redirect", resolved.IsRedirect()),
			slog.Duration("duration", time.Since(start)))
		return resolved, nil
	}

	if len(errs) > 0 {
		r.log.Warn("Backends failed during resolution",
			slog.String("fileID", key.FileID()),
			slog.Int("failed_backends", len(errs)))
	}
	return nil, fmt.Errorf("%s: %w", key.FileID(), interfaces.ErrNotFound)
}

// serveHit builds the resolution result for a hit on backend. A hit on the
// primary in redirect mode needs no read at all; a hit anywhere else is
// streamed and the key is queued for migration.
func (r *Resolver) serveHit(ctx context.Context, backend interfaces.Backend, key interfaces.CanonicalKey, mode Mode) (*ResolvedMedia, error) {
	if backend == r.primary && mode == ModeRedirect {
		return &ResolvedMedia{
			Key:         key,
			Backend:     backend.Name(),
			RedirectURL: r.normalizer.CanonicalURL(key),
		}, nil
	}

	obj, err := backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	if backend != r.primary {
		r.scheduleMigration(ctx, key)
	}

	return &ResolvedMedia{
		Key:     key,
		Backend: backend.Name(),
		Object:  obj,
	}, nil
}

// Presence reports, per backend, whether the normalized reference exists
// there. Used by the operator verify command.
func (r *Resolver) Presence(ctx context.Context, reference string) (interfaces.CanonicalKey, map[string]bool, error) {
	key := r.normalizer.Normalize(reference)
	if key.IsZero() {
		return key, nil, fmt.Errorf("reference %q carries no path: %w", reference, interfaces.ErrNotFound)
	}

	presence := make(map[string]bool, 1+len(r.fallbacks))
	for _, backend := range r.chain() {
		exists, err := backend.Exists(ctx, key)
		if err != nil {
			return key, presence, fmt.Errorf("%s: %w", backend.Name(), err)
		}
		presence[backend.Name()] = exists
	}
	return key, presence, nil
}

// CanonicalURL renders the authoritative URL for a reference without
// touching any backend.
func (r *Resolver) CanonicalURL(reference string) string {
	return r.normalizer.CanonicalURL(r.normalizer.Normalize(reference))
}

func (r *Resolver) chain() []interfaces.Backend {
	return append([]interfaces.Backend{r.primary}, r.fallbacks...)
}

func (r *Resolver) scheduleMigration(ctx context.Context, key interfaces.CanonicalKey) {
	if r.queue == nil {
		return
	}
	if err := r.queue.Enqueue(ctx, key); err != nil {
		// Lazy healing is best-effort; the next resolve retries.
		r.log.Warn("Failed to enqueue for migration",
			slog.String("fileID", key.FileID()), "err", err)
	}
}
