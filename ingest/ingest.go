// Package ingest receives new media bytes and writes them durably to the
// authoritative object store. Ingestion never reports success on a
// filesystem-only write: a lost object store write surfaces as an error so
// the migration layer never has to repair silent drift.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/normalize"
	"github.com/townsquare/mediastore/router"
)

// Result is a confirmed ingestion: the canonical key plus its URL
// spellings, returned only after the authoritative write is verified.
type Result struct {
	Key          interfaces.CanonicalKey
	CanonicalURL string
	ProxyPath    string
}

// Service writes new media to the object store, optionally mirroring to
// the legacy filesystem during the transition period.
type Service struct {
	store      interfaces.Backend
	mirror     interfaces.Backend
	normalizer *normalize.Normalizer
	log        *slog.Logger
}

// New creates an ingestion service. mirror may be nil.
func New(store interfaces.Backend, mirror interfaces.Backend, normalizer *normalize.Normalizer, log *slog.Logger) *Service {
	return &Service{
		store:      store,
		mirror:     mirror,
		normalizer: normalizer,
		log:        log,
	}
}

// Ingest stores data under the canonical key for (category, filename) and
// returns the canonical reference. The object store write is synchronous
// and confirmed with an existence check before the caller sees success.
func (s *Service) Ingest(ctx context.Context, data []byte, filename, category, contentType string) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload payload")
	}

	bucket, known := router.RouteKnown(category)
	if !known {
		// No usable category signal from the form; fall back to the
		// filename convention.
		bucket, _ = router.RouteFilename(filename)
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := normalize.KeyFor(bucket, sanitizeFilename(filename, contentType))

	if err := s.store.Write(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("authoritative write of %s failed: %w", key.FileID(), err)
	}

	// The adapter already polls visibility; this final check guards
	// against adapters that do not.
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("post-write confirmation of %s failed: %w", key.FileID(), err)
	}
	if !ok {
		return nil, fmt.Errorf("object %s not visible after write: %w", key.FileID(), interfaces.ErrCorrupt)
	}

	s.mirrorWrite(ctx, key, data, contentType)

	s.log.Info("Ingested media",
		slog.String("fileID", key.FileID()),
		slog.String("contentType", contentType),
		slog.Int("size", len(data)))

	return &Result{
		Key:          key,
		CanonicalURL: s.normalizer.CanonicalURL(key),
		ProxyPath:    s.normalizer.ProxyPath(key),
	}, nil
}

// mirrorWrite keeps the legacy filesystem readable during the transition.
// Mirror failures are logged, never surfaced: the authoritative copy is
// already durable.
func (s *Service) mirrorWrite(ctx context.Context, key interfaces.CanonicalKey, data []byte, contentType string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Write(ctx, key, data, contentType); err != nil {
		s.log.Warn("Mirror write failed",
			slog.String("fileID", key.FileID()),
			slog.String("backend", s.mirror.Name()),
			"err", err)
	}
}

// sanitizeFilename reduces a client-supplied filename to a safe flat name.
// Nameless uploads get a generated one with an extension matching the
// content type.
func sanitizeFilename(filename, contentType string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	name = strings.Trim(name, ". ")
	name = strings.ReplaceAll(name, " ", "-")
	if name == "" || name == "/" {
		ext := ".bin"
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
		name = "upload-" + uuid.NewString() + ext
	}
	return name
}
