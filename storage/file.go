package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/normalize"
	"github.com/townsquare/mediastore/router"
)

// FileBackend implements a storage backend over the local filesystem.
//
// Writes land in the canonical layout {baseDir}/{bucket-slug}/{key-path}.
// Reads additionally probe the legacy layouts that accumulated before the
// object store existed (bare category directories, /uploads/ trees, flat
// files), so a canonical key resolves old on-disk spellings too.
type FileBackend struct {
	baseDir     string
	normalizer  *normalize.Normalizer
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a filesystem backend rooted at baseDir. Bucket
// sub-directories are created on demand, not upfront, so a legacy tree can
// be mounted read-mostly without being touched.
func NewFileBackend(baseDir string, normalizer *normalize.Normalizer, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		normalizer:  normalizer,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Exists reports whether any known on-disk spelling of key is present.
func (b *FileBackend) Exists(ctx context.Context, key interfaces.CanonicalKey) (bool, error) {
	_, err := b.locate(key)
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Read returns the object stored under key, probing legacy layouts.
func (b *FileBackend) Read(ctx context.Context, key interfaces.CanonicalKey) (*interfaces.StorageObject, error) {
	filePath, err := b.locate(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched media from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return &interfaces.StorageObject{
		Data:        data,
		ContentType: detectContentType(filePath, data),
		SizeBytes:   int64(len(data)),
		Backend:     b.Name(),
		Key:         key,
	}, nil
}

// Write stores data under the canonical layout path for key. The write is
// atomic: data goes to a temp file first and is renamed into place.
func (b *FileBackend) Write(ctx context.Context, key interfaces.CanonicalKey, data []byte, contentType string) error {
	filePath := b.canonicalPath(key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	b.log.Debug("Stored media in file",
		slog.String("path", filePath),
		slog.String("fileID", key.FileID()))

	return nil
}

// List walks the whole tree and reports every file whose normalized key
// falls in bucket. Legacy spellings normalize to the same keys reads probe.
func (b *FileBackend) List(ctx context.Context, bucket interfaces.Bucket, fn interfaces.ListFunc) error {
	return filepath.WalkDir(b.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}

		key := b.normalizer.Normalize(filepath.ToSlash(rel))
		if key.IsZero() || key.Bucket != bucket {
			return nil
		}
		return fn(key)
	})
}

// Delete removes every on-disk spelling of key. Absent keys are not an
// error.
func (b *FileBackend) Delete(ctx context.Context, key interfaces.CanonicalKey) error {
	for _, candidate := range b.candidatePaths(key) {
		if err := os.Remove(candidate); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

// Available checks that the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	if _, err := os.Stat(b.baseDir); err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// canonicalPath is where writes land: {base}/{slug}/{key-path}.
func (b *FileBackend) canonicalPath(key interfaces.CanonicalKey) string {
	return filepath.Join(b.baseDir, key.Bucket.Slug(), filepath.FromSlash(key.Path))
}

// locate returns the first existing on-disk spelling of key.
func (b *FileBackend) locate(key interfaces.CanonicalKey) (string, error) {
	for _, candidate := range b.candidatePaths(key) {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to stat file: %w", err)
		}
	}
	return "", interfaces.ErrNotFound
}

// candidatePaths enumerates the historical layouts a key may live under,
// canonical layout first.
func (b *FileBackend) candidatePaths(key interfaces.CanonicalKey) []string {
	filename := filepath.Base(filepath.FromSlash(key.Path))

	paths := []string{
		b.canonicalPath(key),
		filepath.Join(b.baseDir, filepath.FromSlash(key.Path)),
	}
	for _, synonym := range router.Synonyms(key.Bucket) {
		paths = append(paths,
			filepath.Join(b.baseDir, synonym, filename),
			filepath.Join(b.baseDir, "uploads", synonym, filename),
		)
	}
	paths = append(paths,
		filepath.Join(b.baseDir, "uploads", filename),
		filepath.Join(b.baseDir, filename),
	)
	return paths
}

// detectContentType resolves a content type from the file extension,
// falling back to sniffing the payload.
func detectContentType(filePath string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(filePath)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
