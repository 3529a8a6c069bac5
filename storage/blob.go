package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/townsquare/mediastore/interfaces"
)

// blobSchema creates the deploy-time backup table. Rows become disposable
// caches once the object store copy is confirmed.
const blobSchema = `
CREATE TABLE IF NOT EXISTS media_blob (
	file_id      text PRIMARY KEY,
	bucket       text NOT NULL,
	path         text NOT NULL,
	content      bytea NOT NULL,
	content_type text NOT NULL,
	size_bytes   bigint NOT NULL,
	created_at   timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS media_blob_bucket_idx ON media_blob (bucket);
`

// BlobBackend implements a storage backend over a Postgres bytea table.
// It exists as the deploy-time backup tier: media written here survives
// container resets even when the legacy filesystem does not.
type BlobBackend struct {
	pool        *pgxpool.Pool
	log         *slog.Logger
	locationURI string
}

// NewBlobBackend connects to Postgres and ensures the backup table exists.
func NewBlobBackend(ctx context.Context, dsn string, log *slog.Logger) (*BlobBackend, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse blob backend DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob backend pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping blob backend database: %w", err)
	}

	b := &BlobBackend{
		pool:        pool,
		log:         log,
		locationURI: fmt.Sprintf("pgblob://%s/%s", poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Database),
	}
	if err := b.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// NewBlobBackendFromPool wraps an existing pool; used when the ledger and
// backup share one database.
func NewBlobBackendFromPool(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) (*BlobBackend, error) {
	b := &BlobBackend{
		pool:        pool,
		log:         log,
		locationURI: "pgblob://shared-pool/media_blob",
	}
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BlobBackend) ensureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, blobSchema); err != nil {
		return fmt.Errorf("failed to ensure media_blob schema: %w", err)
	}
	return nil
}

// Exists reports whether a backup row is present for key.
func (b *BlobBackend) Exists(ctx context.Context, key interfaces.CanonicalKey) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM media_blob WHERE file_id = $1)`,
		key.FileID()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blob existence: %w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return exists, nil
}

// Read returns the backup row for key, or ErrNotFound.
func (b *BlobBackend) Read(ctx context.Context, key interfaces.CanonicalKey) (*interfaces.StorageObject, error) {
	var (
		content     []byte
		contentType string
		sizeBytes   int64
	)
	err := b.pool.QueryRow(ctx,
		`SELECT content, content_type, size_bytes FROM media_blob WHERE file_id = $1`,
		key.FileID()).Scan(&content, &contentType, &sizeBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	b.log.Debug("Fetched media from blob backup",
		slog.String("fileID", key.FileID()),
		slog.Int64("size", sizeBytes))

	return &interfaces.StorageObject{
		Data:        content,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		Backend:     b.Name(),
		Key:         key,
	}, nil
}

// Write upserts a backup row for key.
func (b *BlobBackend) Write(ctx context.Context, key interfaces.CanonicalKey, data []byte, contentType string) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO media_blob (file_id, bucket, path, content, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (file_id) DO UPDATE
		SET content = EXCLUDED.content,
		    content_type = EXCLUDED.content_type,
		    size_bytes = EXCLUDED.size_bytes`,
		key.FileID(), key.Bucket.Slug(), key.Path, data, contentType, int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// List scans the backup table for one bucket, in keyset order.
func (b *BlobBackend) List(ctx context.Context, bucket interfaces.Bucket, fn interfaces.ListFunc) error {
	rows, err := b.pool.Query(ctx,
		`SELECT path FROM media_blob WHERE bucket = $1 ORDER BY file_id`,
		bucket.Slug())
	if err != nil {
		return fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return fmt.Errorf("failed to scan blob row: %w", err)
		}
		if err := fn(interfaces.CanonicalKey{Bucket: bucket, Path: p}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating blob rows: %w", err)
	}
	return nil
}

// Delete removes the backup row for key. Absent rows are not an error.
func (b *BlobBackend) Delete(ctx context.Context, key interfaces.CanonicalKey) error {
	if _, err := b.pool.Exec(ctx, `DELETE FROM media_blob WHERE file_id = $1`, key.FileID()); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Available checks database connectivity.
func (b *BlobBackend) Available(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := b.pool.Ping(pingCtx); err != nil {
		b.log.Debug("Blob backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *BlobBackend) Name() string {
	return "pgblob"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *BlobBackend) LocationURI() string {
	return b.locationURI
}

// Close releases the connection pool.
func (b *BlobBackend) Close() {
	b.pool.Close()
}
