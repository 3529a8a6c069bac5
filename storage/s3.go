package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/townsquare/mediastore/interfaces"
)

// s3VerifyTimeout bounds the post-write existence polling. A write that is
// not visible within this window is reported as failed, never as success.
const s3VerifyTimeout = 15 * time.Second

// S3Backend implements the authoritative object store over Amazon S3 or a
// compatible service. It supports both public read-only access and
// authenticated write access; without write credentials, Write returns
// ErrUnsupported.
type S3Backend struct {
	client         *s3.S3
	writeClient    *s3.S3
	bucketName     string
	prefix         string
	log            *slog.Logger
	locationURI    string
	hasWriteAccess bool
}

// NewS3Backend creates a new S3 storage backend. If accessKey and secretKey
// are provided, the backend has write access; otherwise it is read-only for
// publicly accessible objects.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if accessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", accessKey, bucketName, prefix, region)
	}
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	baseCfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		baseCfg.Endpoint = aws.String(endpoint)
		baseCfg.S3ForcePathStyle = aws.Bool(true)
	}

	baseSess, err := session.NewSession(&baseCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	readClient := s3.New(baseSess)

	hasWriteAccess := accessKey != "" && secretKey != ""
	writeClient := readClient

	if hasWriteAccess {
		writeCfg := baseCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")

		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS write session: %w", err)
		}
		writeClient = s3.New(writeSess)
	} else {
		log.Warn("No S3 credentials provided - object store is read-only")
	}

	return &S3Backend{
		client:         readClient,
		writeClient:    writeClient,
		bucketName:     bucketName,
		prefix:         strings.Trim(prefix, "/"),
		log:            log,
		locationURI:    uri,
		hasWriteAccess: hasWriteAccess,
	}, nil
}

// Exists reports whether the object for key is present in the bucket.
func (b *S3Backend) Exists(ctx context.Context, key interfaces.CanonicalKey) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object: %w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return true, nil
}

// Read retrieves the object for key. Returns ErrNotFound if absent.
func (b *S3Backend) Read(ctx context.Context, key interfaces.CanonicalKey) (*interfaces.StorageObject, error) {
	start := time.Now()
	objectKey := b.objectKey(key)

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			b.log.Debug("Media not found in S3",
				slog.String("bucket", b.bucketName),
				slog.String("key", objectKey),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrNotFound
		}
		b.log.Error("Failed to get object from S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", objectKey),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	contentType := aws.StringValue(result.ContentType)
	if contentType == "" {
		contentType = detectContentType(key.Path, data)
	}

	b.log.Debug("Fetched media from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", objectKey),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return &interfaces.StorageObject{
		Data:        data,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Backend:     b.Name(),
		Key:         key,
	}, nil
}

// Write uploads data under key and polls until the object is visible.
// S3-compatible services without read-after-write consistency must not be
// reported as written before a read would succeed.
func (b *S3Backend) Write(ctx context.Context, key interfaces.CanonicalKey, data []byte, contentType string) error {
	if !b.hasWriteAccess {
		return fmt.Errorf("s3 write without credentials: %w", interfaces.ErrUnsupported)
	}

	objectKey := b.objectKey(key)
	_, err := b.writeClient.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	if err := b.verifyVisible(ctx, key); err != nil {
		return err
	}

	b.log.Debug("Stored media in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", objectKey),
		slog.String("fileID", key.FileID()))

	return nil
}

// verifyVisible polls Exists with exponential backoff until the freshly
// written object is readable or the verification window closes.
func (b *S3Backend) verifyVisible(ctx context.Context, key interfaces.CanonicalKey) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = s3VerifyTimeout

	return backoff.Retry(func() error {
		ok, err := b.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("object %s not yet visible: %w", key.FileID(), interfaces.ErrBackendUnavailable)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

// List enumerates the bucket's objects under the category prefix.
func (b *S3Backend) List(ctx context.Context, bucket interfaces.Bucket, fn interfaces.ListFunc) error {
	prefix := b.objectKey(interfaces.CanonicalKey{Bucket: bucket}) // slug prefix, empty path

	var walkErr error
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(strings.TrimPrefix(aws.StringValue(obj.Key), prefix), "/")
			if rel == "" {
				continue
			}
			if walkErr = fn(interfaces.CanonicalKey{Bucket: bucket, Path: rel}); walkErr != nil {
				return false
			}
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	if err != nil {
		return fmt.Errorf("failed to list objects: %w", err)
	}
	return nil
}

// Delete removes the object under key. Absent keys are not an error.
func (b *S3Backend) Delete(ctx context.Context, key interfaces.CanonicalKey) error {
	if !b.hasWriteAccess {
		return fmt.Errorf("s3 delete without credentials: %w", interfaces.ErrUnsupported)
	}
	_, err := b.writeClient.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Available checks if the S3 backend is accessible by heading the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

// HasWriteAccess reports whether the backend was configured with write
// credentials.
func (b *S3Backend) HasWriteAccess() bool {
	return b.hasWriteAccess
}

// objectKey maps a canonical key to the S3 object key:
// [prefix/]{bucket-slug}/{key-path}.
func (b *S3Backend) objectKey(key interfaces.CanonicalKey) string {
	return path.Join(b.prefix, key.Bucket.Slug(), key.Path)
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "404")
}
