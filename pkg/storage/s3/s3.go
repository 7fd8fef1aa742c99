// Package s3 implements the storage.Backend interface over Amazon S3 or any
// S3-compatible object store.
//
// Key Layout:
//   - Metadata document: "{prefix}/file_metadata.json"
//   - File objects: "{prefix}/files/{checksum}-{name}"
//
// Embedding the display name in the key keeps the bucket human-readable and
// inspectable; the checksum prefix keeps keys unique even when names
// collide. The stored FileReference is the full object key, so downloads
// never need to reconstruct it.
//
// Thread Safety:
// The AWS SDK client is safe for concurrent use. Concurrent writes to the
// same key are last-write-wins, which is acceptable because a key is fully
// determined by its content checksum.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/meeplabs/docstore/pkg/storage"
)

const metadataObjectName = "file_metadata.json"

// Backend is an S3-backed storage.Backend.
type Backend struct {
	client     *awss3.Client
	presigner  *awss3.PresignClient
	bucket     string
	basePrefix string
	presignTTL time.Duration
}

// Config contains configuration for the S3 backend.
type Config struct {
	// Client is the configured S3 client.
	Client *awss3.Client

	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// BasePrefix is the key prefix under which all objects live.
	// Example: "docstore" results in keys like "docstore/files/abc123-a.pdf".
	BasePrefix string

	// PresignTTL is the validity window for generated share links.
	// Defaults to one hour.
	PresignTTL time.Duration
}

// New creates an S3 backend and verifies bucket access. The bucket must
// already exist; this function does not create it.
//
// Context Cancellation:
// This operation checks the context before the HeadBucket probe.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	_, err := cfg.Client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Backend{
		client:     cfg.Client,
		presigner:  awss3.NewPresignClient(cfg.Client),
		bucket:     cfg.Bucket,
		basePrefix: cfg.BasePrefix,
		presignTTL: ttl,
	}, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "s3"
}

func (b *Backend) metadataKey() string {
	return path.Join(b.basePrefix, metadataObjectName)
}

func (b *Backend) fileKey(checksum, name string) string {
	return path.Join(b.basePrefix, "files", fmt.Sprintf("%s-%s", checksum, name))
}

// isNotFound reports whether err is any of the SDK's missing-object shapes.
// GetObject surfaces *types.NoSuchKey; HeadObject surfaces *types.NotFound.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// LoadMetadataDocument implements storage.Backend.
func (b *Backend) LoadMetadataDocument(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	result, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.metadataKey()),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get metadata object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read metadata object body: %w", err)
	}
	return data, true, nil
}

// StoreMetadataDocument implements storage.Backend.
func (b *Backend) StoreMetadataDocument(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.metadataKey()),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put metadata object: %w", err)
	}
	return nil
}

// Upload implements storage.Backend. The object key doubles as the stored
// file reference.
func (b *Backend) Upload(ctx context.Context, checksum string, raw *storage.RawFileData) (*storage.FileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := b.fileKey(checksum, raw.Name)

	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw.Content),
		ContentType: aws.String(raw.MimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object %q: %w", key, err)
	}

	// Record the timestamp the bucket reports rather than our own clock.
	modified := time.Now().UTC()
	head, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil && head.LastModified != nil {
		modified = head.LastModified.UTC()
	}

	return &storage.FileData{
		FileReference: key,
		Name:          raw.Name,
		MimeType:      raw.MimeType,
		Size:          int64(len(raw.Content)),
		ModifiedTime:  modified.Format(time.RFC3339),
	}, nil
}

// Download implements storage.Backend.
func (b *Backend) Download(ctx context.Context, fd *storage.FileData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(fd.FileReference),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %q: %w", fd.FileReference, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to get object %q: %w", fd.FileReference, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// Remove implements storage.Backend. S3 DeleteObject is idempotent, so
// removing an already-missing object succeeds.
func (b *Backend) Remove(ctx context.Context, fd *storage.FileData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(fd.FileReference),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", fd.FileReference, err)
	}
	return nil
}

// ShareLink implements storage.Backend by generating a presigned GET URL.
// The link is valid for the configured TTL and forces a download disposition
// carrying the original file name.
func (b *Backend) ShareLink(ctx context.Context, fd *storage.FileData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	req, err := b.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket:                     aws.String(b.bucket),
		Key:                        aws.String(fd.FileReference),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", fd.Name)),
	}, awss3.WithPresignExpires(b.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %q: %w", fd.FileReference, err)
	}
	return req.URL, nil
}
