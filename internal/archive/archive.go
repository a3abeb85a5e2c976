// Package archive stores compressed backup documents in S3-compatible
// storage. When no bucket is configured the NoopArchiver is used and the
// server stays in local-only mode.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/golang/snappy"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/larder/internal/config"
	"github.com/hyperengineering/larder/internal/metrics"
	"github.com/hyperengineering/larder/internal/types"
)

// ErrNotConfigured is returned when archive storage is not configured.
var ErrNotConfigured = errors.New("archive storage not configured")

// ContentType is set on every uploaded archive object.
const ContentType = "application/x-snappy-framed"

// Archiver uploads backup documents and hands out download links.
type Archiver interface {
	// Upload compresses doc and stores it under a new key for userID.
	// The returned key identifies the archive for PresignedURL.
	Upload(ctx context.Context, userID string, doc *types.BackupDocument) (key string, err error)

	// PresignedURL returns a pre-signed GET URL for an archive key.
	// Returns ErrNotConfigured when storage is not configured.
	PresignedURL(ctx context.Context, key string) (url string, expiry time.Time, err error)
}

// s3Client is the subset of minio.Client used by S3Archiver.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Archiver uploads archives to S3-compatible storage.
type S3Archiver struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
	now       func() time.Time
}

// Upload encodes doc as snappy-framed JSON and puts it in the bucket.
func (a *S3Archiver) Upload(ctx context.Context, userID string, doc *types.BackupDocument) (string, error) {
	payload, err := Encode(doc)
	if err != nil {
		metrics.ObserveArchive(metrics.StatusFailed, 0)
		return "", err
	}

	key := ObjectKey(userID, a.now())
	if err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), ContentType); err != nil {
		metrics.ObserveArchive(metrics.StatusFailed, 0)
		return "", fmt.Errorf("upload archive to S3: %w", err)
	}
	metrics.ObserveArchive(metrics.StatusSuccess, int64(len(payload)))
	return key, nil
}

// PresignedURL returns a pre-signed GET URL for the archive.
func (a *S3Archiver) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	presigned, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), a.now().Add(a.urlExpiry), nil
}

// NoopArchiver is used when archive storage is not configured.
type NoopArchiver struct{}

// Upload returns ErrNotConfigured without touching storage.
func (NoopArchiver) Upload(ctx context.Context, userID string, doc *types.BackupDocument) (string, error) {
	return "", ErrNotConfigured
}

// PresignedURL returns ErrNotConfigured.
func (NoopArchiver) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// New creates the appropriate Archiver based on configuration.
// Returns NoopArchiver when bucket is empty, S3Archiver otherwise.
func New(cfg config.ArchiveConfig) (Archiver, error) {
	if !cfg.Enabled() {
		return NoopArchiver{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Archiver{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: time.Duration(cfg.URLExpiry),
		now:       time.Now,
	}, nil
}

// ObjectKey returns the object key for an archive taken at t.
// Convention: {user_id}/backups/{ulid}.json.sz, which sorts by time.
func ObjectKey(userID string, t time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy())
	return userID + "/backups/" + id.String() + ".json.sz"
}

// Encode serializes doc as JSON inside a snappy framed stream.
func Encode(doc *types.BackupDocument) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads an archive produced by Encode.
func Decode(r io.Reader) (*types.BackupDocument, error) {
	var doc types.BackupDocument
	if err := json.NewDecoder(snappy.NewReader(r)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return &doc, nil
}
