package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Sentinel errors for recording uploads.
var (
	ErrEmptyBlob    = errors.New("empty recording")
	ErrBlobTooLarge = errors.New("recording too large")
)

const presignExpiry = 7 * 24 * time.Hour

// MinioUploader stores proctoring recordings directly in object storage.
type MinioUploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
	maxBytes  int64
	log       zerolog.Logger
}

// NewMinioUploader connects to MinIO and makes sure the bucket exists.
func NewMinioUploader(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*MinioUploader, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		log.Info().Str("bucket", cfg.MinioBucket).Msg("Created bucket")
	}

	log.Info().
		Str("endpoint", cfg.MinioEndpoint).
		Str("bucket", cfg.MinioBucket).
		Msg("MinIO connected")

	return &MinioUploader{
		client:    client,
		bucket:    cfg.MinioBucket,
		publicURL: cfg.MinioPublicURL,
		maxBytes:  cfg.MaxVideoBytes,
		log:       log.With().Str("component", "minio_uploader").Logger(),
	}, nil
}

// UploadFile stores the blob under proctoring/<attempt>/<uuid><ext> and
// returns its URL: the public prefix when configured, else a presigned link.
func (u *MinioUploader) UploadFile(ctx context.Context, filename string, blob *model.Blob, meta model.UploadMeta) (string, error) {
	if blob.Size() == 0 {
		return "", ErrEmptyBlob
	}
	if u.maxBytes > 0 && int64(blob.Size()) > u.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrBlobTooLarge, blob.Size(), u.maxBytes)
	}

	key := ObjectKey(meta.AttemptID, filename)

	info, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(blob.Data), int64(blob.Size()), minio.PutObjectOptions{
		ContentType: blob.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	u.log.Info().
		Int64("attempt_id", meta.AttemptID).
		Str("key", info.Key).
		Int64("size", info.Size).
		Msg("Recording stored")

	if u.publicURL != "" {
		return u.publicURL + "/" + u.bucket + "/" + key, nil
	}

	signed, err := u.client.PresignedGetObject(ctx, u.bucket, key, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return signed.String(), nil
}

// ObjectKey builds the storage key for an attempt recording.
func ObjectKey(attemptID int64, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".webm"
	}
	return fmt.Sprintf("proctoring/%d/%s%s", attemptID, uuid.New().String(), ext)
}
