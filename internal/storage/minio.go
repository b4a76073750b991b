package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"jokernotes/internal/config"
	"jokernotes/internal/domain/services"
)

// MinIOCoverStore keeps cover images in an S3-compatible bucket and hands
// out public URLs for them.
type MinIOCoverStore struct {
	client  *minio.Client
	bucket  string
	baseURL string // "<public url>/<bucket>/"
	logger  *slog.Logger
}

var _ services.CoverStore = (*MinIOCoverStore)(nil)

// NewMinIOCoverStore creates the client and ensures the bucket exists
func NewMinIOCoverStore(ctx context.Context, cfg config.MinIOConfig, logger *slog.Logger) (*MinIOCoverStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	s, err := newCoverStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// MakeBucket fails when the bucket already exists
		exists, xerr := s.client.BucketExists(ctx, s.bucket)
		if xerr != nil || !exists {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

func newCoverStore(cfg config.MinIOConfig, logger *slog.Logger) (*MinIOCoverStore, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}

	public := cfg.PublicURL
	if public == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		public = scheme + "://" + cfg.Endpoint
	}

	return &MinIOCoverStore{
		client:  mc,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(public, "/") + "/" + cfg.Bucket + "/",
		logger:  logger,
	}, nil
}

// Upload stores body under key and returns the public reference
func (s *MinIOCoverStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload cover %s: %w", key, err)
	}
	return s.baseURL + key, nil
}

// Remove deletes the object behind ref. References outside the bucket are ignored.
func (s *MinIOCoverStore) Remove(ctx context.Context, ref string) error {
	key, ok := s.keyFor(ref)
	if !ok {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove cover %s: %w", key, err)
	}
	return nil
}

// Contains reports whether ref points into this store's bucket
func (s *MinIOCoverStore) Contains(ref string) bool {
	_, ok := s.keyFor(ref)
	return ok
}

// OwnedBy reports whether ref is a cover this store keeps for ownerID
func (s *MinIOCoverStore) OwnedBy(ref, ownerID string) bool {
	key, ok := s.keyFor(ref)
	return ok && ownerID != "" && strings.HasPrefix(key, ownerPrefix(ownerID))
}

func (s *MinIOCoverStore) keyFor(ref string) (string, bool) {
	if !strings.HasPrefix(ref, s.baseURL) {
		return "", false
	}
	key := strings.TrimPrefix(ref, s.baseURL)
	// dot segments could step out of an owner's prefix
	if key == "" || path.Clean(key) != key {
		return "", false
	}
	return key, true
}

// CoverKey builds an object key for a document cover under the owner's
// prefix, keeping the uploaded file's extension.
func CoverKey(ownerID, documentID, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s%s-%d%s", ownerPrefix(ownerID), documentID, now.UnixNano(), ext)
}

func ownerPrefix(ownerID string) string {
	return "covers/" + url.PathEscape(ownerID) + "/"
}
