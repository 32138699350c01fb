package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kompas/api/internal/config"
)

type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.cfg.BucketPhotos, s.cfg.BucketAvatars} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("bucket exists %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// PutPhoto stores an event photo under a date-prefixed key and returns the
// object key and its public URL.
func (s *ObjectStore) PutPhoto(ctx context.Context, id string, ext string, data []byte, contentType string) (string, string, error) {
	objectKey := buildObjectKey(id, ext)
	return s.put(ctx, s.cfg.BucketPhotos, objectKey, data, contentType)
}

func (s *ObjectStore) PutAvatar(ctx context.Context, id string, ext string, data []byte, contentType string) (string, string, error) {
	objectKey := buildObjectKey(id, ext)
	return s.put(ctx, s.cfg.BucketAvatars, objectKey, data, contentType)
}

func (s *ObjectStore) put(ctx context.Context, bucket string, objectKey string, data []byte, contentType string) (string, string, error) {
	_, err := s.client.PutObject(ctx, bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("put object: %w", err)
	}
	return objectKey, s.publicURL(bucket, objectKey), nil
}

func (s *ObjectStore) RemovePhoto(ctx context.Context, objectKey string) error {
	return s.client.RemoveObject(ctx, s.cfg.BucketPhotos, objectKey, minio.RemoveObjectOptions{})
}

func (s *ObjectStore) publicURL(bucket, objectKey string) string {
	base := strings.TrimSuffix(s.cfg.Endpoint, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, objectKey)
}

func buildObjectKey(id string, ext string) string {
	datePrefix := time.Now().UTC().Format("2006/01/02")
	return path.Join(datePrefix, fmt.Sprintf("%s.%s", id, ext))
}
