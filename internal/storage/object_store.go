package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"imagehive/internal/apperr"
	"imagehive/internal/config"
	"imagehive/internal/ids"
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
	for _, bucket := range []string{s.cfg.BucketOriginals, s.cfg.BucketVariants} {
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

// UploadKey builds a collision-safe object key for a source upload: the
// random suffix goes into the stem before the extension, so concurrent
// uploads of identical filenames never overwrite each other.
func UploadKey(batchID, filename, suffix string) string {
	ext := path.Ext(filename)
	stem := strings.TrimSuffix(path.Base(filename), ext)
	return path.Join(batchID, fmt.Sprintf("%s-%s%s", stem, suffix, ext))
}

// VariantKey places every output of one job under the job's batch
// directory, named "<title>.<format>".
func VariantKey(batchID, title, format string) string {
	return path.Join(batchID, fmt.Sprintf("%s.%s", title, format))
}

// SaveOriginal writes an uploaded source image and returns its key.
func (s *ObjectStore) SaveOriginal(ctx context.Context, batchID, filename, contentType string, src io.Reader, size int64) (string, error) {
	key := UploadKey(batchID, filename, ids.New())
	_, err := s.client.PutObject(ctx, s.cfg.BucketOriginals, key, src, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "store original", err)
	}
	return key, nil
}

func (s *ObjectStore) LoadOriginal(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.BucketOriginals, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "load original", err)
	}
	return obj, nil
}

// SaveVariant writes one derivative and returns the stored object size
// as reported by the store, not the in-memory buffer length.
func (s *ObjectStore) SaveVariant(ctx context.Context, key, contentType string, data []byte) (int64, error) {
	info, err := s.client.PutObject(ctx, s.cfg.BucketVariants, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "store variant", err)
	}
	return info.Size, nil
}

func (s *ObjectStore) RemoveVariant(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.BucketVariants, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Wrap(apperr.KindStorage, "remove variant", err)
	}
	return nil
}

// ListOriginalBatches returns, per top-level batch prefix in the
// originals bucket, the newest object modification time under it.
func (s *ObjectStore) ListOriginalBatches(ctx context.Context) (map[string]time.Time, error) {
	batches := make(map[string]time.Time)
	for obj := range s.client.ListObjects(ctx, s.cfg.BucketOriginals, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "list originals", obj.Err)
		}
		batch, _, ok := strings.Cut(obj.Key, "/")
		if !ok {
			continue
		}
		if last, seen := batches[batch]; !seen || obj.LastModified.After(last) {
			batches[batch] = obj.LastModified
		}
	}
	return batches, nil
}

func (s *ObjectStore) RemoveOriginalBatch(ctx context.Context, batchID string) error {
	prefix := batchID + "/"
	for obj := range s.client.ListObjects(ctx, s.cfg.BucketOriginals, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return apperr.Wrap(apperr.KindStorage, "list batch", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.cfg.BucketOriginals, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return apperr.Wrap(apperr.KindStorage, "remove original", err)
		}
	}
	return nil
}
