package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

// MinIOStore implements BlobStore against a MinIO (or S3-compatible) endpoint.
type MinIOStore struct {
	client     *minio.Client
	downloader *http.Client
	bucket     string
	baseURL    url.URL

	mu          sync.Mutex
	bucketReady bool
}

// New builds the configured blob store. When no endpoint is configured a
// Passthrough store is returned so callers degrade to transient URLs.
func New(cfg *config.Config) (BlobStore, error) {
	if cfg == nil || cfg.Storage.Endpoint == "" {
		return Passthrough{}, nil
	}

	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	return &MinIOStore{
		client:     client,
		downloader: &http.Client{Timeout: 5 * time.Minute},
		bucket:     cfg.Storage.Bucket,
		baseURL:    *client.EndpointURL(),
	}, nil
}

func (s *MinIOStore) Enabled() bool { return true }

// Upload stores the reader's contents and returns the object's stable URL.
// Keys are deterministic, so record columns holding the URL never need
// refreshing. size may be -1 when unknown.
func (s *MinIOStore) Upload(ctx context.Context, reader io.Reader, object string, size int64) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	_, err := s.client.PutObject(ctx, s.bucket, object, reader, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(object),
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "storage", "upload", fmt.Sprintf("put object %q", object), err)
	}
	return s.objectURL(object), nil
}

// Rehost downloads a transient result URL and re-uploads it under object.
func (s *MinIOStore) Rehost(ctx context.Context, transientURL, object string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transientURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := s.downloader.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "storage", "rehost", "download transient result", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", services.Wrap(services.ErrExternal, "storage", "rehost",
			fmt.Sprintf("transient URL returned %d", resp.StatusCode), nil)
	}

	size := resp.ContentLength
	if size == 0 {
		size = -1
	}
	return s.Upload(ctx, resp.Body, object, size)
}

// ensureBucket latches only success so a transient check failure is retried
// on the next upload. Buckets this store creates are given a public-read
// policy; pre-existing buckets keep whatever the operator configured.
func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return services.Wrap(services.ErrExternal, "storage", "bucket", "check bucket", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return services.Wrap(services.ErrExternal, "storage", "bucket", "create bucket", err)
		}
		if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
			return services.Wrap(services.ErrExternal, "storage", "bucket", "set bucket policy", err)
		}
	}
	s.bucketReady = true
	return nil
}

func (s *MinIOStore) objectURL(object string) string {
	u := s.baseURL
	u.Path = path.Join(u.Path, s.bucket, object)
	return u.String()
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

func contentTypeFor(object string) string {
	switch filepath.Ext(object) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
