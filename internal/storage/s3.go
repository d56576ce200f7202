package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/models"
)

// S3Config holds the connection settings of an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3 implements Provider on top of an S3-compatible object store. The
// repository root maps to Prefix inside Bucket.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	region string

	// mu guards ready. A failed bucket check is retried on the next call.
	mu    sync.Mutex
	ready bool
}

// NewS3 creates an S3 provider. The bucket is checked, and created if
// missing, on first use.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("storage: s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	// Empty keys yield anonymous requests, which public buckets accept.
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init s3 client: %w", err)
	}

	return &S3{
		client: client,
		bucket: bucket,
		prefix: normalizePrefix(cfg.Prefix),
		region: region,
	}, nil
}

// normalizePrefix returns "" or a prefix ending in exactly one "/".
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// objectKey maps a repository path onto an object key.
func (s *S3) objectKey(p string) string {
	return s.prefix + rel(p)
}

// repoPath maps an object key back onto a repository path.
func (s *S3) repoPath(key string) string {
	return Clean(strings.TrimPrefix(key, s.prefix))
}

// dirPrefix returns the key prefix listing the contents of dir.
func (s *S3) dirPrefix(dir string) string {
	r := rel(dir)
	if r == "" {
		return s.prefix
	}
	return s.prefix + r + "/"
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: ensure bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("storage: create bucket %s: %w", s.bucket, err)
		}
	}
	s.ready = true
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// ReadFile downloads the object behind p.
func (s *S3) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(p), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

func (s *S3) list(ctx context.Context, dir string, recursive bool) ([]models.FileInfo, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	var out []models.FileInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.dirPrefix(dir),
		Recursive: recursive,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", dir, obj.Err)
		}
		// Non-recursive listings report sub-directories as common prefixes.
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, models.FileInfo{
			Path:    s.repoPath(obj.Key),
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	return out, nil
}

// ReadDir lists the objects directly below dir. Object stores have no
// directories, so an empty listing is reported as not found.
func (s *S3) ReadDir(ctx context.Context, dir string) ([]models.FileInfo, error) {
	out, err := s.list(ctx, dir, false)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("storage: read dir %s: %w", dir, apperr.ErrNotFound)
	}
	return out, nil
}

// Walk lists every object under dir.
func (s *S3) Walk(ctx context.Context, dir string) ([]models.FileInfo, error) {
	return s.list(ctx, dir, true)
}

// ExistsFile reports whether the object behind p exists.
func (s *S3) ExistsFile(ctx context.Context, p string) (bool, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.bucket, s.objectKey(p), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", p, err)
	}
	return true, nil
}

func putOptions(p string) minio.PutObjectOptions {
	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return minio.PutObjectOptions{ContentType: contentType}
}

// WriteFile uploads content to p.
func (s *S3) WriteFile(ctx context.Context, p string, content []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.objectKey(p), bytes.NewReader(content), int64(len(content)), putOptions(p))
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	return nil
}

// CreateFile uploads content to p with If-None-Match: *, so the store
// rejects the write when the object already exists.
func (s *S3) CreateFile(ctx context.Context, p string, content []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	opts := putOptions(p)
	opts.SetMatchETagExcept("*")
	_, err := s.client.PutObject(ctx, s.bucket, s.objectKey(p), bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "PreconditionFailed" {
			return fmt.Errorf("storage: create %s: %w", p, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: create %s: %w", p, err)
	}
	return nil
}

// DeleteFile removes the object behind p.
func (s *S3) DeleteFile(ctx context.Context, p string) error {
	ok, err := s.ExistsFile(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("storage: delete %s: %w", p, apperr.ErrNotFound)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectKey(p), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

var (
	_ Provider = (*S3)(nil)
	_ Lister   = (*S3)(nil)
	_ Creator  = (*S3)(nil)
)
