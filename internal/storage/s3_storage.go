package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"digicop-backend/internal/config"
	"digicop-backend/internal/models"
)

const (
	videoPrefix = "uploads/"
	metaPrefix  = "meta/"
)

// S3Store keeps videos under uploads/ and sidecars under meta/ in one bucket.
type S3Store struct {
	bucket string
	client *minio.Client
}

func NewS3Store(cfg config.S3Config) (*S3Store, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &S3Store{bucket: cfg.Bucket, client: cl}, nil
}

func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (s *S3Store) WriteVideo(ctx context.Context, filename, contentType string, data []byte) error {
	if err := checkName(filename); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, videoPrefix+filename,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to write video: %w", err)
	}
	return nil
}

func (s *S3Store) WriteMetadata(ctx context.Context, record *models.UploadRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, metaPrefix+MetadataName(record),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (s *S3Store) OpenVideo(ctx context.Context, filename string) (io.ReadCloser, error) {
	if err := checkName(filename); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, videoPrefix+filename, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateErr(err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translateErr(err)
	}
	return obj, nil
}

func (s *S3Store) ListVideos(ctx context.Context) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: videoPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		names = append(names, path.Base(obj.Key))
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Store) ListMetadata(ctx context.Context) ([]models.UploadRecord, error) {
	var (
		errs    error
		records []models.UploadRecord
	)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: metaPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		rec, err := s.readRecord(ctx, obj.Key)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", obj.Key, err))
			continue
		}
		records = append(records, *rec)
	}
	return records, errs
}

func (s *S3Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

// PresignGet returns a temporary download URL for a stored video.
func (s *S3Store) PresignGet(ctx context.Context, filename string, ttl time.Duration) (*url.URL, error) {
	if err := checkName(filename); err != nil {
		return nil, err
	}
	return s.client.PresignedGetObject(ctx, s.bucket, videoPrefix+filename, ttl, nil)
}

func (s *S3Store) readRecord(ctx context.Context, key string) (*models.UploadRecord, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	var rec models.UploadRecord
	if err := json.NewDecoder(obj).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func translateErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}
