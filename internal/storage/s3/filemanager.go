package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

// Config points the file manager at an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// FileManager implements ports.ObjectStore over a single bucket.
type FileManager struct {
	client *minio.Client
	bucket string
}

func NewFileManager(cfg Config) (*FileManager, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &FileManager{client: client, bucket: cfg.Bucket}, nil
}

var _ ports.ObjectStore = (*FileManager)(nil)

func (f *FileManager) List(ctx context.Context, prefix string, max int) ([]ports.ObjectInfo, error) {
	if max <= 0 {
		max = 1000
	}
	var infos []ports.ObjectInfo
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		infos = append(infos, objectInfo(obj))
		if len(infos) >= max {
			break
		}
	}
	return infos, nil
}

func (f *FileManager) Stat(ctx context.Context, key string) (ports.ObjectInfo, error) {
	stat, err := f.client.StatObject(ctx, f.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return ports.ObjectInfo{}, domain.ErrNotFound
		}
		return ports.ObjectInfo{}, err
	}
	return ports.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ContentType:  stat.ContentType,
	}, nil
}

func (f *FileManager) Remove(ctx context.Context, key string) error {
	if _, err := f.Stat(ctx, key); err != nil {
		return err
	}
	return f.client.RemoveObject(ctx, f.bucket, key, minio.RemoveObjectOptions{})
}

func (f *FileManager) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("refusing to remove empty prefix")
	}
	removed := 0
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return removed, obj.Err
		}
		if err := f.client.RemoveObject(ctx, f.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (f *FileManager) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := f.client.PresignedGetObject(ctx, f.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func objectInfo(obj minio.ObjectInfo) ports.ObjectInfo {
	return ports.ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		LastModified: obj.LastModified,
		ContentType:  obj.ContentType,
	}
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return false
}
