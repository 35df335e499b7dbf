package oss

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"ugcstudio/internal/pkg/storage"
)

// OSSStorage 阿里云OSS存储，bucket 需为公共读
type OSSStorage struct {
	bucket     *oss.Bucket
	bucketName string
	host       string
}

// NewOSSStorage 创建阿里云OSS存储
func NewOSSStorage(endpoint, bucketName, accessKeyID, accessKeySecret string) (*OSSStorage, error) {
	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	host := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return &OSSStorage{
		bucket:     bucket,
		bucketName: bucketName,
		host:       strings.TrimSuffix(host, "/"),
	}, nil
}

func (s *OSSStorage) Put(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	err := s.bucket.PutObject(key, data,
		oss.ContentType(contentType),
		oss.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return s.URL(key), nil
}

func (s *OSSStorage) Delete(ctx context.Context, key string) error {
	if err := s.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *OSSStorage) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.bucket.IsObjectExist(key, oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return exists, nil
}

func (s *OSSStorage) URL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, s.host, strings.TrimPrefix(key, "/"))
}

func (s *OSSStorage) Type() string {
	return string(storage.StorageTypeOSS)
}
