package storage

import (
	"context"
	"io"
)

// Storage 对象存储接口
// 返回的 URL 必须能被外部视频服务直接访问（产品图会作为参考图提交）
type Storage interface {
	// Put 上传对象，返回公开访问 URL
	Put(ctx context.Context, key string, data io.Reader, contentType string) (string, error)

	// Delete 删除对象，不存在时不报错
	Delete(ctx context.Context, key string) error

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// URL 对象的公开访问 URL
	URL(key string) string

	// Type 存储类型
	Type() string
}

// StorageType 存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // 本地文件系统
	StorageTypeOSS   StorageType = "oss"   // 阿里云OSS
)
