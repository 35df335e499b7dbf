package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/rs/zerolog/log"

	"ugcstudio/internal/pkg/id"
	"ugcstudio/internal/pkg/storage"
)

// MaxProductImageSize 产品图大小上限
const MaxProductImageSize = 10 << 20

var (
	ErrUnsupportedImage = errors.New("unsupported image type, expected png, jpeg or webp")
	ErrImageTooLarge    = errors.New("image exceeds 10MB")
)

var imageExts = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// AssetService 上传生成所需的素材（产品图）
type AssetService interface {
	UploadProductImage(ctx context.Context, req *UploadProductImageRequest) (*UploadProductImageResult, error)
}

// UploadProductImageRequest 产品图上传请求
type UploadProductImageRequest struct {
	UserID string
	Size   int64
	Data   io.Reader
}

// UploadProductImageResult 产品图上传结果
type UploadProductImageResult struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type assetService struct {
	storage storage.Storage
}

// NewAssetService 创建素材服务
func NewAssetService(s storage.Storage) AssetService {
	return &assetService{storage: s}
}

// UploadProductImage 按文件内容识别类型，存到 products/{user_id}/{uuid}.{ext}
func (s *assetService) UploadProductImage(ctx context.Context, req *UploadProductImageRequest) (*UploadProductImageResult, error) {
	if req.Size > MaxProductImageSize {
		return nil, ErrImageTooLarge
	}

	br := bufio.NewReaderSize(req.Data, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read image: %w", err)
	}
	contentType := http.DetectContentType(head)
	ext, ok := imageExts[contentType]
	if !ok {
		return nil, ErrUnsupportedImage
	}

	key := path.Join("products", req.UserID, id.New()+"."+ext)
	url, err := s.storage.Put(ctx, key, io.LimitReader(br, MaxProductImageSize), contentType)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to store product image")
		return nil, err
	}

	log.Info().Str("user_id", req.UserID).Str("key", key).Str("storage", s.storage.Type()).Msg("product image uploaded")
	return &UploadProductImageResult{
		URL:         url,
		Key:         key,
		ContentType: contentType,
		Size:        req.Size,
	}, nil
}
