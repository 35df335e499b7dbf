package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"ugcstudio/internal/model/generation"
	genrepo "ugcstudio/internal/repository/generation"
)

// ErrVideoNotFound 视频不存在，或不属于当前用户
var ErrVideoNotFound = errors.New("video not found")

// LibraryService 用户视频库
// 只读取和软删除生成记录，不推进流水线
type LibraryService interface {
	// List 按创建时间倒序列出用户的生成记录，completedOnly 时只返回有成片的记录
	List(ctx context.Context, userID string, completedOnly bool) ([]*generation.Generation, error)

	// Get 获取单条记录，非所有者视为不存在
	Get(ctx context.Context, userID, id string) (*generation.Generation, error)

	// Delete 软删除
	Delete(ctx context.Context, userID, id string) error
}

type libraryService struct {
	repo genrepo.GenerationRepository
}

// NewLibraryService 创建视频库服务
func NewLibraryService(repo genrepo.GenerationRepository) LibraryService {
	return &libraryService{repo: repo}
}

func (s *libraryService) List(ctx context.Context, userID string, completedOnly bool) ([]*generation.Generation, error) {
	return s.repo.ListByUser(ctx, userID, completedOnly)
}

func (s *libraryService) Get(ctx context.Context, userID, id string) (*generation.Generation, error) {
	g, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, genrepo.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	if g.Owner() != userID {
		return nil, ErrVideoNotFound
	}
	return g, nil
}

func (s *libraryService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, genrepo.ErrNotFound) {
			return ErrVideoNotFound
		}
		return err
	}
	log.Info().Str("generation_id", id).Str("user_id", userID).Msg("video deleted")
	return nil
}
