package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"ugcstudio/internal/model/generation"
	"ugcstudio/internal/pkg/id"
	genrepo "ugcstudio/internal/repository/generation"
)

// Recover 按调用方持有的 key 定位任务视图
// 先查缓存，未命中时从记录仓库重建：UUID 形态的 key 先按生成ID查，再按当前任务ID查
// 同一 key 的并发恢复只访问一次仓库
func (o *Orchestrator) Recover(ctx context.Context, key string) (*generation.TaskView, error) {
	if key == "" {
		return nil, invalid("task_id", "is required")
	}
	if view, ok := o.cache.Get(ctx, key); ok {
		return view, nil
	}

	v, err, shared := o.recovery.Do(key, func() (any, error) {
		return o.rebuild(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	view := v.(*generation.TaskView)
	if shared {
		cp := *view
		return &cp, nil
	}
	return view, nil
}

func (o *Orchestrator) rebuild(ctx context.Context, key string) (*generation.TaskView, error) {
	rec, err := o.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	o.remember(ctx, rec, key)
	log.Info().
		Str("key", key).
		Str("generation_id", rec.ID).
		Str("status", rec.Status.String()).
		Msg("task view recovered from store")
	return generation.NewTaskView(rec), nil
}

func (o *Orchestrator) lookup(ctx context.Context, key string) (*generation.Generation, error) {
	if id.IsValid(key) {
		rec, err := o.repo.FindByID(ctx, key)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, genrepo.ErrNotFound) {
			return nil, err
		}
	}

	rec, err := o.repo.FindByCurrentTaskID(ctx, key)
	if err != nil {
		return nil, o.notFound(err)
	}
	return rec, nil
}
