package generation

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ugcstudio/internal/model/generation"
)

var (
	// ErrNotFound 记录不存在（或已删除）
	ErrNotFound = errors.New("generation not found")
	// ErrVersionConflict 记录在读取后已被其他请求修改
	ErrVersionConflict = errors.New("generation version conflict")
)

// GenerationRepository 生成记录仓库接口
type GenerationRepository interface {
	Create(ctx context.Context, g *generation.Generation) error
	FindByID(ctx context.Context, id string) (*generation.Generation, error)
	FindByCurrentTaskID(ctx context.Context, taskID string) (*generation.Generation, error)
	FindByCombineRequestID(ctx context.Context, requestID string) (*generation.Generation, error)
	ListByUser(ctx context.Context, userID string, completedOnly bool) ([]*generation.Generation, error)
	// Update 以 version 做比较并交换，一次写入一个状态迁移涉及的全部字段
	Update(ctx context.Context, g *generation.Generation) error
	// AcquireStep 获取某个外部提交步骤的短期锁，已被占用时返回 false
	// 返回的 lease 为写入的过期时间，释放时凭它确认锁仍属于自己
	AcquireStep(ctx context.Context, id, step string, ttl time.Duration) (lease time.Time, ok bool, err error)
	// ReleaseStep 释放步骤锁；锁已过期并被他人重新获取时不做任何事
	ReleaseStep(ctx context.Context, id, step string, lease time.Time) error
	Delete(ctx context.Context, id, userID string) error
}

// GenerationRepo 生成记录仓库实现
type GenerationRepo struct {
	coll *mongo.Collection
}

var _ GenerationRepository = (*GenerationRepo)(nil)

// NewGenerationRepo 创建生成记录仓库
func NewGenerationRepo(db *mongo.Database) *GenerationRepo {
	var g generation.Generation
	return &GenerationRepo{coll: db.Collection(g.Collection())}
}

// Create 创建生成记录
func (r *GenerationRepo) Create(ctx context.Context, g *generation.Generation) error {
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.Version == 0 {
		g.Version = 1
	}
	g.EnsureSlots()
	if g.SceneURLs == nil {
		g.SceneURLs = []string{}
	}
	if g.SceneTaskIDs == nil {
		g.SceneTaskIDs = []string{}
	}
	_, err := r.coll.InsertOne(ctx, g)
	return err
}

func (r *GenerationRepo) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*generation.Generation, error) {
	filter["deleted_at"] = nil
	var g generation.Generation
	if err := r.coll.FindOne(ctx, filter, opts...).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.EnsureSlots()
	return &g, nil
}

// FindByID 根据ID查询
func (r *GenerationRepo) FindByID(ctx context.Context, id string) (*generation.Generation, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

// FindByCurrentTaskID 根据当前场景的外部任务ID查询（取最近更新的一条）
func (r *GenerationRepo) FindByCurrentTaskID(ctx context.Context, taskID string) (*generation.Generation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	return r.findOne(ctx, bson.M{"current_task_id": taskID}, opts)
}

// FindByCombineRequestID 根据合成任务ID查询
func (r *GenerationRepo) FindByCombineRequestID(ctx context.Context, requestID string) (*generation.Generation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	return r.findOne(ctx, bson.M{"combine_request_id": requestID}, opts)
}

// ListByUser 查询用户的生成记录，按创建时间倒序
func (r *GenerationRepo) ListByUser(ctx context.Context, userID string, completedOnly bool) ([]*generation.Generation, error) {
	filter := bson.M{"user_id": userID, "deleted_at": nil}
	if completedOnly {
		filter["status"] = generation.Completed().String()
		filter["final_video_url"] = bson.M{"$nin": bson.A{nil, ""}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	gens := make([]*generation.Generation, 0)
	if err := cursor.All(ctx, &gens); err != nil {
		return nil, err
	}
	return gens, nil
}

// Update 比较并交换更新
// 成功后 g.Version 自增；若 version 不匹配返回 ErrVersionConflict
func (r *GenerationRepo) Update(ctx context.Context, g *generation.Generation) error {
	now := time.Now()
	set := bson.M{
		"current_scene":               g.CurrentScene,
		"scene_urls":                  g.SceneURLs,
		"scene_task_ids":              g.SceneTaskIDs,
		"sync_task_ids":               g.SyncTaskIDs,
		"synced_scene_urls":           g.SyncedSceneURLs,
		"lip_sync_errors":             g.LipSyncErrors,
		"frame_extraction_request_id": g.FrameExtractionRequestID,
		"frame_source_url":            g.FrameSourceURL,
		"last_frame_url":              g.LastFrameURL,
		"combine_request_id":          g.CombineRequestID,
		"current_task_id":             g.CurrentTaskID,
		"lip_sync_deadline":           g.LipSyncDeadline,
		"final_video_url":             g.FinalVideoURL,
		"thumbnail_url":               g.ThumbnailURL,
		"status":                      g.Status,
		"error_message":               g.ErrorMessage,
		"version":                     g.Version + 1,
		"updated_at":                  now,
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": g.ID, "version": g.Version, "deleted_at": nil},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, cErr := r.coll.CountDocuments(ctx, bson.M{"id": g.ID, "deleted_at": nil})
		if cErr != nil {
			return cErr
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	g.Version++
	g.UpdatedAt = now
	return nil
}

// AcquireStep 获取步骤锁
// 锁存放在 step_locks.<step>，值为过期时间；不参与 version 比较
func (r *GenerationRepo) AcquireStep(ctx context.Context, id, step string, ttl time.Duration) (time.Time, bool, error) {
	now := time.Now()
	// Mongo 日期只保存到毫秒，截断后释放时才能按值匹配
	lease := now.Add(ttl).Truncate(time.Millisecond)
	field := "step_locks." + step
	filter := bson.M{
		"id":         id,
		"deleted_at": nil,
		"$or": bson.A{
			bson.M{field: bson.M{"$exists": false}},
			bson.M{field: bson.M{"$lte": now}},
		},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{field: lease}})
	if err != nil {
		return time.Time{}, false, err
	}
	if res.MatchedCount != 1 {
		return time.Time{}, false, nil
	}
	return lease, true, nil
}

// ReleaseStep 释放步骤锁，只删除仍等于 lease 的锁
func (r *GenerationRepo) ReleaseStep(ctx context.Context, id, step string, lease time.Time) error {
	field := "step_locks." + step
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, field: lease},
		bson.M{"$unset": bson.M{field: ""}},
	)
	return err
}

// Delete 软删除（仅限所有者）
func (r *GenerationRepo) Delete(ctx context.Context, id, userID string) error {
	now := time.Now()
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "user_id": userID, "deleted_at": nil},
		bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
