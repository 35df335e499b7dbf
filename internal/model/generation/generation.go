package generation

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SceneSeconds 每个场景固定覆盖 8 秒
const SceneSeconds = 8

// LipSyncTimedOut 口型同步超时写入 lip_sync_errors 的原因
const LipSyncTimedOut = "lip-sync timed out"

// Generation 一次多场景视频生成的完整记录
// 流水线进度以此为唯一可信来源，内存中的 TaskView 随时可以从这里重建
type Generation struct {
	ID              string   `bson:"id" json:"id"`                                                   // 生成ID（UUID）
	UserID          *string  `bson:"user_id,omitempty" json:"user_id,omitempty"`                     // 匿名生成为空
	Script          string   `bson:"script" json:"script"`                                           // 完整脚本
	SceneScripts    []string `bson:"scene_scripts" json:"scene_scripts"`                             // 每个场景的脚本，创建时切分后不再变化
	AvatarURL       string   `bson:"avatar_url" json:"avatar_url"`                                   // 首场景参考头像
	AvatarID        string   `bson:"avatar_id,omitempty" json:"avatar_id,omitempty"`                 // 头像标识（用于选择音色）
	ProductImageURL string   `bson:"product_image_url,omitempty" json:"product_image_url,omitempty"` // 产品图（可选）
	ProductName     string   `bson:"product_name,omitempty" json:"product_name,omitempty"`
	AspectRatio     string   `bson:"aspect_ratio" json:"aspect_ratio"`
	Language        string   `bson:"language" json:"language"`
	Duration        int      `bson:"duration" json:"duration"`                                       // 目标时长（秒）
	TotalScenes     int      `bson:"total_scenes" json:"total_scenes"`
	CurrentScene    int      `bson:"current_scene" json:"current_scene"`                             // 已完成的场景数（从 0 开始计数）

	SceneURLs       []string `bson:"scene_urls" json:"scene_urls"`               // 已完成的原始场景视频，只追加
	SceneTaskIDs    []string `bson:"scene_task_ids" json:"scene_task_ids"`       // 每个场景的生成任务ID
	SyncTaskIDs     []string `bson:"sync_task_ids" json:"sync_task_ids"`         // 按场景下标的口型同步任务ID
	SyncedSceneURLs []string `bson:"synced_scene_urls" json:"synced_scene_urls"` // 按场景下标的口型同步结果
	LipSyncErrors   []string `bson:"lip_sync_errors" json:"lip_sync_errors"`     // 按场景下标的口型同步失败原因

	FrameExtractionRequestID string `bson:"frame_extraction_request_id,omitempty" json:"frame_extraction_request_id,omitempty"`
	FrameSourceURL           string `bson:"frame_source_url,omitempty" json:"frame_source_url,omitempty"` // 截帧所用的场景视频
	LastFrameURL             string `bson:"last_frame_url,omitempty" json:"last_frame_url,omitempty"`
	CombineRequestID         string `bson:"combine_request_id,omitempty" json:"combine_request_id,omitempty"`
	CurrentTaskID            string `bson:"current_task_id,omitempty" json:"current_task_id,omitempty"`   // 当前场景的外部任务ID

	// LipSyncDeadline 进入 lip_syncing 时写入，过后仍无结论的场景记为超时
	LipSyncDeadline *time.Time `bson:"lip_sync_deadline,omitempty" json:"lip_sync_deadline,omitempty"`

	FinalVideoURL string `bson:"final_video_url,omitempty" json:"final_video_url,omitempty"`
	ThumbnailURL  string `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	Status        Status `bson:"status" json:"status"`
	ErrorMessage  string `bson:"error_message,omitempty" json:"error_message,omitempty"`

	// StepLocks 正在提交中的外部任务（step -> 过期时间），防止并发轮询重复提交
	StepLocks map[string]time.Time `bson:"step_locks,omitempty" json:"-"`
	Version   int64                `bson:"version" json:"-"` // 乐观锁版本号

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// Collection 返回集合名称
func (g *Generation) Collection() string {
	return "generations"
}

// EnsureIndexes 创建和维护索引
func (g *Generation) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(g.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "current_task_id", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_current_task"),
		},
		{
			Keys:    bson.D{{Key: "combine_request_id", Value: 1}},
			Options: options.Index().SetName("idx_combine_request"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_status"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// SceneCount 按时长计算场景数：ceil(duration / 8)
func SceneCount(durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	return (durationSeconds + SceneSeconds - 1) / SceneSeconds
}

// Owner 返回所属用户（匿名为空字符串）
func (g *Generation) Owner() string {
	if g.UserID == nil {
		return ""
	}
	return *g.UserID
}

// HasSceneURL 场景视频是否已记录
func (g *Generation) HasSceneURL(url string) bool {
	for _, u := range g.SceneURLs {
		if u == url {
			return true
		}
	}
	return false
}

// SceneSettled 场景的口型同步是否已有结论（成功或失败）
func (g *Generation) SceneSettled(index int) bool {
	return at(g.SyncedSceneURLs, index) != "" || at(g.LipSyncErrors, index) != ""
}

// AllScenesSettled 所有场景均已生成且口型同步均已有结论
func (g *Generation) AllScenesSettled() bool {
	if len(g.SceneURLs) < g.TotalScenes {
		return false
	}
	for i := 0; i < g.TotalScenes; i++ {
		if !g.SceneSettled(i) {
			return false
		}
	}
	return true
}

// ExpireLipSyncs 截止时间已过时把仍无结论的场景记为超时，返回被标记的场景下标
func (g *Generation) ExpireLipSyncs(now time.Time) []int {
	if !g.Status.Is(KindLipSyncing) || g.LipSyncDeadline == nil || now.Before(*g.LipSyncDeadline) {
		return nil
	}
	g.EnsureSlots()
	var expired []int
	for i := 0; i < g.TotalScenes && i < len(g.SceneURLs); i++ {
		if !g.SceneSettled(i) {
			g.LipSyncErrors[i] = LipSyncTimedOut
			expired = append(expired, i)
		}
	}
	return expired
}

// CombineURLs 合成输入：优先使用口型同步结果，缺失时回退到原始场景视频
func (g *Generation) CombineURLs() []string {
	urls := make([]string, 0, len(g.SceneURLs))
	for i, raw := range g.SceneURLs {
		if synced := at(g.SyncedSceneURLs, i); synced != "" {
			urls = append(urls, synced)
			continue
		}
		if raw != "" {
			urls = append(urls, raw)
		}
	}
	return urls
}

// SyncTaskID 场景的口型同步任务ID
func (g *Generation) SyncTaskID(index int) string {
	return at(g.SyncTaskIDs, index)
}

// SceneScript 场景脚本（从 0 开始的下标）
func (g *Generation) SceneScript(index int) string {
	return at(g.SceneScripts, index)
}

// EnsureSlots 保证按场景下标的数组长度等于场景数
func (g *Generation) EnsureSlots() {
	g.SyncTaskIDs = resize(g.SyncTaskIDs, g.TotalScenes)
	g.SyncedSceneURLs = resize(g.SyncedSceneURLs, g.TotalScenes)
	g.LipSyncErrors = resize(g.LipSyncErrors, g.TotalScenes)
}

// Clone 深拷贝，供内存实现与缓存使用
func (g *Generation) Clone() *Generation {
	c := *g
	if g.UserID != nil {
		uid := *g.UserID
		c.UserID = &uid
	}
	c.SceneScripts = append([]string(nil), g.SceneScripts...)
	c.SceneURLs = append([]string(nil), g.SceneURLs...)
	c.SceneTaskIDs = append([]string(nil), g.SceneTaskIDs...)
	c.SyncTaskIDs = append([]string(nil), g.SyncTaskIDs...)
	c.SyncedSceneURLs = append([]string(nil), g.SyncedSceneURLs...)
	c.LipSyncErrors = append([]string(nil), g.LipSyncErrors...)
	if g.StepLocks != nil {
		c.StepLocks = make(map[string]time.Time, len(g.StepLocks))
		for k, v := range g.StepLocks {
			c.StepLocks[k] = v
		}
	}
	if g.LipSyncDeadline != nil {
		d := *g.LipSyncDeadline
		c.LipSyncDeadline = &d
	}
	if g.DeletedAt != nil {
		d := *g.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

func at(s []string, i int) string {
	if i < 0 || i >= len(s) {
		return ""
	}
	return s[i]
}

func resize(s []string, n int) []string {
	if len(s) >= n {
		return s
	}
	out := make([]string, n)
	copy(out, s)
	return out
}
