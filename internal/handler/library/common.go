package library

import (
	"time"

	"ugcstudio/internal/model/generation"
	httputil "ugcstudio/internal/pkg/http"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// VideoInfo 视频库条目 DTO
type VideoInfo struct {
	ID              string   `json:"id"`                      // 生成ID
	Status          string   `json:"status"`                  // 流水线状态
	Script          string   `json:"script"`                  // 完整脚本
	ProductName     string   `json:"product_name,omitempty"`  // 产品名
	AvatarURL       string   `json:"avatar_url"`              // 头像
	AspectRatio     string   `json:"aspect_ratio"`            // 画幅
	Language        string   `json:"language"`                // 语言
	Duration        int      `json:"duration"`                // 目标时长（秒）
	TotalScenes     int      `json:"total_scenes"`            // 场景数
	SceneURLs       []string `json:"scene_urls"`              // 原始场景视频
	SyncedSceneURLs []string `json:"synced_scene_urls"`       // 口型同步后的场景视频
	VideoURL        string   `json:"video_url,omitempty"`     // 成片
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"` // 缩略图
	ErrorMessage    string   `json:"error_message,omitempty"` // 失败原因
	CreatedAt       string   `json:"created_at"`              // 创建时间
	UpdatedAt       string   `json:"updated_at"`              // 更新时间
}

// ListVideosResponseData 视频列表
type ListVideosResponseData struct {
	Videos []VideoInfo `json:"videos"`
	Total  int         `json:"total"`
}

func toVideoInfo(g *generation.Generation) VideoInfo {
	info := VideoInfo{
		ID:              g.ID,
		Status:          g.Status.String(),
		Script:          g.Script,
		ProductName:     g.ProductName,
		AvatarURL:       g.AvatarURL,
		AspectRatio:     g.AspectRatio,
		Language:        g.Language,
		Duration:        g.Duration,
		TotalScenes:     g.TotalScenes,
		SceneURLs:       g.SceneURLs,
		SyncedSceneURLs: g.SyncedSceneURLs,
		VideoURL:        g.FinalVideoURL,
		ThumbnailURL:    g.ThumbnailURL,
		ErrorMessage:    g.ErrorMessage,
		CreatedAt:       g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       g.UpdatedAt.Format(time.RFC3339),
	}
	if info.SceneURLs == nil {
		info.SceneURLs = []string{}
	}
	if info.SyncedSceneURLs == nil {
		info.SyncedSceneURLs = []string{}
	}
	return info
}
