package fal

import (
	"context"

	"ugcstudio/internal/config"
	"ugcstudio/internal/pkg/jobs"
)

// defaultSceneSeconds 每个场景固定 8 秒
const defaultSceneSeconds = 8

// Composer 把多个场景拼接为成片，实现 jobs.ComposeClient
type Composer struct {
	q *queue
}

var _ jobs.ComposeClient = (*Composer)(nil)

// NewComposer 创建合成客户端
func NewComposer(cfg *config.FalConfig, observer jobs.Observer) (*Composer, error) {
	q, err := newQueue(cfg, observer)
	if err != nil {
		return nil, err
	}
	return &Composer{q: q}, nil
}

type keyframe struct {
	URL       string `json:"url"`
	Timestamp int    `json:"timestamp"`
	Duration  int    `json:"duration"`
}

type track struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Keyframes []keyframe `json:"keyframes"`
}

type composeRequest struct {
	Tracks []track `json:"tracks"`
}

type composeResult struct {
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Submit 提交合成任务，所有场景放在同一视频轨道上首尾相接
func (c *Composer) Submit(ctx context.Context, in jobs.ComposeInput) (string, error) {
	seconds := in.SceneSeconds
	if seconds <= 0 {
		seconds = defaultSceneSeconds
	}

	keyframes := make([]keyframe, 0, len(in.SceneURLs))
	for i, u := range in.SceneURLs {
		keyframes = append(keyframes, keyframe{URL: u, Timestamp: i * seconds, Duration: seconds})
	}

	return c.q.submit(ctx, "compose", "/compose", composeRequest{
		Tracks: []track{{ID: "1", Type: "video", Keyframes: keyframes}},
	})
}

// PollStatus 查询合成任务状态
func (c *Composer) PollStatus(ctx context.Context, jobID string) (jobs.Status, error) {
	return c.q.status(ctx, jobID)
}

// FetchResult 返回成片与封面 URL
func (c *Composer) FetchResult(ctx context.Context, jobID string) (jobs.ComposeOutput, error) {
	var res composeResult
	if err := c.q.result(ctx, jobID, &res); err != nil {
		return jobs.ComposeOutput{}, err
	}
	if res.VideoURL == "" {
		return jobs.ComposeOutput{}, c.q.http.Envelope("result", 0, "no video_url in compose result")
	}
	return jobs.ComposeOutput{VideoURL: res.VideoURL, ThumbnailURL: res.ThumbnailURL}, nil
}
