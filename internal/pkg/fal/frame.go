package fal

import (
	"context"

	"ugcstudio/internal/config"
	"ugcstudio/internal/pkg/jobs"
)

// FrameExtractor 截取视频最后一帧，实现 jobs.FrameClient
type FrameExtractor struct {
	q *queue
}

var _ jobs.FrameClient = (*FrameExtractor)(nil)

// NewFrameExtractor 创建截帧客户端
func NewFrameExtractor(cfg *config.FalConfig, observer jobs.Observer) (*FrameExtractor, error) {
	q, err := newQueue(cfg, observer)
	if err != nil {
		return nil, err
	}
	return &FrameExtractor{q: q}, nil
}

type extractFrameRequest struct {
	VideoURL  string `json:"video_url"`
	FrameType string `json:"frame_type"`
}

type extractFrameResult struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// Submit 提交截帧任务
func (f *FrameExtractor) Submit(ctx context.Context, in jobs.FrameInput) (string, error) {
	return f.q.submit(ctx, "extract_frame", "/extract-frame", extractFrameRequest{
		VideoURL:  in.VideoURL,
		FrameType: "last",
	})
}

// PollStatus 查询截帧任务状态
func (f *FrameExtractor) PollStatus(ctx context.Context, jobID string) (jobs.Status, error) {
	return f.q.status(ctx, jobID)
}

// FetchResult 返回截取到的图片 URL
func (f *FrameExtractor) FetchResult(ctx context.Context, jobID string) (string, error) {
	var res extractFrameResult
	if err := f.q.result(ctx, jobID, &res); err != nil {
		return "", err
	}
	if len(res.Images) == 0 || res.Images[0].URL == "" {
		return "", f.q.http.Envelope("result", 0, "no images returned from frame extraction")
	}
	return res.Images[0].URL, nil
}
