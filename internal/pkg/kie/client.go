// Package kie Kie.ai Veo 场景视频生成客户端
package kie

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"ugcstudio/internal/config"
	"ugcstudio/internal/pkg/jobs"
)

const (
	providerName   = "kie"
	defaultBaseURL = "https://api.kie.ai/api/v1/veo"
	defaultModel   = "veo3_fast"

	// 首场景以头像/产品图为参考，续接场景以上一场景末帧为首帧
	generationTypeReference  = "REFERENCE_2_VIDEO"
	generationTypeContinuity = "FIRST_AND_LAST_FRAMES_2_VIDEO"
)

// successFlag 取值
const (
	flagProcessing     = 0
	flagSuccess        = 1
	flagCreateFailed   = 2
	flagGenerateFailed = 3
)

// Client Kie.ai 场景视频生成客户端，实现 jobs.SceneClient
type Client struct {
	http    *jobs.HTTPCaller
	baseURL string
	model   string
	// seed 生成随机种子，测试中可替换
	seed func() int
}

var _ jobs.SceneClient = (*Client)(nil)

// NewClient 创建客户端
func NewClient(cfg *config.KieConfig, observer jobs.Observer) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("kie api key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	apiKey := cfg.APIKey
	return &Client{
		http: jobs.NewHTTPCaller(providerName, cfg.Timeout, observer, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}),
		baseURL: baseURL,
		model:   model,
		seed:    func() int { return 10000 + rand.IntN(90000) },
	}, nil
}

type generateRequest struct {
	Prompt            string   `json:"prompt"`
	ImageURLs         []string `json:"imageUrls"`
	Model             string   `json:"model"`
	AspectRatio       string   `json:"aspectRatio,omitempty"`
	Seeds             int      `json:"seeds"`
	EnableFallback    bool     `json:"enableFallback"`
	EnableTranslation bool     `json:"enableTranslation"`
	GenerationType    string   `json:"generationType"`
}

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type generateData struct {
	TaskID string `json:"taskId"`
}

type recordInfo struct {
	TaskID   string `json:"taskId"`
	Response *struct {
		ResultURLs []string `json:"resultUrls"`
	} `json:"response"`
	SuccessFlag  int    `json:"successFlag"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Submit 提交场景生成任务，返回 taskId
func (c *Client) Submit(ctx context.Context, in jobs.SceneInput) (string, error) {
	if len(in.ImageURLs) == 0 {
		return "", c.http.Envelope("submit", 0, "at least one image url is required")
	}

	genType := generationTypeReference
	if in.Continuation {
		genType = generationTypeContinuity
	}

	req := generateRequest{
		Prompt:            in.Prompt,
		ImageURLs:         in.ImageURLs,
		Model:             c.model,
		AspectRatio:       in.AspectRatio,
		Seeds:             c.seed(),
		EnableFallback:    false,
		EnableTranslation: true,
		GenerationType:    genType,
	}

	var resp envelope[generateData]
	if err := c.http.Do(ctx, "submit", http.MethodPost, c.baseURL+"/generate", req, &resp); err != nil {
		return "", err
	}
	if resp.Code != http.StatusOK || resp.Data.TaskID == "" {
		return "", c.http.Envelope("submit", resp.Code, resp.Msg)
	}

	log.Info().
		Str("provider", providerName).
		Str("job_id", resp.Data.TaskID).
		Str("generation_type", genType).
		Int("prompt_words", len(strings.Fields(in.Prompt))).
		Msg("scene generation submitted")

	return resp.Data.TaskID, nil
}

func (c *Client) recordInfo(ctx context.Context, op, jobID string) (*recordInfo, error) {
	endpoint := fmt.Sprintf("%s/record-info?taskId=%s", c.baseURL, url.QueryEscape(jobID))

	var resp envelope[recordInfo]
	if err := c.http.Do(ctx, op, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != http.StatusOK {
		return nil, c.http.Envelope(op, resp.Code, resp.Msg)
	}
	return &resp.Data, nil
}

// PollStatus 查询任务状态
func (c *Client) PollStatus(ctx context.Context, jobID string) (jobs.Status, error) {
	info, err := c.recordInfo(ctx, "status", jobID)
	if err != nil {
		return jobs.Status{}, err
	}
	return mapStatus(info), nil
}

// FetchResult 获取生成的视频 URL
func (c *Client) FetchResult(ctx context.Context, jobID string) (string, error) {
	info, err := c.recordInfo(ctx, "result", jobID)
	if err != nil {
		return "", err
	}
	if mapStatus(info).State != jobs.StateSucceeded {
		return "", jobs.ErrResultNotReady
	}
	if info.Response == nil || len(info.Response.ResultURLs) == 0 || info.Response.ResultURLs[0] == "" {
		return "", c.http.Envelope("result", 0, "no result url in completed task")
	}
	return info.Response.ResultURLs[0], nil
}

func mapStatus(info *recordInfo) jobs.Status {
	switch info.SuccessFlag {
	case flagSuccess:
		return jobs.Status{State: jobs.StateSucceeded, Detail: "success"}
	case flagCreateFailed, flagGenerateFailed:
		detail := info.ErrorMessage
		if detail == "" {
			detail = fmt.Sprintf("successFlag=%d", info.SuccessFlag)
		}
		return jobs.Status{State: jobs.StateFailed, Detail: detail}
	case flagProcessing:
		return jobs.Status{State: jobs.StateRunning, Detail: "processing"}
	default:
		return jobs.Status{State: jobs.StateRunning, Detail: fmt.Sprintf("successFlag=%d", info.SuccessFlag)}
	}
}
