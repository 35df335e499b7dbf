// Package syncso sync.so 口型同步客户端
package syncso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"ugcstudio/internal/config"
	"ugcstudio/internal/pkg/jobs"
)

const (
	providerName    = "syncso"
	defaultBaseURL  = "https://api.sync.so/v2"
	defaultModel    = "lipsync-2"
	defaultVoiceID  = "M1ydWt7KnBCiuv4CnEDC"
	defaultSyncMode = "loop"
	ttsProvider     = "elevenlabs"
)

// Client sync.so 口型同步客户端，实现 jobs.LipSyncClient
type Client struct {
	http     *jobs.HTTPCaller
	baseURL  string
	model    string
	voiceID  string
	syncMode string
}

var _ jobs.LipSyncClient = (*Client)(nil)

// NewClient 创建客户端
func NewClient(cfg *config.SyncConfig, observer jobs.Observer) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sync.so api key is required")
	}

	c := &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		model:    cfg.Model,
		voiceID:  cfg.VoiceID,
		syncMode: cfg.SyncMode,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.voiceID == "" {
		c.voiceID = defaultVoiceID
	}
	if c.syncMode == "" {
		c.syncMode = defaultSyncMode
	}

	apiKey := cfg.APIKey
	c.http = jobs.NewHTTPCaller(providerName, cfg.Timeout, observer, func(req *http.Request) {
		req.Header.Set("x-api-key", apiKey)
	})
	return c, nil
}

type ttsConfig struct {
	Name    string `json:"name"`
	VoiceID string `json:"voiceId"`
	Script  string `json:"script"`
}

type input struct {
	Type     string     `json:"type"`
	URL      string     `json:"url,omitempty"`
	Provider *ttsConfig `json:"provider,omitempty"`
}

type generateRequest struct {
	Model   string            `json:"model"`
	Input   []input           `json:"input"`
	Options map[string]string `json:"options,omitempty"`
}

type generation struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	OutputURL string `json:"outputUrl"`
	Error     string `json:"error"`
}

// Submit 提交口型同步任务，VoiceID 为空时使用默认音色
func (c *Client) Submit(ctx context.Context, in jobs.LipSyncInput) (string, error) {
	voiceID := in.VoiceID
	if voiceID == "" {
		voiceID = c.voiceID
	}

	req := generateRequest{
		Model: c.model,
		Input: []input{
			{Type: "video", URL: in.VideoURL},
			{Type: "text", Provider: &ttsConfig{Name: ttsProvider, VoiceID: voiceID, Script: in.Script}},
		},
		Options: map[string]string{"sync_mode": c.syncMode},
	}

	var resp generation
	if err := c.http.Do(ctx, "submit", http.MethodPost, c.baseURL+"/generate", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", c.http.Envelope("submit", 0, "missing generation id")
	}

	log.Info().
		Str("provider", providerName).
		Str("job_id", resp.ID).
		Str("voice_id", voiceID).
		Msg("lip-sync submitted")

	return resp.ID, nil
}

func (c *Client) get(ctx context.Context, op, jobID string) (*generation, error) {
	endpoint := fmt.Sprintf("%s/generate/%s", c.baseURL, url.PathEscape(jobID))
	var resp generation
	if err := c.http.Do(ctx, op, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PollStatus 查询口型同步任务状态
func (c *Client) PollStatus(ctx context.Context, jobID string) (jobs.Status, error) {
	g, err := c.get(ctx, "status", jobID)
	if err != nil {
		return jobs.Status{}, err
	}
	return mapStatus(g), nil
}

// FetchResult 返回口型同步后的视频 URL
func (c *Client) FetchResult(ctx context.Context, jobID string) (string, error) {
	g, err := c.get(ctx, "result", jobID)
	if err != nil {
		return "", err
	}
	if mapStatus(g).State != jobs.StateSucceeded {
		return "", jobs.ErrResultNotReady
	}
	if g.OutputURL == "" {
		return "", c.http.Envelope("result", 0, "no outputUrl in completed generation")
	}
	return g.OutputURL, nil
}

func mapStatus(g *generation) jobs.Status {
	switch g.Status {
	case "PENDING":
		return jobs.Status{State: jobs.StateQueued, Detail: g.Status}
	case "PROCESSING":
		return jobs.Status{State: jobs.StateRunning, Detail: g.Status}
	case "COMPLETED":
		return jobs.Status{State: jobs.StateSucceeded, Detail: g.Status}
	case "FAILED", "REJECTED":
		detail := g.Error
		if detail == "" {
			detail = g.Status
		}
		return jobs.Status{State: jobs.StateFailed, Detail: detail}
	default:
		return jobs.Status{State: jobs.StateRunning, Detail: g.Status}
	}
}
