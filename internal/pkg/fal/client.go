// Package fal fal.ai ffmpeg-api 队列客户端（截帧、视频合成）
package fal

import (
	"bytes"
	"context"
	"encoding/json"
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
	providerName   = "fal"
	defaultBaseURL = "https://queue.fal.run/fal-ai/ffmpeg-api"
)

// 队列状态
const (
	statusInQueue    = "IN_QUEUE"
	statusInProgress = "IN_PROGRESS"
	statusCompleted  = "COMPLETED"
	statusFailed     = "FAILED"
	statusError      = "ERROR"
)

// queue 两类任务共用的队列访问
type queue struct {
	http    *jobs.HTTPCaller
	baseURL string
}

func newQueue(cfg *config.FalConfig, observer jobs.Observer) (*queue, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("fal api key is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := cfg.APIKey
	return &queue{
		http: jobs.NewHTTPCaller(providerName, cfg.Timeout, observer, func(req *http.Request) {
			req.Header.Set("Authorization", "Key "+apiKey)
		}),
		baseURL: baseURL,
	}, nil
}

type queueResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

// firstOf 服务端有时返回数组，取第一个元素
func firstOf(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			return errors.New("empty response array")
		}
		raw = items[0]
	}
	return json.Unmarshal(raw, out)
}

func (q *queue) call(ctx context.Context, op, method, endpoint string, body, out any) error {
	var raw json.RawMessage
	if err := q.http.Do(ctx, op, method, endpoint, body, &raw); err != nil {
		return err
	}
	if err := firstOf(raw, out); err != nil {
		return &jobs.ProviderRequestError{Provider: providerName, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (q *queue) submit(ctx context.Context, op, path string, body any) (string, error) {
	var resp queueResponse
	if err := q.call(ctx, op, http.MethodPost, q.baseURL+path, body, &resp); err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		return "", q.http.Envelope(op, 0, "missing request_id")
	}
	log.Info().Str("provider", providerName).Str("op", op).Str("job_id", resp.RequestID).Msg("queue request submitted")
	return resp.RequestID, nil
}

func (q *queue) status(ctx context.Context, requestID string) (jobs.Status, error) {
	var resp queueResponse
	endpoint := fmt.Sprintf("%s/requests/%s/status", q.baseURL, url.PathEscape(requestID))
	if err := q.call(ctx, "status", http.MethodGet, endpoint, nil, &resp); err != nil {
		return jobs.Status{}, err
	}
	return mapStatus(resp), nil
}

// result 先确认任务完成，再读取结果
func (q *queue) result(ctx context.Context, requestID string, out any) error {
	st, err := q.status(ctx, requestID)
	if err != nil {
		return err
	}
	if st.State != jobs.StateSucceeded {
		return jobs.ErrResultNotReady
	}
	endpoint := fmt.Sprintf("%s/requests/%s", q.baseURL, url.PathEscape(requestID))
	return q.call(ctx, "result", http.MethodGet, endpoint, nil, out)
}

func mapStatus(resp queueResponse) jobs.Status {
	switch resp.Status {
	case statusInQueue:
		return jobs.Status{State: jobs.StateQueued, Detail: resp.Status}
	case statusInProgress:
		return jobs.Status{State: jobs.StateRunning, Detail: resp.Status}
	case statusCompleted:
		if resp.Error != "" {
			return jobs.Status{State: jobs.StateFailed, Detail: resp.Error}
		}
		return jobs.Status{State: jobs.StateSucceeded, Detail: resp.Status}
	case statusFailed, statusError:
		detail := resp.Error
		if detail == "" {
			detail = resp.Status
		}
		return jobs.Status{State: jobs.StateFailed, Detail: detail}
	default:
		return jobs.Status{State: jobs.StateRunning, Detail: resp.Status}
	}
}
