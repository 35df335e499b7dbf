package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// maxErrorBody 错误响应体最多保留的字节数
const maxErrorBody = 512

// Observer 外部调用观测（指标）
type Observer interface {
	ObserveProviderCall(provider, op string, err error, elapsed time.Duration)
}

// HTTPCaller 各服务客户端共用的 JSON 请求封装
// 每个客户端持有独立的 http.Client（含超时），失败统一包装为 ProviderRequestError
type HTTPCaller struct {
	Provider string
	Client   *http.Client
	Observer Observer
	// Authorize 为请求设置鉴权头
	Authorize func(req *http.Request)
}

// NewHTTPCaller 创建请求封装，timeout<=0 时使用 30s
func NewHTTPCaller(provider string, timeout time.Duration, observer Observer, authorize func(*http.Request)) *HTTPCaller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCaller{
		Provider:  provider,
		Client:    &http.Client{Timeout: timeout},
		Observer:  observer,
		Authorize: authorize,
	}
}

// Do 发送请求并把 2xx 响应体解码到 out（out 为 nil 时丢弃响应体）
func (c *HTTPCaller) Do(ctx context.Context, op, method, url string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.Observer != nil {
			c.Observer.ObserveProviderCall(c.Provider, op, err, time.Since(start))
		}
	}()

	var reader io.Reader
	if body != nil {
		data, mErr := json.Marshal(body)
		if mErr != nil {
			return c.wrap(op, 0, fmt.Errorf("marshal request body: %w", mErr))
		}
		reader = bytes.NewReader(data)
	}

	req, rErr := http.NewRequestWithContext(ctx, method, url, reader)
	if rErr != nil {
		return c.wrap(op, 0, fmt.Errorf("create request: %w", rErr))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Authorize != nil {
		c.Authorize(req)
	}

	resp, dErr := c.Client.Do(req)
	if dErr != nil {
		return c.wrap(op, 0, fmt.Errorf("send request: %w", dErr))
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return c.wrap(op, resp.StatusCode, fmt.Errorf("read response: %w", readErr))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		log.Error().
			Str("provider", c.Provider).
			Str("op", op).
			Int("status_code", resp.StatusCode).
			Str("response", msg).
			Msg("provider request failed")
		return c.wrap(op, resp.StatusCode, errors.New(msg))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if uErr := json.Unmarshal(respBody, out); uErr != nil {
		return c.wrap(op, resp.StatusCode, fmt.Errorf("decode response: %w", uErr))
	}
	return nil
}

func (c *HTTPCaller) wrap(op string, statusCode int, err error) error {
	return &ProviderRequestError{Provider: c.Provider, Op: op, StatusCode: statusCode, Err: err}
}

// Envelope 校验失败时使用，包装业务层面的错误码
func (c *HTTPCaller) Envelope(op string, code int, msg string) error {
	return c.wrap(op, 0, fmt.Errorf("provider code %d: %s", code, msg))
}
