// Package jobs 定义外部异步任务服务的统一契约
// 场景视频生成、截帧、口型同步、视频合成都以 Submit / PollStatus / FetchResult 三个操作对外暴露
package jobs

import (
	"context"
	"errors"
	"fmt"
)

// State 外部任务状态
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status 单次状态查询结果
type Status struct {
	State  State
	Detail string // 服务方返回的原始状态或错误信息
}

// Client 外部异步任务客户端
// 客户端内部从不重试，重试由调用方的轮询节奏驱动
type Client[In, Out any] interface {
	// Submit 提交任务，返回外部任务 ID
	Submit(ctx context.Context, in In) (string, error)
	// PollStatus 查询一次任务状态，不阻塞等待
	PollStatus(ctx context.Context, jobID string) (Status, error)
	// FetchResult 获取结果，任务未成功前返回 ErrResultNotReady
	FetchResult(ctx context.Context, jobID string) (Out, error)
}

// SceneInput 场景视频生成输入
type SceneInput struct {
	Prompt       string
	ImageURLs    []string // 首场景: 头像(+产品图)；续接场景: 上一场景最后一帧
	AspectRatio  string
	Language     string
	Continuation bool
}

// FrameInput 截帧输入
type FrameInput struct {
	VideoURL string
}

// LipSyncInput 口型同步输入
type LipSyncInput struct {
	VideoURL string
	Script   string
	VoiceID  string
}

// ComposeInput 视频合成输入
type ComposeInput struct {
	SceneURLs    []string
	SceneSeconds int
}

// ComposeOutput 视频合成结果
type ComposeOutput struct {
	VideoURL     string
	ThumbnailURL string
}

type (
	SceneClient   = Client[SceneInput, string]
	FrameClient   = Client[FrameInput, string]
	LipSyncClient = Client[LipSyncInput, string]
	ComposeClient = Client[ComposeInput, ComposeOutput]
)

// ErrResultNotReady 在任务成功前调用 FetchResult
var ErrResultNotReady = errors.New("job result not ready")

// ProviderRequestError 请求层面的失败（网络、鉴权、限流、响应格式）
// 对调用方而言是可重试的，不会使生成记录失败
type ProviderRequestError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderRequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: http %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}

// JobFailedError 服务方报告任务本身失败
type JobFailedError struct {
	Provider string
	JobID    string
	Detail   string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("%s job %s failed: %s", e.Provider, e.JobID, e.Detail)
}

// IsJobFailed 判断是否为服务方报告的任务失败
func IsJobFailed(err error) bool {
	var je *JobFailedError
	return errors.As(err, &je)
}

// IsProviderRequestError 判断是否为请求层面的失败
func IsProviderRequestError(err error) bool {
	var pe *ProviderRequestError
	return errors.As(err, &pe)
}
