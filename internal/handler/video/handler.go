// Package video 多场景视频生成接口
// 所有处理器都是流水线的薄适配层：绑定参数、调用流水线、映射错误
package video

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"ugcstudio/internal/ai"
	httputil "ugcstudio/internal/pkg/http"
	"ugcstudio/internal/pkg/jobs"
	"ugcstudio/internal/service/pipeline"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// Pipeline 处理器依赖的流水线能力
type Pipeline interface {
	StartGeneration(ctx context.Context, req pipeline.StartRequest) (*pipeline.StartResult, error)
	PollStatus(ctx context.Context, key, generationID string) (*pipeline.StatusResult, error)
	RequestFrameExtraction(ctx context.Context, generationID, previousSceneURL string) (string, error)
	PollFrameExtraction(ctx context.Context, requestID, generationID string) (*pipeline.FrameResult, error)
	SubmitNextScene(ctx context.Context, generationID, frameURL string, sceneNumber int) (string, error)
	RequestLipSync(ctx context.Context, generationID string, sceneIndex int, videoURL, script string) (string, error)
	PollLipSync(ctx context.Context, jobID, generationID string, sceneIndex int) (*pipeline.LipSyncResult, error)
	RequestCombine(ctx context.Context, generationID string) (string, error)
	PollCombine(ctx context.Context, requestID, generationID string) (*pipeline.CombineResult, error)
}

// ScriptGenerator 脚本生成能力
type ScriptGenerator interface {
	Generate(ctx context.Context, req *ai.ScriptRequest) (*ai.ScriptResult, error)
}

// Handler 视频模块处理器
type Handler struct {
	pipeline Pipeline
	scripts  ScriptGenerator
}

// NewHandler 创建视频模块处理器，scripts 为 nil 时脚本生成接口返回 503
func NewHandler(p Pipeline, scripts ScriptGenerator) *Handler {
	return &Handler{pipeline: p, scripts: scripts}
}

// Register 注册路由
func (h *Handler) Register(rg *gin.RouterGroup, optionalAuth gin.HandlerFunc) {
	g := rg.Group("/video")
	g.POST("/script", optionalAuth, h.GenerateScript)
	g.POST("/generate", optionalAuth, h.Generate)
	g.GET("/status/:task_id", h.Status)
	g.GET("/scene-status", h.SceneStatus)
	g.POST("/next-scene", h.NextScene)
	g.GET("/frame-status/:request_id", h.FrameStatus)
	g.POST("/generate-scene", h.GenerateScene)
	g.POST("/lipsync", h.LipSync)
	g.GET("/lipsync-status/:job_id", h.LipSyncStatus)
	g.POST("/combine", h.Combine)
	g.GET("/combine-status/:request_id", h.CombineStatus)
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, httputil.NewSuccessResponse(message, data))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, "invalid request", err.Error()))
}

func isValidation(err error) bool {
	var verrs validator.ValidationErrors
	return pipeline.IsValidation(err) || errors.As(err, &verrs)
}

// writeError 把流水线错误映射为 HTTP 响应
func writeError(c *gin.Context, err error) {
	var (
		status  int
		code    int
		message string
	)

	switch {
	case isValidation(err):
		status, code, message = http.StatusBadRequest, httputil.CodeInvalidRequest, "invalid request"
	case errors.Is(err, pipeline.ErrInsufficientScenes):
		status, code, message = http.StatusBadRequest, httputil.CodeInsufficientScenes, "not enough scenes to combine"
	case errors.Is(err, pipeline.ErrGenerationNotFound):
		status, code, message = http.StatusNotFound, httputil.CodeNotFound, "generation not found"
	case errors.Is(err, pipeline.ErrStepInProgress):
		status, code, message = http.StatusConflict, httputil.CodeStepInProgress, "step already in progress, retry shortly"
	case errors.Is(err, pipeline.ErrInvalidState):
		status, code, message = http.StatusConflict, httputil.CodeInvalidState, "operation not allowed in current state"
	case errors.Is(err, pipeline.ErrGenerationFailed):
		status, code, message = http.StatusUnprocessableEntity, httputil.CodeGenerationFailed, "generation has failed"
	case jobs.IsJobFailed(err):
		status, code, message = http.StatusUnprocessableEntity, httputil.CodeProviderJobFailed, "provider job failed"
	case jobs.IsProviderRequestError(err):
		status, code, message = http.StatusBadGateway, httputil.CodeProviderUnavailable, "upstream provider unavailable"
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString("request_id")).Msg("unhandled pipeline error")
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "internal server error"))
		return
	}

	c.JSON(status, httputil.NewErrorResponse(code, message, err.Error()))
}
