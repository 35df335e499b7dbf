package video

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ugcstudio/internal/ai"
	"ugcstudio/internal/pkg/ctxutil"
	httputil "ugcstudio/internal/pkg/http"
	"ugcstudio/internal/service/pipeline"
)

// GenerateRequest 发起生成请求
type GenerateRequest struct {
	Script          string `json:"script" example:"Здравейте! Днес ще ви покажа..."`
	AvatarURL       string `json:"avatar_url" example:"https://cdn.example.com/avatar.png"`
	AvatarID        string `json:"avatar_id,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty" example:"9:16"`
	Language        string `json:"language,omitempty" example:"bg"`
	Duration        int    `json:"duration,omitempty" example:"24"`
	ProductImageURL string `json:"product_image_url,omitempty"`
	ProductName     string `json:"product_name,omitempty"`
}

// Generate 发起多场景视频生成
// @Summary      发起生成
// @Description  创建生成记录并提交第 1 个场景；携带 Token 时记录归属当前用户。首场景提交失败时仍返回 202 和生成ID，下一次状态轮询会重新提交
// @Tags         视频生成
// @Accept       json
// @Produce      json
// @Param        request  body      GenerateRequest  true  "生成参数"
// @Success      201      {object}  httputil.SuccessResponse{data=pipeline.StartResult}
// @Success      202      {object}  httputil.SuccessResponse{data=pipeline.StartResult}
// @Failure      400      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /api/v1/video/generate [post]
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	owner, _ := ctxutil.GetUserID(c.Request.Context())
	res, err := h.pipeline.StartGeneration(c.Request.Context(), pipeline.StartRequest{
		Script:          req.Script,
		AvatarURL:       req.AvatarURL,
		AvatarID:        req.AvatarID,
		AspectRatio:     req.AspectRatio,
		Language:        req.Language,
		Duration:        req.Duration,
		ProductImageURL: req.ProductImageURL,
		ProductName:     req.ProductName,
		OwnerID:         owner,
	})
	if err != nil {
		if res != nil && res.GenerationID != "" {
			log.Warn().Err(err).Str("generation_id", res.GenerationID).Msg("first scene submission deferred")
			ok(c, http.StatusAccepted, "generation created, first scene will be submitted on the next status poll", res)
			return
		}
		writeError(c, err)
		return
	}

	ok(c, http.StatusCreated, "generation started", res)
}

// GenerateScript 生成 UGC 脚本
// @Summary      生成脚本
// @Description  按产品信息生成只包含台词的 UGC 脚本，词数按时长控制在每 8 秒 16-22 个词
// @Tags         视频生成
// @Accept       json
// @Produce      json
// @Param        request  body      ai.ScriptRequest  true  "脚本参数"
// @Success      200      {object}  httputil.SuccessResponse{data=ai.ScriptResult}
// @Failure      400      {object}  ErrorResponse
// @Failure      503      {object}  ErrorResponse
// @Router       /api/v1/video/script [post]
func (h *Handler) GenerateScript(c *gin.Context) {
	if h.scripts == nil {
		c.JSON(http.StatusServiceUnavailable, httputil.NewErrorResponse(httputil.CodeAIUnavailable, "script generation is not configured"))
		return
	}

	var req ai.ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.scripts.Generate(c.Request.Context(), &req)
	if err != nil {
		if isValidation(err) {
			writeError(c, err)
			return
		}
		log.Error().Err(err).Msg("script generation failed")
		c.JSON(http.StatusServiceUnavailable, httputil.NewErrorResponse(httputil.CodeAIUnavailable, "script generation failed", err.Error()))
		return
	}

	ok(c, http.StatusOK, "script generated", res)
}
