// Package library 用户视频库接口
package library

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ugcstudio/internal/pkg/ctxutil"
	httputil "ugcstudio/internal/pkg/http"
	"ugcstudio/internal/service"
)

// Handler 视频库处理器
type Handler struct {
	libraryService service.LibraryService
}

// NewHandler 创建视频库处理器
func NewHandler(libraryService service.LibraryService) *Handler {
	return &Handler{libraryService: libraryService}
}

// Register 注册路由，所有接口都需要登录
func (h *Handler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	g := rg.Group("/videos", auth)
	g.GET("", h.ListVideos)
	g.GET("/completed", h.ListCompletedVideos)
	g.GET("/:id", h.GetVideo)
	g.DELETE("/:id", h.DeleteVideo)
}

// ListVideos 列出当前用户的全部生成
// @Summary      视频列表
// @Description  按创建时间倒序返回当前用户的全部生成记录（含进行中和失败的）
// @Tags         视频库
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  httputil.SuccessResponse{data=ListVideosResponseData}
// @Failure      401  {object}  ErrorResponse
// @Router       /api/v1/videos [get]
func (h *Handler) ListVideos(c *gin.Context) {
	h.list(c, false)
}

// ListCompletedVideos 列出当前用户已完成的视频
// @Summary      已完成视频
// @Description  只返回已完成且有成片的记录
// @Tags         视频库
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  httputil.SuccessResponse{data=ListVideosResponseData}
// @Failure      401  {object}  ErrorResponse
// @Router       /api/v1/videos/completed [get]
func (h *Handler) ListCompletedVideos(c *gin.Context) {
	h.list(c, true)
}

func (h *Handler) list(c *gin.Context, completedOnly bool) {
	ctx := c.Request.Context()
	userID, _ := ctxutil.GetUserID(ctx)

	gens, err := h.libraryService.List(ctx, userID, completedOnly)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to list videos")
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "failed to list videos", err.Error()))
		return
	}

	videos := make([]VideoInfo, 0, len(gens))
	for _, g := range gens {
		videos = append(videos, toVideoInfo(g))
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("ok", ListVideosResponseData{Videos: videos, Total: len(videos)}))
}

// GetVideo 获取单个视频
// @Summary      视频详情
// @Tags         视频库
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "生成ID"
// @Success      200  {object}  httputil.SuccessResponse{data=VideoInfo}
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/videos/{id} [get]
func (h *Handler) GetVideo(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := ctxutil.GetUserID(ctx)

	g, err := h.libraryService.Get(ctx, userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("ok", toVideoInfo(g)))
}

// DeleteVideo 删除视频
// @Summary      删除视频
// @Description  软删除，删除后列表与状态查询都不再返回该记录
// @Tags         视频库
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "生成ID"
// @Success      200  {object}  httputil.SuccessResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/videos/{id} [delete]
func (h *Handler) DeleteVideo(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := ctxutil.GetUserID(ctx)

	if err := h.libraryService.Delete(ctx, userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("video deleted", nil))
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrVideoNotFound) {
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse(httputil.CodeNotFound, "video not found"))
		return
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("video library request failed")
	c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "internal server error"))
}
