// Package asset 生成素材上传接口
package asset

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ugcstudio/internal/pkg/ctxutil"
	httputil "ugcstudio/internal/pkg/http"
	"ugcstudio/internal/service"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// Handler 素材处理器
type Handler struct {
	assetService service.AssetService
}

// NewHandler 创建素材处理器
func NewHandler(assetService service.AssetService) *Handler {
	return &Handler{assetService: assetService}
}

// Register 注册路由
func (h *Handler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.POST("/assets/product-image", auth, h.UploadProductImage)
}

// UploadProductImage 上传产品图
// @Summary      上传产品图
// @Description  通过 multipart/form-data 上传产品图（png/jpeg/webp，不超过 10MB），返回可直接用于 product_image_url 的地址
// @Tags         素材
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "产品图"
// @Success      201   {object}  httputil.SuccessResponse{data=service.UploadProductImageResult}
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      413   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /api/v1/assets/product-image [post]
func (h *Handler) UploadProductImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, "invalid file", err.Error()))
		return
	}
	if file.Size > service.MaxProductImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, httputil.NewErrorResponse(httputil.CodeInvalidRequest, service.ErrImageTooLarge.Error()))
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, "failed to open file", err.Error()))
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	userID, _ := ctxutil.GetUserID(ctx)

	res, err := h.assetService.UploadProductImage(ctx, &service.UploadProductImageRequest{
		UserID: userID,
		Size:   file.Size,
		Data:   f,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedImage):
			c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, err.Error()))
		case errors.Is(err, service.ErrImageTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, httputil.NewErrorResponse(httputil.CodeInvalidRequest, err.Error()))
		default:
			log.Error().Err(err).Str("user_id", userID).Msg("product image upload failed")
			c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "failed to upload image"))
		}
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse("image uploaded", res))
}
