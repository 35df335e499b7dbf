package middleware

import (
	"github.com/gin-gonic/gin"

	"ugcstudio/internal/pkg/ctxutil"
	"ugcstudio/internal/pkg/id"
)

// RequestIDHeader 请求ID header
const RequestIDHeader = "X-Request-ID"

// RequestID 为每个请求分配请求ID，客户端传入时沿用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = id.New()
		}

		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}
