package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ugcstudio/internal/pkg/ctxutil"
	httpx "ugcstudio/internal/pkg/http"
	"ugcstudio/internal/pkg/jwt"
)

const (
	codeUnauthorized = 40101
	codeTokenInvalid = 40102
	codeTokenExpired = 40103
)

// bearerToken 从 Authorization header 提取 Bearer token
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func withUser(c *gin.Context, userID string) {
	c.Request = c.Request.WithContext(ctxutil.WithUserID(c.Request.Context(), userID))
	c.Set("user_id", userID)
}

// Auth JWT 认证中间件
// 校验身份服务签发的 Bearer token，通过后注入 user_id 到 context
func Auth(verifier *jwt.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpx.NewErrorResponse(codeUnauthorized, "missing or malformed authorization header"))
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			code := codeTokenInvalid
			if errors.Is(err, jwt.ErrExpiredToken) {
				code = codeTokenExpired
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpx.NewErrorResponse(code, "invalid or expired token"))
			return
		}

		withUser(c, claims.UserID())
		c.Next()
	}
}

// OptionalAuth 可选认证：有合法 token 时注入 user_id，没有 token 时按匿名放行
// 携带了无效 token 的请求仍然拒绝
func OptionalAuth(verifier *jwt.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejecting invalid optional token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpx.NewErrorResponse(codeTokenInvalid, "invalid or expired token"))
			return
		}

		withUser(c, claims.UserID())
		c.Next()
	}
}
