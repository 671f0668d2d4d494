package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/siweauth/core"
	"go.uber.org/zap"
)

const tokenKey = "sessionToken"

// SessionMiddleware extracts the session credential from the cookie or an
// Authorization: Bearer header. Whether the session is live is decided by
// the handler.
func SessionMiddleware(cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credential(c, cookieName)
		if token == "" {
			abortWithError(c, core.ErrNotAuthenticated)
			return
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

func credential(c *gin.Context, cookieName string) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}
