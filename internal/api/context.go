package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"jobboard/internal/api/middleware"
)

// handlerLogger 优先返回请求上下文中的 slog.Logger。
func handlerLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

func idFromContext(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	return idFromContext(c, "userID")
}

func companyUserIDFromContext(c *gin.Context) (uint, bool) {
	return idFromContext(c, "companyUserID")
}
