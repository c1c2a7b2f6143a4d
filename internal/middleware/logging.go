package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	Logger    *zap.Logger
	SkipPaths []string // 跳过日志的路径
}

// Logging 请求日志中间件
func Logging(config *LoggingConfig) gin.HandlerFunc {
	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skipPaths[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			logger.RequestID(GetRequestID(c)),
			logger.Method(c.Request.Method),
			logger.Path(path),
			logger.String("query", c.Request.URL.RawQuery),
			logger.StatusCode(statusCode),
			logger.Latency(time.Since(start)),
			logger.IP(c.ClientIP()),
			logger.String("user_agent", c.Request.UserAgent()),
		}

		if userID := GetUserID(c); userID > 0 {
			fields = append(fields, logger.UserID(userID), logger.String("role", GetRole(c)))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logger.String("errors", c.Errors.String()))
		}

		// 根据状态码选择日志级别
		switch {
		case statusCode >= 500:
			config.Logger.Error("HTTP Request", fields...)
		case statusCode >= 400:
			config.Logger.Warn("HTTP Request", fields...)
		default:
			config.Logger.Info("HTTP Request", fields...)
		}
	}
}
