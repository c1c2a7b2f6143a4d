// Package middleware 提供 HTTP 中间件
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
)

// 上下文键，与认证中间件写入的键一致
const (
	contextKeyUserID    = "user_id"
	contextKeyRole      = "role"
	contextKeyRequestID = "request_id"
)

// OperationLogger 操作日志中间件，记录看房与预订的写操作
type OperationLogger struct {
	log *zap.Logger
}

// NewOperationLogger 创建操作日志中间件，log 为空时使用全局日志
func NewOperationLogger(log *zap.Logger) *OperationLogger {
	if log == nil {
		log = logger.GetLogger()
	}
	return &OperationLogger{log: log.Named("operation")}
}

// OperationConfig 操作配置
type OperationConfig struct {
	Module      string
	Action      string
	TargetType  string
	GetTargetID func(*gin.Context) *int64
}

// moduleActionMap 路由到操作的映射
var moduleActionMap = map[string]OperationConfig{
	"POST /api/v1/visits": {
		Module:     "visit",
		Action:     "create",
		TargetType: "visit",
	},
	"PATCH /api/v1/visits/:id/status": {
		Module:     "visit",
		Action:     "update_status",
		TargetType: "visit",
	},
	"PATCH /api/v1/visits/:id/assign": {
		Module:     "visit",
		Action:     "assign",
		TargetType: "visit",
	},
	"POST /api/v1/bookings": {
		Module:     "booking",
		Action:     "create",
		TargetType: "booking",
	},
	"PATCH /api/v1/bookings/:id/activate": {
		Module:     "booking",
		Action:     "activate",
		TargetType: "booking",
	},
	"PATCH /api/v1/bookings/:id/cancel": {
		Module:     "booking",
		Action:     "cancel",
		TargetType: "booking",
	},
}

// Log 按路由映射记录写操作
func (l *OperationLogger) Log() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.shouldLog(c) {
			c.Next()
			return
		}

		requestBody := readBody(c)

		c.Next()

		config, ok := moduleActionMap[c.Request.Method+" "+c.FullPath()]
		if !ok {
			config = l.getDefaultConfig(c)
		}
		l.logOperation(c, requestBody, config)
	}
}

// shouldLog 只记录写操作
func (l *OperationLogger) shouldLog(c *gin.Context) bool {
	switch c.Request.Method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// readBody 读取请求体并放回
func readBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	return body
}

// logOperation 写入操作日志，未登录的请求不记录
func (l *OperationLogger) logOperation(c *gin.Context, requestBody []byte, config OperationConfig) {
	userID := c.GetInt64(contextKeyUserID)
	if userID == 0 {
		return
	}

	fields := []zap.Field{
		logger.Module(config.Module),
		logger.Action(config.Action),
		logger.UserID(userID),
		zap.String("role", c.GetString(contextKeyRole)),
		logger.RequestID(c.GetString(contextKeyRequestID)),
		logger.IP(c.ClientIP()),
		logger.StatusCode(c.Writer.Status()),
	}

	if ua := c.Request.UserAgent(); ua != "" {
		fields = append(fields, zap.String("user_agent", ua))
	}
	if config.TargetType != "" {
		fields = append(fields, zap.String("target_type", config.TargetType))
	}

	var targetID *int64
	if config.GetTargetID != nil {
		targetID = config.GetTargetID(c)
	} else {
		targetID = l.getTargetID(c)
	}
	if targetID != nil {
		fields = append(fields, zap.Int64("target_id", *targetID))
	}

	if len(requestBody) > 0 {
		var data interface{}
		if err := json.Unmarshal(requestBody, &data); err == nil {
			fields = append(fields, zap.Any("request", l.filterSensitiveData(data)))
		}
	}

	if c.Writer.Status() >= 400 {
		l.log.Warn("操作失败", fields...)
		return
	}
	l.log.Info("操作完成", fields...)
}

// getDefaultConfig 从路径与方法推断模块和操作
func (l *OperationLogger) getDefaultConfig(c *gin.Context) OperationConfig {
	path := c.FullPath()

	module := "unknown"
	if strings.Contains(path, "/visits") {
		module = "visit"
	} else if strings.Contains(path, "/bookings") {
		module = "booking"
	}

	action := "unknown"
	switch c.Request.Method {
	case "POST":
		action = "create"
	case "PUT", "PATCH":
		action = "update"
	case "DELETE":
		action = "delete"
	}

	return OperationConfig{
		Module:     module,
		Action:     action,
		TargetType: module,
	}
}

// getTargetID 从路径参数获取目标 ID
func (l *OperationLogger) getTargetID(c *gin.Context) *int64 {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// filterSensitiveData 过滤敏感数据
func (l *OperationLogger) filterSensitiveData(data interface{}) interface{} {
	sensitiveFields := []string{
		"password", "token", "secret",
		"phone", "id_card",
	}

	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			lowerKey := strings.ToLower(key)
			isSensitive := false
			for _, sf := range sensitiveFields {
				if strings.Contains(lowerKey, sf) {
					isSensitive = true
					break
				}
			}
			if isSensitive {
				result[key] = "***"
			} else {
				result[key] = l.filterSensitiveData(value)
			}
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = l.filterSensitiveData(item)
		}
		return result
	default:
		return data
	}
}
