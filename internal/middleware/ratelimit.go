package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/response"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RedisClient *redis.Client
	KeyPrefix   string                    // Redis 键前缀
	Limit       int                       // 窗口内允许的次数
	Window      time.Duration             // 时间窗口
	KeyFunc     func(*gin.Context) string // 自定义键生成函数
}

// RateLimit 固定窗口限流中间件，未配置 Redis 或 Redis 出错时放行
func RateLimit(config *RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.RedisClient == nil || config.Limit <= 0 {
			c.Next()
			return
		}

		key := config.KeyPrefix + config.KeyFunc(c)
		ctx := c.Request.Context()

		count, err := config.RedisClient.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("限流计数失败", logger.Module("ratelimit"), logger.Err(err))
			c.Next()
			return
		}
		if count == 1 {
			config.RedisClient.Expire(ctx, key, config.Window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		if int(count) > config.Limit {
			ttl, _ := config.RedisClient.TTL(ctx, key).Result()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))

			response.TooManyRequests(c, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(config.Limit-int(count)))

		c.Next()
	}
}

// UserRateLimit 按用户限流，未登录时按 IP
func UserRateLimit(redisClient *redis.Client, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return RateLimit(&RateLimitConfig{
		RedisClient: redisClient,
		KeyPrefix:   "ratelimit:" + scope + ":",
		Limit:       limit,
		Window:      window,
		KeyFunc: func(c *gin.Context) string {
			if userID := GetUserID(c); userID > 0 {
				return fmt.Sprintf("user:%d", userID)
			}
			return "ip:" + c.ClientIP()
		},
	})
}
