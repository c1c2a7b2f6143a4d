// Package middleware 提供 HTTP 中间件
package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/housing-visit-backend/internal/common/jwt"
	"github.com/dumeirei/housing-visit-backend/internal/common/response"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// 上下文键
const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
)

// Auth 认证中间件，令牌中的用户ID和角色写入上下文
func Auth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		claims, err := jwtManager.ParseToken(token)
		if err != nil {
			if stderrors.Is(err, jwt.ErrTokenExpired) {
				response.Unauthorized(c, "登录已过期，请重新登录")
			} else {
				response.Unauthorized(c, "无效的令牌")
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)

		c.Next()
	}
}

// extractToken 从 Authorization 头提取 Bearer 令牌
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(ContextKeyUserID)
}

// GetRole 从上下文获取角色
func GetRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}

// GetActor 从上下文获取当前操作人
func GetActor(c *gin.Context) (models.Actor, bool) {
	userID := GetUserID(c)
	if userID == 0 {
		return models.Actor{}, false
	}
	return models.Actor{UserID: userID, Role: GetRole(c)}, true
}

// RequireRoles 要求指定角色
func RequireRoles(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		if _, ok := roleSet[role]; !ok {
			response.Forbidden(c, "权限不足")
			c.Abort()
			return
		}

		c.Next()
	}
}
