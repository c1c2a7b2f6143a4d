// Package handler 提供 API Handler 的通用辅助函数
// 用于减少 Handler 层的代码重复，统一错误处理、认证检查、参数解析等操作
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/housing-visit-backend/internal/common/response"
	"github.com/dumeirei/housing-visit-backend/internal/middleware"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// ============================================================================
// 统一错误处理
// ============================================================================

// HandleError 处理错误并发送适当的响应
// 如果 err 为 nil，返回 false（表示无错误需要处理）
// 如果 err 不为 nil，按错误类别发送响应并返回 true（调用方应该 return）
//
// 使用示例:
//
//	result, err := service.DoSomething()
//	if HandleError(c, err) {
//	    return
//	}
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	response.Error(c, err)
	return true
}

// MustSucceed 便捷封装：如果有错误则返回错误响应，否则返回成功响应
func MustSucceed(c *gin.Context, err error, data interface{}) {
	if HandleError(c, err) {
		return
	}
	response.Success(c, data)
}

// MustSucceedPage 便捷封装：分页响应版本
func MustSucceedPage(c *gin.Context, err error, list interface{}, total int64, page, pageSize int) {
	if HandleError(c, err) {
		return
	}
	response.SuccessPage(c, list, total, page, pageSize)
}

// ============================================================================
// 认证检查
// ============================================================================

// RequireActor 获取当前操作人，如果未登录则返回401响应
// 返回 (actor, true) 表示已登录
// 返回 (zero, false) 表示未登录（已发送响应，调用方应该 return）
func RequireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return models.Actor{}, false
	}
	return actor, true
}

// ============================================================================
// 参数解析
// ============================================================================

// ParseID 解析路径参数 "id" 为 int64
// 返回 (0, false) 表示解析失败（已发送400响应，调用方应该 return）
//
// 使用示例:
//
//	id, ok := handler.ParseID(c, "预订")
//	if !ok {
//	    return
//	}
func ParseID(c *gin.Context, resourceName string) (int64, bool) {
	return ParseParamID(c, "id", resourceName)
}

// ParseParamID 解析指定路径参数为正整数 ID
func ParseParamID(c *gin.Context, paramName, resourceName string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(paramName), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "无效的"+resourceName+"ID")
		return 0, false
	}
	return id, true
}

// BindJSON 绑定请求体，失败时返回400响应
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

// ============================================================================
// 组合辅助函数
// ============================================================================

// RequireActorAndParseID 组合：检查登录 + 解析ID参数
//
// 使用示例:
//
//	actor, id, ok := handler.RequireActorAndParseID(c, "看房")
//	if !ok {
//	    return
//	}
func RequireActorAndParseID(c *gin.Context, resourceName string) (actor models.Actor, id int64, ok bool) {
	actor, ok = RequireActor(c)
	if !ok {
		return models.Actor{}, 0, false
	}
	id, ok = ParseID(c, resourceName)
	if !ok {
		return models.Actor{}, 0, false
	}
	return actor, id, true
}
