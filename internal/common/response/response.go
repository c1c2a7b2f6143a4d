// Package response 提供统一的 API 响应格式
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
)

// Response API 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PageData 分页数据结构
type PageData struct {
	List       interface{} `json:"list"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	p := utils.Pagination{Page: page, PageSize: pageSize, Total: total}
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: PageData{
			List:       list,
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: p.GetTotalPages(),
		},
	})
}

// HTTPStatus 错误类别对应的 HTTP 状态码
func HTTPStatus(kind errors.Kind) int {
	switch kind {
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindInvalidState, errors.KindConflict, errors.KindInsufficientInventory:
		return http.StatusConflict
	case errors.KindForbidden:
		return http.StatusForbidden
	case errors.KindInvalidCoupon, errors.KindInvalidParams:
		return http.StatusBadRequest
	case errors.KindExpired:
		return http.StatusGone
	case errors.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Error 按错误类别输出错误响应，内部错误不向调用方暴露细节
func Error(c *gin.Context, err error) {
	appErr := errors.GetAppError(err)

	status := HTTPStatus(appErr.Kind)
	if status == http.StatusInternalServerError {
		logger.Error("请求处理失败",
			logger.Method(c.Request.Method),
			logger.Path(c.Request.URL.Path),
			logger.RequestID(c.GetString("request_id")),
			logger.Err(err),
		)
		c.JSON(status, Response{
			Code:    appErr.Code,
			Message: appErr.Message,
			Kind:    string(appErr.Kind),
		})
		return
	}

	c.JSON(status, Response{
		Code:    appErr.Code,
		Message: appErr.Message,
		Kind:    string(appErr.Kind),
		Data:    appErr.Data,
	})
}

// BadRequest 请求参数错误
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    errors.ErrInvalidParams.Code,
		Message: message,
		Kind:    string(errors.KindInvalidParams),
	})
}

// Unauthorized 未授权
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "unauthorized"
	}
	c.JSON(http.StatusUnauthorized, Response{
		Code:    errors.ErrUnauthorized.Code,
		Message: message,
		Kind:    string(errors.KindUnauthorized),
	})
}

// Forbidden 禁止访问
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "forbidden"
	}
	c.JSON(http.StatusForbidden, Response{
		Code:    errors.ErrPermissionDenied.Code,
		Message: message,
		Kind:    string(errors.KindForbidden),
	})
}

// TooManyRequests 请求过于频繁
func TooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "too many requests"
	}
	c.JSON(http.StatusTooManyRequests, Response{
		Code:    errors.ErrTooManyRequests.Code,
		Message: message,
	})
}
