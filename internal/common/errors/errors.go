// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind 错误类别，调用方按类别分支处理，与具体错误码无关
type Kind string

// 错误类别
const (
	KindNotFound              Kind = "NOT_FOUND"
	KindInvalidState          Kind = "INVALID_STATE"
	KindForbidden             Kind = "FORBIDDEN"
	KindInsufficientInventory Kind = "INSUFFICIENT_INVENTORY"
	KindInvalidCoupon         Kind = "INVALID_COUPON"
	KindExpired               Kind = "EXPIRED"
	KindConflict              Kind = "CONFLICT"
	KindInvalidParams         Kind = "INVALID_PARAMS"
	KindUnauthorized          Kind = "UNAUTHORIZED"
	KindInternal              Kind = "INTERNAL"
)

// AppError 应用错误
type AppError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    Kind        `json:"kind"`
	Data    interface{} `json:"data,omitempty"`
	Err     error       `json:"-"`
}

// InventoryShortage 库存不足详情
type InventoryShortage struct {
	RoomID    int64 `json:"room_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，支持 errors.Is(err, ErrXxx)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Kind:    KindInternal,
	}
}

// NewKind 创建指定类别的应用错误
func NewKind(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	c := *e
	c.Message = message
	return &c
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// WithData 附加结构化数据
func (e *AppError) WithData(data interface{}) *AppError {
	c := *e
	c.Data = data
	return &c
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "未知错误")
	ErrInvalidParams   = NewKind(1001, KindInvalidParams, "参数错误")
	ErrNotFound        = NewKind(1002, KindNotFound, "资源不存在")
	ErrAlreadyExists   = NewKind(1003, KindConflict, "资源已存在")
	ErrDatabaseError   = New(1004, "数据库错误")
	ErrCacheError      = New(1005, "缓存错误")
	ErrInternalError   = New(1006, "内部错误")
	ErrExternalService = New(1007, "外部服务错误")
	ErrTooManyRequests = New(1008, "请求过于频繁")
)

// 认证错误码 (2000-2999)
var (
	ErrUnauthorized     = NewKind(2000, KindUnauthorized, "未登录")
	ErrTokenExpired     = NewKind(2001, KindUnauthorized, "登录已过期")
	ErrTokenInvalid     = NewKind(2002, KindUnauthorized, "无效的令牌")
	ErrPermissionDenied = NewKind(2004, KindForbidden, "权限不足")
)

// 用户错误码 (3000-3999)
var (
	ErrUserNotFound     = NewKind(3000, KindNotFound, "用户不存在")
	ErrEmployeeInvalid  = NewKind(3001, KindInvalidParams, "指定用户不是员工")
	ErrEmployeeNotMine  = NewKind(3002, KindForbidden, "员工不属于当前经理")
	ErrReferralCodeUsed = NewKind(3003, KindConflict, "推荐码已存在")
)

// 房源错误码 (4000-4999)
var (
	ErrPropertyNotFound    = NewKind(4000, KindNotFound, "房源不存在")
	ErrPropertyUnavailable = NewKind(4001, KindInvalidState, "房源当前不可预约看房")
	ErrRoomNotFound        = NewKind(4002, KindNotFound, "房间不存在")
)

// 看房错误码 (5000-5999)
var (
	ErrVisitNotFound         = NewKind(5000, KindNotFound, "看房记录不存在")
	ErrVisitStatusError      = NewKind(5001, KindInvalidState, "看房状态不允许该操作")
	ErrVisitExists           = NewKind(5002, KindConflict, "已存在该房源的看房申请")
	ErrVisitForbidden        = NewKind(5003, KindForbidden, "无权执行该看房操作")
	ErrVisitFeedbackRequired = NewKind(5004, KindInvalidParams, "请填写反馈")
	ErrScheduleInPast        = NewKind(5005, KindInvalidParams, "看房时间必须晚于当前时间")
	ErrVisitChanged          = NewKind(5006, KindInvalidState, "看房状态已被修改，请刷新后重试")
)

// 库存错误码 (6000-6999)
var (
	ErrInsufficientInventory = NewKind(6000, KindInsufficientInventory, "房间库存不足")
)

// 预订错误码 (8000-8999)
var (
	ErrBookingNotFound      = NewKind(8000, KindNotFound, "预订不存在")
	ErrBookingStatusError   = NewKind(8001, KindInvalidState, "预订状态异常")
	ErrBookingExists        = NewKind(8002, KindConflict, "该看房已生成预订")
	ErrBookingWindowExpired = NewKind(8003, KindExpired, "看房完成已超过可预订期限")
	ErrBookingRoomsRequired = NewKind(8004, KindInvalidParams, "请选择房间")
	ErrBookingQuantity      = NewKind(8005, KindInvalidParams, "房间数量必须大于0")
)

// 营销错误码 (9000-9999)
var (
	ErrInvalidCoupon = NewKind(9000, KindInvalidCoupon, "无效的推荐码")
	ErrSelfReferral  = NewKind(9001, KindInvalidCoupon, "不能使用自己的推荐码")
)

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// KindOf 返回错误类别，非应用错误视为内部错误
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return GetAppError(err).Kind
}
