// Package booking 提供预订相关的 HTTP Handler
package booking

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/housing-visit-backend/internal/common/handler"
	"github.com/dumeirei/housing-visit-backend/internal/common/response"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
	bookingService "github.com/dumeirei/housing-visit-backend/internal/service/booking"
)

// Handler 预订处理器
type Handler struct {
	bookingService   *bookingService.BookingService
	lifecycleService *bookingService.LifecycleService
}

// NewHandler 创建预订处理器
func NewHandler(bookingSvc *bookingService.BookingService, lifecycleSvc *bookingService.LifecycleService) *Handler {
	return &Handler{
		bookingService:   bookingSvc,
		lifecycleService: lifecycleSvc,
	}
}

// CreateBooking 由已完成的看房创建预订
// @Summary 创建预订
// @Tags 预订
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body bookingService.CreateBookingRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Booking}
// @Router /api/v1/bookings [post]
func (h *Handler) CreateBooking(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req bookingService.CreateBookingRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), actor, &req)
	handler.MustSucceed(c, err, booking)
}

// ListBookings 获取预订列表
// @Summary 获取预订列表
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param status query string false "状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/bookings [get]
func (h *Handler) ListBookings(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req bookingService.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	p := utils.Pagination{Page: req.Page, PageSize: req.PageSize}
	p.Normalize()
	req.Page, req.PageSize = p.Page, p.PageSize

	bookings, total, err := h.lifecycleService.ListBookings(c.Request.Context(), actor, &req)
	handler.MustSucceedPage(c, err, bookings, total, p.Page, p.PageSize)
}

// GetBooking 获取预订详情
// @Summary 获取预订详情
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param id path int true "预订ID"
// @Success 200 {object} response.Response{data=models.Booking}
// @Router /api/v1/bookings/{id} [get]
func (h *Handler) GetBooking(c *gin.Context) {
	actor, bookingID, ok := handler.RequireActorAndParseID(c, "预订")
	if !ok {
		return
	}

	booking, err := h.lifecycleService.GetBooking(c.Request.Context(), actor, bookingID)
	handler.MustSucceed(c, err, booking)
}

// Activate 确认预订并设置有效期
// @Summary 确认预订
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param id path int true "预订ID"
// @Success 200 {object} response.Response{data=models.Booking}
// @Router /api/v1/bookings/{id}/activate [patch]
func (h *Handler) Activate(c *gin.Context) {
	actor, bookingID, ok := handler.RequireActorAndParseID(c, "预订")
	if !ok {
		return
	}

	booking, err := h.lifecycleService.Activate(c.Request.Context(), actor, bookingID)
	handler.MustSucceed(c, err, booking)
}

// Cancel 取消预订并释放房间
// @Summary 取消预订
// @Tags 预订
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "预订ID"
// @Param request body bookingService.CancelRequest false "请求参数"
// @Success 200 {object} response.Response{data=models.Booking}
// @Router /api/v1/bookings/{id}/cancel [patch]
func (h *Handler) Cancel(c *gin.Context) {
	actor, bookingID, ok := handler.RequireActorAndParseID(c, "预订")
	if !ok {
		return
	}

	// 请求体可选
	var req bookingService.CancelRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	booking, err := h.lifecycleService.Cancel(c.Request.Context(), actor, bookingID, req.Reason)
	handler.MustSucceed(c, err, booking)
}

// GetValidity 查询预订有效期
// @Summary 查询预订有效期
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param id path int true "预订ID"
// @Success 200 {object} response.Response{data=bookingService.ValidityInfo}
// @Router /api/v1/bookings/{id}/validity [get]
func (h *Handler) GetValidity(c *gin.Context) {
	actor, bookingID, ok := handler.RequireActorAndParseID(c, "预订")
	if !ok {
		return
	}

	info, err := h.lifecycleService.GetValidity(c.Request.Context(), actor, bookingID)
	handler.MustSucceed(c, err, info)
}

// GetForScanner 扫码核验预订
// @Summary 扫码核验预订
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param id path int true "预订ID"
// @Success 200 {object} response.Response{data=models.Booking}
// @Router /api/v1/bookings/scanner/{id} [get]
func (h *Handler) GetForScanner(c *gin.Context) {
	actor, bookingID, ok := handler.RequireActorAndParseID(c, "预订")
	if !ok {
		return
	}

	booking, err := h.lifecycleService.GetBookingForScanner(c.Request.Context(), actor, bookingID)
	handler.MustSucceed(c, err, booking)
}

// ScanRequest 扫码核验请求
type ScanRequest struct {
	Code string `form:"code" binding:"required"`
}

// Scan 按二维码内容核验预订
// @Summary 按二维码内容核验预订
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param code query string true "二维码内容"
// @Success 200 {object} response.Response{data=models.Booking}
// @Router /api/v1/bookings/scan [get]
func (h *Handler) Scan(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req ScanRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "请提供二维码内容")
		return
	}

	booking, err := h.lifecycleService.ScanBooking(c.Request.Context(), actor, req.Code)
	handler.MustSucceed(c, err, booking)
}

// QRCode 获取预订核验二维码
// @Summary 获取预订核验二维码
// @Tags 预订
// @Produce png
// @Security Bearer
// @Param id path int true "预订ID"
// @Success 200 {file} binary
// @Router /api/v1/bookings/{id}/qrcode [get]
func (h *Handler) QRCode(c *gin.Context) {
	actor, bookingID, ok := handler.RequireActorAndParseID(c, "预订")
	if !ok {
		return
	}

	png, err := h.lifecycleService.ScannerQRCode(c.Request.Context(), actor, bookingID)
	if handler.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
