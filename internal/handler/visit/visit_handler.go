// Package visit 提供看房相关的 HTTP Handler
package visit

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/housing-visit-backend/internal/common/handler"
	"github.com/dumeirei/housing-visit-backend/internal/common/response"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
	visitService "github.com/dumeirei/housing-visit-backend/internal/service/visit"
)

// Handler 看房处理器
type Handler struct {
	visitService *visitService.VisitService
}

// NewHandler 创建看房处理器
func NewHandler(visitSvc *visitService.VisitService) *Handler {
	return &Handler{
		visitService: visitSvc,
	}
}

// CreateVisit 创建看房申请
// @Summary 创建看房申请
// @Tags 看房
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body visitService.CreateVisitRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Visit}
// @Router /api/v1/visits [post]
func (h *Handler) CreateVisit(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req visitService.CreateVisitRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	visit, err := h.visitService.CreateVisit(c.Request.Context(), actor, &req)
	handler.MustSucceed(c, err, visit)
}

// ListVisits 获取看房列表
// @Summary 获取看房列表
// @Tags 看房
// @Produce json
// @Security Bearer
// @Param status query string false "状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/visits [get]
func (h *Handler) ListVisits(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req visitService.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	p := utils.Pagination{Page: req.Page, PageSize: req.PageSize}
	p.Normalize()
	req.Page, req.PageSize = p.Page, p.PageSize

	visits, total, err := h.visitService.ListVisits(c.Request.Context(), actor, &req)
	handler.MustSucceedPage(c, err, visits, total, p.Page, p.PageSize)
}

// GetVisit 获取看房详情
// @Summary 获取看房详情
// @Tags 看房
// @Produce json
// @Security Bearer
// @Param id path int true "看房ID"
// @Success 200 {object} response.Response{data=visitService.VisitDetail}
// @Router /api/v1/visits/{id} [get]
func (h *Handler) GetVisit(c *gin.Context) {
	actor, visitID, ok := handler.RequireActorAndParseID(c, "看房")
	if !ok {
		return
	}

	detail, err := h.visitService.GetVisit(c.Request.Context(), actor, visitID)
	handler.MustSucceed(c, err, detail)
}

// UpdateStatus 变更看房状态并追加反馈
// @Summary 变更看房状态
// @Tags 看房
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "看房ID"
// @Param request body visitService.TransitionRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Visit}
// @Router /api/v1/visits/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, visitID, ok := handler.RequireActorAndParseID(c, "看房")
	if !ok {
		return
	}

	var req visitService.TransitionRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	visit, err := h.visitService.TransitionVisit(c.Request.Context(), actor, visitID, &req)
	handler.MustSucceed(c, err, visit)
}

// AssignEmployee 指派带看员工
// @Summary 指派带看员工
// @Tags 看房
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "看房ID"
// @Param request body visitService.AssignRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Visit}
// @Router /api/v1/visits/{id}/assign [patch]
func (h *Handler) AssignEmployee(c *gin.Context) {
	actor, visitID, ok := handler.RequireActorAndParseID(c, "看房")
	if !ok {
		return
	}

	var req visitService.AssignRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	visit, err := h.visitService.AssignEmployee(c.Request.Context(), actor, visitID, &req)
	handler.MustSucceed(c, err, visit)
}
