// Package visit 提供看房预约与状态流转服务
package visit

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
	"github.com/dumeirei/housing-visit-backend/internal/service/notify"
)

// VisitService 看房服务
type VisitService struct {
	db                     *gorm.DB
	visitRepo              *repository.VisitRepository
	propertyRepo           *repository.PropertyRepository
	userRepo               *repository.UserRepository
	notifier               *notify.Notifier
	bookingWindow          time.Duration
	expireCompletedEnabled bool
	now                    func() time.Time
}

// Options 看房服务参数
type Options struct {
	// BookingWindow 看房完成后可下单的时长，超过后可被批量置为过期
	BookingWindow time.Duration
	// ExpireCompletedEnabled 是否启用已完成看房的过期处理
	ExpireCompletedEnabled bool
}

// NewVisitService 创建看房服务
func NewVisitService(
	db *gorm.DB,
	visitRepo *repository.VisitRepository,
	propertyRepo *repository.PropertyRepository,
	userRepo *repository.UserRepository,
	notifier *notify.Notifier,
	opts Options,
) *VisitService {
	return &VisitService{
		db:                     db,
		visitRepo:              visitRepo,
		propertyRepo:           propertyRepo,
		userRepo:               userRepo,
		notifier:               notifier,
		bookingWindow:          opts.BookingWindow,
		expireCompletedEnabled: opts.ExpireCompletedEnabled,
		now:                    time.Now,
	}
}

// SetClock 替换时钟（用于测试）
func (s *VisitService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *VisitService) clock() time.Time {
	return s.now().UTC()
}

// CreateVisitRequest 创建看房请求
type CreateVisitRequest struct {
	PropertyID int64  `json:"property_id" binding:"required"`
	Feedback   string `json:"feedback" binding:"required"`
}

// TransitionRequest 变更看房状态请求
type TransitionRequest struct {
	Status   string `json:"status" binding:"required"`
	Feedback string `json:"feedback" binding:"required"`
}

// AssignRequest 指派员工请求
type AssignRequest struct {
	EmployeeID  int64     `json:"employee_id" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// ListRequest 看房列表请求
type ListRequest struct {
	Status   string `form:"status"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
}

// VisitDetail 看房详情，三类反馈按时间顺序分别给出
type VisitDetail struct {
	*models.Visit
	UserFeedback     []models.VisitFeedback `json:"user_feedback"`
	ManagerFeedback  []models.VisitFeedback `json:"manager_feedback"`
	EmployeeFeedback []models.VisitFeedback `json:"employee_feedback"`
}

func newVisitDetail(v *models.Visit) *VisitDetail {
	return &VisitDetail{
		Visit:            v,
		UserFeedback:     v.UserFeedback(),
		ManagerFeedback:  v.ManagerFeedback(),
		EmployeeFeedback: v.EmployeeFeedback(),
	}
}

// CreateVisit 创建看房申请
func (s *VisitService) CreateVisit(ctx context.Context, actor models.Actor, req *CreateVisitRequest) (*models.Visit, error) {
	feedback := strings.TrimSpace(req.Feedback)
	if feedback == "" {
		return nil, errors.ErrVisitFeedbackRequired
	}

	now := s.clock()
	visit := &models.Visit{
		UserID: actor.UserID,
		Status: models.VisitStatusPendingApproval,
	}

	// 锁定房源行后再检查重复申请，并发提交只有一个能通过
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.propertyRepo.WithTx(tx).GetByIDForUpdate(ctx, req.PropertyID)
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrPropertyNotFound
			}
			return errors.ErrDatabaseError.WithError(err)
		}
		if property.Status != models.PropertyStatusAvailable {
			return errors.ErrPropertyUnavailable
		}

		repo := s.visitRepo.WithTx(tx)
		// 取消或过期的看房不占用名额
		exists, err := repo.ExistsOpenVisit(ctx, actor.UserID, property.ID,
			[]string{models.VisitStatusCancelled, models.VisitStatusExpired})
		if err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		if exists {
			return errors.ErrVisitExists
		}

		visit.PropertyID = property.ID
		visit.ManagerID = property.ManagerID
		if err := repo.Create(ctx, visit); err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		if err := repo.AppendFeedback(ctx, &models.VisitFeedback{
			VisitID:         visit.ID,
			Channel:         channelForRole(actor.Role),
			ActorID:         actor.UserID,
			ActorRole:       actor.Role,
			Text:            feedback,
			ResultingStatus: models.VisitStatusPendingApproval,
			CreatedAt:       now,
		}); err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("看房申请已创建",
		logger.Module("visit"),
		logger.VisitID(visit.ID),
		logger.UserID(actor.UserID),
		logger.Int64("property_id", visit.PropertyID),
	)
	return visit, nil
}

// TransitionVisit 变更看房状态
func (s *VisitService) TransitionVisit(ctx context.Context, actor models.Actor, visitID int64, req *TransitionRequest) (*models.Visit, error) {
	feedback := strings.TrimSpace(req.Feedback)
	if feedback == "" {
		return nil, errors.ErrVisitFeedbackRequired
	}

	visit, err := s.getVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}

	rel, ok := resolveRelation(actor, visit)
	if !ok {
		return nil, errors.ErrVisitForbidden
	}
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	if err := checkTransition(rel, visit.Status, target); err != nil {
		return nil, err
	}

	now := s.clock()
	fields := map[string]interface{}{"status": target}
	if target == models.VisitStatusCompleted {
		fields["completed_at"] = now
	}

	from := visit.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.visitRepo.WithTx(tx)
		rows, err := repo.UpdateIfStatus(ctx, visit.ID, from, fields)
		if err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		if rows == 0 {
			return errors.ErrVisitChanged
		}
		if err := repo.AppendFeedback(ctx, &models.VisitFeedback{
			VisitID:         visit.ID,
			Channel:         string(rel),
			ActorID:         actor.UserID,
			ActorRole:       actor.Role,
			Text:            feedback,
			ResultingStatus: target,
			CreatedAt:       now,
		}); err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	visit.Status = target
	if target == models.VisitStatusCompleted {
		visit.CompletedAt = &now
	}
	metrics.RecordVisitTransition(from, target)
	logger.Info("看房状态已变更",
		logger.Module("visit"),
		logger.VisitID(visit.ID),
		logger.UserID(actor.UserID),
		logger.String("from", from),
		logger.String("to", target),
	)
	return visit, nil
}

// AssignEmployee 指派员工并确认看房时间
func (s *VisitService) AssignEmployee(ctx context.Context, actor models.Actor, visitID int64, req *AssignRequest) (*models.Visit, error) {
	visit, err := s.getVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}

	assignedManager := actor.Role == models.RoleManager && visit.ManagerID != nil && *visit.ManagerID == actor.UserID
	if !actor.IsAdmin() && !assignedManager {
		return nil, errors.ErrVisitForbidden
	}

	now := s.clock()
	scheduledAt := req.ScheduledAt.UTC()
	if !scheduledAt.After(now) {
		return nil, errors.ErrScheduleInPast
	}

	employee, err := s.userRepo.GetByID(ctx, req.EmployeeID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound.WithMessage("员工不存在")
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if employee.Role != models.RoleEmployee {
		return nil, errors.ErrEmployeeInvalid
	}
	if actor.Role == models.RoleManager && (employee.ManagerID == nil || *employee.ManagerID != actor.UserID) {
		return nil, errors.ErrEmployeeNotMine
	}

	if !utils.Contains(assignableStatuses, visit.Status) {
		return nil, errors.ErrVisitStatusError.WithMessage("当前状态不能指派员工: " + visit.Status)
	}

	from := visit.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.visitRepo.WithTx(tx)
		rows, err := repo.UpdateIfStatus(ctx, visit.ID, from, map[string]interface{}{
			"employee_id":  employee.ID,
			"scheduled_at": scheduledAt,
			"status":       models.VisitStatusConfirmed,
		})
		if err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		if rows == 0 {
			return errors.ErrVisitChanged
		}
		if err := repo.AppendFeedback(ctx, &models.VisitFeedback{
			VisitID:         visit.ID,
			Channel:         models.FeedbackChannelManager,
			ActorID:         actor.UserID,
			ActorRole:       actor.Role,
			Text:            fmt.Sprintf("已指派员工 %s 负责看房", employee.Name),
			ResultingStatus: models.VisitStatusConfirmed,
			CreatedAt:       now,
		}); err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	visit.EmployeeID = &employee.ID
	visit.ScheduledAt = &scheduledAt
	visit.Status = models.VisitStatusConfirmed
	visit.Employee = employee
	metrics.RecordVisitTransition(from, models.VisitStatusConfirmed)
	logger.Info("看房已指派员工",
		logger.Module("visit"),
		logger.VisitID(visit.ID),
		logger.UserID(actor.UserID),
		logger.Int64("employee_id", employee.ID),
	)

	visitor, err := s.userRepo.GetByID(ctx, visit.UserID)
	if err != nil {
		logger.Warn("获取访客信息失败", logger.Module("visit"), logger.VisitID(visit.ID), logger.Err(err))
	}
	s.notifier.VisitAssigned(ctx, visit, employee, visitor)

	return visit, nil
}

// GetVisit 获取看房详情
func (s *VisitService) GetVisit(ctx context.Context, actor models.Actor, visitID int64) (*VisitDetail, error) {
	visit, err := s.visitRepo.GetByIDWithDetails(ctx, visitID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrVisitNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	if _, ok := resolveRelation(actor, visit); !ok {
		isOwner := actor.Role == models.RolePropertyOwner && visit.Property != nil && visit.Property.OwnerID == actor.UserID
		if !isOwner {
			return nil, errors.ErrVisitForbidden
		}
	}
	return newVisitDetail(visit), nil
}

// ListVisits 按角色范围获取看房列表
func (s *VisitService) ListVisits(ctx context.Context, actor models.Actor, req *ListRequest) ([]*models.Visit, int64, error) {
	filter := repository.VisitFilter{Status: strings.ToUpper(req.Status)}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RolePropertyOwner:
		ids, err := s.propertyRepo.ListIDsByOwner(ctx, actor.UserID)
		if err != nil {
			return nil, 0, errors.ErrDatabaseError.WithError(err)
		}
		if ids == nil {
			ids = []int64{}
		}
		filter.PropertyIDs = ids
	case models.RoleManager:
		filter.ManagerID = &actor.UserID
	case models.RoleEmployee:
		filter.EmployeeID = &actor.UserID
	default:
		filter.UserID = &actor.UserID
	}

	visits, total, err := s.visitRepo.List(ctx, req.Page, req.PageSize, filter)
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return visits, total, nil
}

// ExpireStaleVisits 将超过可下单期限的已完成看房置为过期，未启用时不做任何处理
func (s *VisitService) ExpireStaleVisits(ctx context.Context, now time.Time) (int64, error) {
	if !s.expireCompletedEnabled || s.bookingWindow <= 0 {
		return 0, nil
	}

	cutoff := now.UTC().Add(-s.bookingWindow)
	rows, err := s.visitRepo.ExpireCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.ErrDatabaseError.WithError(err)
	}
	if rows > 0 {
		logger.Info("已完成看房已过期",
			logger.Module("visit"),
			logger.Action("expire"),
			logger.Int64("count", rows),
		)
	}
	return rows, nil
}

func (s *VisitService) getVisit(ctx context.Context, visitID int64) (*models.Visit, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrVisitNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return visit, nil
}
