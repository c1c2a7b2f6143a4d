// Package booking 提供看房转预订及预订生命周期服务
package booking

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/database"
	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	"github.com/dumeirei/housing-visit-backend/internal/common/tracing"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
	"github.com/dumeirei/housing-visit-backend/internal/service/inventory"
	"github.com/dumeirei/housing-visit-backend/internal/service/notify"
	"github.com/dumeirei/housing-visit-backend/internal/service/referral"
	"github.com/dumeirei/housing-visit-backend/pkg/kafka"
)

// BookingService 预订服务：将已完成的看房转为房间预订
type BookingService struct {
	db            *gorm.DB
	visitRepo     *repository.VisitRepository
	bookingRepo   *repository.BookingRepository
	roomRepo      *repository.RoomRepository
	userRepo      *repository.UserRepository
	ledger        inventory.Ledger
	coupons       *referral.CouponService
	events        *eventPublisher
	notifier      *notify.Notifier
	bookingWindow time.Duration
	now           func() time.Time
}

// Options 预订服务参数
type Options struct {
	// BookingWindow 看房完成后可下单的时长
	BookingWindow time.Duration
	// EventTopic 预订事件主题
	EventTopic string
}

// NewBookingService 创建预订服务
func NewBookingService(
	db *gorm.DB,
	visitRepo *repository.VisitRepository,
	bookingRepo *repository.BookingRepository,
	roomRepo *repository.RoomRepository,
	userRepo *repository.UserRepository,
	ledger inventory.Ledger,
	coupons *referral.CouponService,
	publisher kafka.Publisher,
	notifier *notify.Notifier,
	opts Options,
) *BookingService {
	return &BookingService{
		db:            db,
		visitRepo:     visitRepo,
		bookingRepo:   bookingRepo,
		roomRepo:      roomRepo,
		userRepo:      userRepo,
		ledger:        ledger,
		coupons:       coupons,
		events:        newEventPublisher(publisher, opts.EventTopic),
		notifier:      notifier,
		bookingWindow: opts.BookingWindow,
		now:           time.Now,
	}
}

// SetClock 替换时钟（用于测试）
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateBookingRequest 创建预订请求
type CreateBookingRequest struct {
	VisitID    int64            `json:"visit_id" binding:"required"`
	Rooms      []inventory.Line `json:"rooms" binding:"required"`
	CouponCode string           `json:"coupon_code"`
}

// CreateBooking 由已完成的看房创建预订
// 先逐间预留库存（各自提交），再在一个事务内写入预订、明细、看房状态和推荐次数；
// 事务失败时归还已预留的库存
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, req *CreateBookingRequest) (booking *models.Booking, err error) {
	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "booking.create",
		tracing.WithVisitID(req.VisitID),
		tracing.WithUserID(actor.UserID),
		tracing.AttrRoomCount.Int(len(req.Rooms)),
	)
	defer func() {
		tracing.End(span, err)
		metrics.RecordBooking(resultLabel(err), time.Since(started))
	}()

	now := s.now().UTC()

	visit, err := s.checkVisit(ctx, actor, req.VisitID, now)
	if err != nil {
		return nil, err
	}

	lines, rooms, err := s.checkLines(ctx, visit, req.Rooms)
	if err != nil {
		return nil, err
	}

	coupon, err := s.coupons.Resolve(ctx, req.CouponCode, visit.UserID)
	if err != nil {
		return nil, err
	}

	// 预留库存，任一房间不足时已预留部分会被归还
	reserved, err := inventory.ReserveAll(ctx, s.ledger, lines)
	if err != nil {
		return nil, err
	}
	tracing.AddEvent(ctx, "inventory.reserved")

	uow := NewUnitOfWork()
	uow.Register("release_inventory", func(ctx context.Context) error {
		inventory.ReleaseAll(ctx, s.ledger, reserved)
		return nil
	})
	defer func() {
		if err != nil {
			uow.Rollback(ctx)
			logger.Warn("预订失败，已归还库存",
				logger.Module("booking"),
				logger.VisitID(visit.ID),
				logger.Err(err),
			)
		}
	}()

	booking = s.price(visit, reserved, rooms, coupon, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.WithTx(tx).Create(ctx, booking); err != nil {
			if database.IsDuplicateKey(err) {
				return errors.ErrBookingExists
			}
			return errors.ErrDatabaseError.WithError(err)
		}

		// 条件更新保证同一看房只转换一次
		rows, err := s.visitRepo.WithTx(tx).UpdateIfStatus(ctx, visit.ID, models.VisitStatusCompleted,
			map[string]interface{}{"status": models.VisitStatusBooked})
		if err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		if rows == 0 {
			return s.visitChangedError(ctx, tx, visit.ID)
		}

		if coupon != nil {
			if err := s.userRepo.WithTx(tx).IncreaseReferralCount(ctx, coupon.ReferrerID); err != nil {
				if stderrors.Is(err, gorm.ErrRecordNotFound) {
					return errors.ErrInvalidCoupon
				}
				return errors.ErrDatabaseError.WithError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uow.Complete()

	tracing.SetAttributes(ctx, tracing.WithBookingID(booking.ID))
	metrics.RecordVisitTransition(models.VisitStatusCompleted, models.VisitStatusBooked)
	logger.Info("预订已创建",
		logger.Module("booking"),
		logger.BookingID(booking.ID),
		logger.BookingNo(booking.BookingNo),
		logger.VisitID(visit.ID),
		logger.UserID(visit.UserID),
		logger.Int64("paid_amount", booking.PaidAmount),
	)

	s.events.booking(ctx, EventBookingCreated, booking, now)
	if user, uerr := s.userRepo.GetByID(ctx, visit.UserID); uerr == nil {
		s.notifier.BookingCreated(ctx, booking, user)
	}

	return booking, nil
}

// visitChangedError 看房在校验后被并发修改时，按当前状态返回对应错误
func (s *BookingService) visitChangedError(ctx context.Context, tx *gorm.DB, visitID int64) error {
	current, err := s.visitRepo.WithTx(tx).GetByID(ctx, visitID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrVisitNotFound
		}
		return errors.ErrDatabaseError.WithError(err)
	}
	switch current.Status {
	case models.VisitStatusBooked:
		return errors.ErrBookingExists
	case models.VisitStatusExpired:
		return errors.ErrBookingWindowExpired
	}
	return errors.ErrVisitStatusError.WithMessage("看房状态已变更为 " + current.Status + "，不能预订")
}

// checkVisit 按顺序校验看房：存在且可见、已完成、未预订、在可预订期限内
func (s *BookingService) checkVisit(ctx context.Context, actor models.Actor, visitID int64, now time.Time) (*models.Visit, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrVisitNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if visit.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, errors.ErrVisitNotFound
	}

	if visit.Status != models.VisitStatusCompleted {
		return nil, errors.ErrVisitStatusError.WithMessage("只有已完成的看房可以预订，当前状态为 " + visit.Status)
	}

	exists, err := s.bookingRepo.ExistsByVisit(ctx, visit.ID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if exists {
		return nil, errors.ErrBookingExists
	}

	completedAt := visit.UpdatedAt
	if visit.CompletedAt != nil {
		completedAt = *visit.CompletedAt
	}
	if now.Sub(completedAt) > s.bookingWindow {
		return nil, errors.ErrBookingWindowExpired
	}
	return visit, nil
}

// checkLines 校验并合并明细，房间必须属于看房的房源
func (s *BookingService) checkLines(ctx context.Context, visit *models.Visit, lines []inventory.Line) ([]inventory.Line, map[int64]*models.Room, error) {
	if len(lines) == 0 {
		return nil, nil, errors.ErrBookingRoomsRequired
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, nil, errors.ErrBookingQuantity
		}
	}

	merged := inventory.MergeLines(lines)
	ids := make([]int64, 0, len(merged))
	for _, line := range merged {
		ids = append(ids, line.RoomID)
	}

	list, err := s.roomRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.ErrDatabaseError.WithError(err)
	}
	rooms := make(map[int64]*models.Room, len(list))
	for _, room := range list {
		rooms[room.ID] = room
	}

	for _, line := range merged {
		room, ok := rooms[line.RoomID]
		if !ok || room.PropertyID != visit.PropertyID {
			return nil, nil, errors.ErrRoomNotFound.WithMessage(fmt.Sprintf("房间 %d 不属于该房源", line.RoomID))
		}
	}
	return merged, rooms, nil
}

// price 按预留时的租金计价
func (s *BookingService) price(visit *models.Visit, lines []inventory.Line, rooms map[int64]*models.Room, coupon *referral.Coupon, now time.Time) *models.Booking {
	var payment int64
	items := make([]models.BookingRoom, 0, len(lines))
	for _, line := range lines {
		rent := rooms[line.RoomID].Rent
		payment += rent * int64(line.Quantity)
		items = append(items, models.BookingRoom{
			RoomID:        line.RoomID,
			Quantity:      line.Quantity,
			RentAtBooking: rent,
		})
	}
	discount, paid := coupon.Apply(payment)

	booking := &models.Booking{
		BookingNo:      utils.GenerateOrderNo("B", now),
		VisitID:        visit.ID,
		PropertyID:     visit.PropertyID,
		UserID:         visit.UserID,
		PaymentAmount:  payment,
		DiscountAmount: discount,
		PaidAmount:     paid,
		Status:         models.BookingStatusPendingConfirmation,
		Rooms:          items,
	}
	if coupon != nil {
		booking.ReferrerID = &coupon.ReferrerID
		booking.CouponCode = &coupon.Code
	}
	return booking
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(errors.KindOf(err)))
}
