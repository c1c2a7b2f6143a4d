package booking

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/cache"
	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	"github.com/dumeirei/housing-visit-backend/internal/common/qrcode"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
	"github.com/dumeirei/housing-visit-backend/internal/service/inventory"
	"github.com/dumeirei/housing-visit-backend/internal/service/notify"
	"github.com/dumeirei/housing-visit-backend/pkg/kafka"
)

const validityCacheName = "booking_validity"

// LifecycleService 预订生命周期服务：确认、过期、取消与有效期查询
type LifecycleService struct {
	db           *gorm.DB
	bookingRepo  *repository.BookingRepository
	propertyRepo *repository.PropertyRepository
	userRepo     *repository.UserRepository
	ledger       *inventory.GormLedger
	cache        *cache.Store
	events       *eventPublisher
	notifier     *notify.Notifier
	qr           *qrcode.Generator
	validityDays int
	loc          *time.Location
	cacheTTL     time.Duration
	now          func() time.Time
}

// LifecycleOptions 生命周期参数
type LifecycleOptions struct {
	ValidityDays int
	Location     *time.Location
	CacheTTL     time.Duration
	EventTopic   string
	QRCodeSize   int
}

// NewLifecycleService 创建生命周期服务
func NewLifecycleService(
	db *gorm.DB,
	bookingRepo *repository.BookingRepository,
	propertyRepo *repository.PropertyRepository,
	userRepo *repository.UserRepository,
	ledger *inventory.GormLedger,
	store *cache.Store,
	publisher kafka.Publisher,
	notifier *notify.Notifier,
	opts LifecycleOptions,
) *LifecycleService {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	days := opts.ValidityDays
	if days <= 0 {
		days = 30
	}
	return &LifecycleService{
		db:           db,
		bookingRepo:  bookingRepo,
		propertyRepo: propertyRepo,
		userRepo:     userRepo,
		ledger:       ledger,
		cache:        store,
		events:       newEventPublisher(publisher, opts.EventTopic),
		notifier:     notifier,
		qr:           qrcode.NewGenerator(qrcode.WithSize(opts.QRCodeSize)),
		validityDays: days,
		loc:          loc,
		cacheTTL:     opts.CacheTTL,
		now:          time.Now,
	}
}

// SetClock 替换时钟（用于测试）
func (s *LifecycleService) SetClock(now func() time.Time) {
	s.now = now
}

// ValidityInfo 预订有效期
type ValidityInfo struct {
	BookingID  int64      `json:"booking_id"`
	Status     string     `json:"status"`
	Valid      bool       `json:"valid"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// validityEntry 有效期缓存，只保存时间戳，是否有效在读取时按当前时间计算
type validityEntry struct {
	UserID     int64      `json:"user_id"`
	PropertyID int64      `json:"property_id"`
	ManagerID  *int64     `json:"manager_id,omitempty"`
	OwnerID    int64      `json:"owner_id"`
	Status     string     `json:"status"`
	Validity   *time.Time `json:"validity,omitempty"`
}

func validityKey(bookingID int64) string {
	return cache.BuildKey(cache.KeyPrefixBookingValidity, strconv.FormatInt(bookingID, 10))
}

// Activate 确认预订，有效期为 validityDays 天后当日结束
func (s *LifecycleService) Activate(ctx context.Context, actor models.Actor, bookingID int64) (*models.Booking, error) {
	if !actor.IsStaff() {
		return nil, errors.ErrPermissionDenied.WithMessage("只有管理员或经理可以确认预订")
	}

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	validity := utils.EndOfDay(now.AddDate(0, 0, s.validityDays), s.loc).UTC()

	// 条件更新：已过期或已取消的预订不会被重新确认
	rows, err := s.bookingRepo.UpdateIfStatus(ctx, booking.ID,
		[]string{models.BookingStatusPendingConfirmation},
		map[string]interface{}{
			"status":       models.BookingStatusConfirmed,
			"validity":     validity,
			"confirmed_at": now,
		})
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if rows == 0 {
		return nil, errors.ErrBookingStatusError.WithMessage("只有待确认的预订可以确认")
	}

	booking.Status = models.BookingStatusConfirmed
	booking.Validity = &validity
	booking.ConfirmedAt = &now

	logger.Info("预订已确认",
		logger.Module("booking"),
		logger.BookingID(booking.ID),
		logger.UserID(actor.UserID),
		logger.Time("validity", validity),
	)

	s.cacheValidity(ctx, booking)
	s.events.booking(ctx, EventBookingConfirmed, booking, now)
	if user, uerr := s.userRepo.GetByID(ctx, booking.UserID); uerr == nil {
		s.notifier.BookingConfirmed(ctx, booking, user)
	}

	return booking, nil
}

// SweepExpired 将有效期早于 now 的已确认预订置为过期，返回处理数量
// 过期预订不归还库存
func (s *LifecycleService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.bookingRepo.ExpireConfirmedBefore(ctx, now.UTC())
	if err != nil {
		return 0, errors.ErrDatabaseError.WithError(err)
	}
	if count == 0 {
		return 0, nil
	}

	metrics.AddBookingsExpired(count)
	logger.Info("预订已过期",
		logger.Module("booking"),
		logger.Int64("count", count),
	)
	s.events.publish(ctx, EventBookingsExpired, "sweep", &SweepEvent{
		Count:   count,
		SweptAt: now.UTC(),
	}, now.UTC())
	return count, nil
}

// GetValidity 查询预订有效期
func (s *LifecycleService) GetValidity(ctx context.Context, actor models.Actor, bookingID int64) (*ValidityInfo, error) {
	entry, err := s.loadValidity(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !entry.visibleTo(actor) {
		return nil, errors.ErrBookingNotFound
	}

	now := s.now().UTC()
	valid := models.BookingValidAt(entry.Status, entry.Validity, now)
	status := entry.Status
	// 缓存可能早于过期任务，按时间戳修正展示状态
	if entry.Status == models.BookingStatusConfirmed && !valid {
		status = models.BookingStatusExpired
	}
	return &ValidityInfo{
		BookingID:  bookingID,
		Status:     status,
		Valid:      valid,
		ValidUntil: entry.Validity,
	}, nil
}

func (s *LifecycleService) loadValidity(ctx context.Context, bookingID int64) (*validityEntry, error) {
	key := validityKey(bookingID)

	var entry validityEntry
	err := s.cache.Get(ctx, key, &entry)
	if err == nil {
		metrics.RecordCacheHitGlobal(validityCacheName)
		return &entry, nil
	}
	if !cache.IsMiss(err) {
		logger.Warn("读取有效期缓存失败", logger.Module("booking"), logger.BookingID(bookingID), logger.Err(err))
	}
	metrics.RecordCacheMissGlobal(validityCacheName)

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.cacheValidity(ctx, booking), nil
}

// cacheValidity 写入有效期缓存，失败只记录日志
// 以状态阶段作为版本号，读取时回源的旧快照不会覆盖确认或取消后写入的条目
func (s *LifecycleService) cacheValidity(ctx context.Context, booking *models.Booking) *validityEntry {
	entry := &validityEntry{
		UserID:     booking.UserID,
		PropertyID: booking.PropertyID,
		Status:     booking.Status,
		Validity:   booking.Validity,
	}
	if property, err := s.propertyRepo.GetByID(ctx, booking.PropertyID); err == nil {
		entry.ManagerID = property.ManagerID
		entry.OwnerID = property.OwnerID
	}

	version := models.BookingStatusStage(booking.Status)
	if _, err := s.cache.SetIfNewer(ctx, validityKey(booking.ID), version, entry, s.cacheTTL); err != nil {
		logger.Warn("写入有效期缓存失败", logger.Module("booking"), logger.BookingID(booking.ID), logger.Err(err))
	}
	return entry
}

func (e *validityEntry) visibleTo(actor models.Actor) bool {
	switch {
	case actor.IsAdmin():
		return true
	case e.UserID == actor.UserID:
		return true
	case actor.Role == models.RoleManager:
		return e.ManagerID != nil && *e.ManagerID == actor.UserID
	case actor.Role == models.RolePropertyOwner:
		return e.OwnerID == actor.UserID
	}
	return false
}

// CancelRequest 取消预订请求
type CancelRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// Cancel 取消预订并归还全部房间库存
func (s *LifecycleService) Cancel(ctx context.Context, actor models.Actor, bookingID int64, reason string) (*models.Booking, error) {
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != actor.UserID && !actor.IsStaff() {
		return nil, errors.ErrBookingNotFound
	}

	now := s.now().UTC()
	fields := map[string]interface{}{
		"status":       models.BookingStatusCancelled,
		"cancelled_at": now,
		"validity":     nil,
	}
	if reason != "" {
		fields["cancel_reason"] = reason
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.bookingRepo.WithTx(tx).UpdateIfStatus(ctx, booking.ID,
			[]string{models.BookingStatusPendingConfirmation, models.BookingStatusConfirmed}, fields)
		if err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		if rows == 0 {
			return errors.ErrBookingStatusError.WithMessage("预订已结束，不能取消")
		}

		lines, err := s.bookingRepo.WithTx(tx).ListLines(ctx, booking.ID)
		if err != nil {
			return errors.ErrDatabaseError.WithError(err)
		}
		ledger := s.ledger.WithTx(tx)
		for _, line := range lines {
			if err := ledger.Release(ctx, line.RoomID, line.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusCancelled
	booking.CancelledAt = &now
	booking.Validity = nil
	if reason != "" {
		booking.CancelReason = &reason
	}

	logger.Info("预订已取消",
		logger.Module("booking"),
		logger.BookingID(booking.ID),
		logger.UserID(actor.UserID),
	)

	s.cacheValidity(ctx, booking)
	s.events.booking(ctx, EventBookingCancelled, booking, now)

	return booking, nil
}

// GetBooking 获取预订详情
func (s *LifecycleService) GetBooking(ctx context.Context, actor models.Actor, bookingID int64) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByIDWithDetails(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !canView(actor, booking) {
		return nil, errors.ErrBookingNotFound
	}
	return booking, nil
}

// GetBookingForScanner 扫码核验：房东、管理员或经理查看预订
func (s *LifecycleService) GetBookingForScanner(ctx context.Context, actor models.Actor, bookingID int64) (*models.Booking, error) {
	if !canScan(actor) {
		return nil, errors.ErrPermissionDenied
	}
	booking, err := s.bookingRepo.GetByIDWithDetails(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return scannedBooking(actor, booking)
}

// ScanBooking 按二维码内容核验预订
func (s *LifecycleService) ScanBooking(ctx context.Context, actor models.Actor, content string) (*models.Booking, error) {
	if !canScan(actor) {
		return nil, errors.ErrPermissionDenied
	}
	bookingNo, ok := qrcode.ParseBookingContent(content)
	if !ok {
		return nil, errors.ErrInvalidParams.WithMessage("无法识别的预订二维码")
	}
	booking, err := s.bookingRepo.GetByBookingNoWithDetails(ctx, bookingNo)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return scannedBooking(actor, booking)
}

func canScan(actor models.Actor) bool {
	return actor.IsStaff() || actor.Role == models.RolePropertyOwner
}

// scannedBooking 房东只能核验自己房源的预订
func scannedBooking(actor models.Actor, booking *models.Booking) (*models.Booking, error) {
	if actor.Role == models.RolePropertyOwner && (booking.Property == nil || booking.Property.OwnerID != actor.UserID) {
		return nil, errors.ErrPermissionDenied
	}
	return booking, nil
}

// ScannerQRCode 生成预订号二维码（PNG）
func (s *LifecycleService) ScannerQRCode(ctx context.Context, actor models.Actor, bookingID int64) ([]byte, error) {
	booking, err := s.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	png, err := s.qr.GeneratePNG(qrcode.BookingContent(booking.BookingNo))
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}
	return png, nil
}

// ListRequest 预订列表请求
type ListRequest struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ListBookings 按角色范围获取预订列表
func (s *LifecycleService) ListBookings(ctx context.Context, actor models.Actor, req *ListRequest) ([]*models.Booking, int64, error) {
	filter := repository.BookingFilter{Status: req.Status}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleManager:
		ids, err := s.propertyRepo.ListIDsByManager(ctx, actor.UserID)
		if err != nil {
			return nil, 0, errors.ErrDatabaseError.WithError(err)
		}
		filter.PropertyIDs = ids
	case models.RolePropertyOwner:
		ids, err := s.propertyRepo.ListIDsByOwner(ctx, actor.UserID)
		if err != nil {
			return nil, 0, errors.ErrDatabaseError.WithError(err)
		}
		filter.PropertyIDs = ids
	default:
		filter.UserID = &actor.UserID
	}

	p := utils.Pagination{Page: req.Page, PageSize: req.PageSize}
	p.Normalize()

	list, total, err := s.bookingRepo.List(ctx, p.Page, p.PageSize, filter)
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return list, total, nil
}

func (s *LifecycleService) getBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return booking, nil
}

// canView 管理员、预订人、房源经理和房东可以查看
func canView(actor models.Actor, booking *models.Booking) bool {
	if actor.IsAdmin() || booking.UserID == actor.UserID {
		return true
	}
	if booking.Property == nil {
		return false
	}
	switch actor.Role {
	case models.RoleManager:
		return booking.Property.ManagerID != nil && *booking.Property.ManagerID == actor.UserID
	case models.RolePropertyOwner:
		return booking.Property.OwnerID == actor.UserID
	}
	return false
}
