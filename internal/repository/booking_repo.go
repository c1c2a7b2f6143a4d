package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/database"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// BookingRepository 预订仓储
type BookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository 创建预订仓储
func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *BookingRepository) WithTx(tx *gorm.DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

// BookingFilter 预订列表过滤条件
type BookingFilter struct {
	UserID      *int64
	PropertyIDs []int64
	Status      string
}

// Create 创建预订（连同明细）
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

// GetByID 根据 ID 获取预订
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).First(&booking, id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByIDWithDetails 获取预订（包含房源、用户与明细）
func (r *BookingRepository) GetByIDWithDetails(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := r.withDetails(ctx).First(&booking, id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByBookingNoWithDetails 根据预订号获取预订及关联
func (r *BookingRepository) GetByBookingNoWithDetails(ctx context.Context, bookingNo string) (*models.Booking, error) {
	var booking models.Booking
	err := r.withDetails(ctx).Where("booking_no = ?", bookingNo).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *BookingRepository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Property").
		Preload("User").
		Preload("Rooms", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Rooms.Room")
}

// ExistsByVisit 看房是否已有预订
func (r *BookingRepository) ExistsByVisit(ctx context.Context, visitID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("visit_id = ?", visitID).
		Count(&count).Error
	return count > 0, err
}

// ListLines 获取预订明细
func (r *BookingRepository) ListLines(ctx context.Context, bookingID int64) ([]models.BookingRoom, error) {
	var lines []models.BookingRoom
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

// UpdateIfStatus 仅当状态属于 from 之一时更新，返回影响行数
func (r *BookingRepository) UpdateIfStatus(ctx context.Context, id int64, from []string, fields map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	return result.RowsAffected, result.Error
}

// ExpireConfirmedBefore 将有效期早于 now 的已确认预订批量置为过期
func (r *BookingRepository) ExpireConfirmedBefore(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("status = ? AND validity < ?", models.BookingStatusConfirmed, now).
		Updates(map[string]interface{}{"status": models.BookingStatusExpired})
	return result.RowsAffected, result.Error
}

// List 获取预订列表
func (r *BookingRepository) List(ctx context.Context, page, pageSize int, filter BookingFilter) ([]*models.Booking, int64, error) {
	var bookings []*models.Booking
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Booking{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.PropertyIDs != nil {
		if len(filter.PropertyIDs) == 0 {
			return bookings, 0, nil
		}
		query = query.Where("property_id IN ?", filter.PropertyIDs)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Preload("Property").
		Preload("Rooms").
		Scopes(database.OrderByCreatedDesc, database.Paginate(page, pageSize)).
		Find(&bookings).Error; err != nil {
		return nil, 0, err
	}

	return bookings, total, nil
}
