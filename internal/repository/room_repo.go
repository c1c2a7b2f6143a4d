// Package repository 提供数据访问层
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// RoomRepository 房间仓储
type RoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository 创建房间仓储
func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *RoomRepository) WithTx(tx *gorm.DB) *RoomRepository {
	return &RoomRepository{db: tx}
}

// Create 创建房间
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

// GetByID 根据 ID 获取房间
func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListByIDs 批量获取房间
func (r *RoomRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.Room, error) {
	var rooms []*models.Room
	if len(ids) == 0 {
		return rooms, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rooms).Error
	return rooms, err
}

// ListByProperty 获取房源下的全部房间
func (r *RoomRepository) ListByProperty(ctx context.Context, propertyID int64) ([]*models.Room, error) {
	var rooms []*models.Room
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("id ASC").
		Find(&rooms).Error
	return rooms, err
}

// DecreaseAvailable 扣减可用数量
// 单条条件更新，余量不足或房间不存在时返回 gorm.ErrRecordNotFound
func (r *RoomRepository) DecreaseAvailable(ctx context.Context, id int64, quantity int) error {
	result := r.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND available_count >= ?", id, quantity).
		UpdateColumn("available_count", gorm.Expr("available_count - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncreaseAvailable 归还可用数量，结果不超过 total_count
func (r *RoomRepository) IncreaseAvailable(ctx context.Context, id int64, quantity int) error {
	result := r.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", id).
		UpdateColumn("available_count", gorm.Expr(
			"CASE WHEN available_count + ? > total_count THEN total_count ELSE available_count + ? END",
			quantity, quantity,
		))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
