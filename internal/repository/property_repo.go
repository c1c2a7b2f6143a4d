package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// PropertyRepository 房源仓储（只读为主，房源录入由房源服务负责）
type PropertyRepository struct {
	db *gorm.DB
}

// NewPropertyRepository 创建房源仓储
func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// WithTx 使用事务
func (r *PropertyRepository) WithTx(tx *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: tx}
}

// Create 创建房源
func (r *PropertyRepository) Create(ctx context.Context, property *models.Property) error {
	return r.db.WithContext(ctx).Create(property).Error
}

// GetByID 根据 ID 获取房源
func (r *PropertyRepository) GetByID(ctx context.Context, id int64) (*models.Property, error) {
	var property models.Property
	err := r.db.WithContext(ctx).First(&property, id).Error
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// GetByIDForUpdate 在事务中锁定房源行（SELECT ... FOR UPDATE）
// 同一房源下的看房申请在该锁上串行
func (r *PropertyRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Property, error) {
	var property models.Property
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&property, id).Error
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// ListIDsByManager 经理负责的房源ID，没有时返回空切片
func (r *PropertyRepository) ListIDsByManager(ctx context.Context, managerID int64) ([]int64, error) {
	ids := []int64{}
	err := r.db.WithContext(ctx).Model(&models.Property{}).
		Where("manager_id = ?", managerID).
		Pluck("id", &ids).Error
	return ids, err
}

// ListIDsByOwner 业主名下的房源ID
func (r *PropertyRepository) ListIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	ids := []int64{}
	err := r.db.WithContext(ctx).Model(&models.Property{}).
		Where("owner_id = ?", ownerID).
		Pluck("id", &ids).Error
	return ids, err
}
