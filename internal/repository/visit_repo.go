package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/database"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// VisitRepository 看房仓储
type VisitRepository struct {
	db *gorm.DB
}

// NewVisitRepository 创建看房仓储
func NewVisitRepository(db *gorm.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *VisitRepository) WithTx(tx *gorm.DB) *VisitRepository {
	return &VisitRepository{db: tx}
}

// VisitFilter 看房列表过滤条件
type VisitFilter struct {
	UserID      *int64
	ManagerID   *int64
	EmployeeID  *int64
	PropertyIDs []int64
	Status      string
}

// Create 创建看房
func (r *VisitRepository) Create(ctx context.Context, visit *models.Visit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

// GetByID 根据 ID 获取看房
func (r *VisitRepository) GetByID(ctx context.Context, id int64) (*models.Visit, error) {
	var visit models.Visit
	err := r.db.WithContext(ctx).First(&visit, id).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// GetByIDWithDetails 获取看房（包含房源、访客、员工及反馈）
func (r *VisitRepository) GetByIDWithDetails(ctx context.Context, id int64) (*models.Visit, error) {
	var visit models.Visit
	err := r.db.WithContext(ctx).
		Preload("Property").
		Preload("User").
		Preload("Employee").
		Preload("Feedback", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&visit, id).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// ExistsOpenVisit 用户在该房源下是否已有未结束的看房
func (r *VisitRepository) ExistsOpenVisit(ctx context.Context, userID, propertyID int64, closedStatuses []string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Visit{}).
		Where("user_id = ? AND property_id = ? AND status NOT IN ?", userID, propertyID, closedStatuses).
		Count(&count).Error
	return count > 0, err
}

// UpdateIfStatus 仅当状态仍为 from 时更新，返回影响行数
func (r *VisitRepository) UpdateIfStatus(ctx context.Context, id int64, from string, fields map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Visit{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return result.RowsAffected, result.Error
}

// AppendFeedback 追加反馈记录
func (r *VisitRepository) AppendFeedback(ctx context.Context, feedback *models.VisitFeedback) error {
	return r.db.WithContext(ctx).Create(feedback).Error
}

// List 获取看房列表
func (r *VisitRepository) List(ctx context.Context, page, pageSize int, filter VisitFilter) ([]*models.Visit, int64, error) {
	var visits []*models.Visit
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Visit{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ManagerID != nil {
		query = query.Where("manager_id = ?", *filter.ManagerID)
	}
	if filter.EmployeeID != nil {
		query = query.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.PropertyIDs != nil {
		if len(filter.PropertyIDs) == 0 {
			return visits, 0, nil
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
		Scopes(database.OrderByCreatedDesc, database.Paginate(page, pageSize)).
		Find(&visits).Error; err != nil {
		return nil, 0, err
	}

	return visits, total, nil
}

// ExpireCompletedBefore 将完成时间早于 cutoff 的看房批量置为过期
func (r *VisitRepository) ExpireCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Visit{}).
		Where("status = ? AND completed_at < ?", models.VisitStatusCompleted, cutoff).
		Updates(map[string]interface{}{"status": models.VisitStatusExpired})
	return result.RowsAffected, result.Error
}
