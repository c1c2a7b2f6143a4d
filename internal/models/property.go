package models

import (
	"time"
)

// Property 房源模型
type Property struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	OwnerID   int64     `gorm:"index;not null" json:"owner_id"`
	ManagerID *int64    `gorm:"index" json:"manager_id,omitempty"`
	City      string    `gorm:"type:varchar(50);not null;default:''" json:"city"`
	Address   string    `gorm:"type:varchar(255);not null;default:''" json:"address"`
	Status    string    `gorm:"type:varchar(20);not null;default:UNLISTED;index" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Rooms []Room `gorm:"foreignKey:PropertyID" json:"rooms,omitempty"`
}

// TableName 表名
func (Property) TableName() string {
	return "properties"
}

// PropertyStatus 房源状态
const (
	PropertyStatusUnlisted        = "UNLISTED"
	PropertyStatusAvailable       = "AVAILABLE"
	PropertyStatusOccupied        = "OCCUPIED"
	PropertyStatusPendingApproval = "PENDING_APPROVAL"
	PropertyStatusRejected        = "REJECTED"
)

// Room 房型库存
// AvailableCount 只能通过库存账本的 Reserve/Release 修改，始终满足 0 <= AvailableCount <= TotalCount
type Room struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID     int64     `gorm:"index;not null" json:"property_id"`
	OccupancyType  string    `gorm:"type:varchar(20);not null" json:"occupancy_type"`
	NumberOfBeds   int       `gorm:"not null;default:1" json:"number_of_beds"`
	Rent           int64     `gorm:"not null" json:"rent"` // 月租，单位：分
	TotalCount     int       `gorm:"not null;default:0" json:"total_count"`
	AvailableCount int       `gorm:"not null;default:0;check:available_count >= 0" json:"available_count"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Room) TableName() string {
	return "rooms"
}

// OccupancyType 入住类型
const (
	OccupancySingle = "SINGLE"
	OccupancyDouble = "DOUBLE"
	OccupancyTriple = "TRIPLE"
	OccupancyOthers = "OTHERS"
)
