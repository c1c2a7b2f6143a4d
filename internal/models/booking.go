package models

import (
	"time"
)

// Booking 房间预订
// 每个看房最多生成一个预订，由 visit_id 唯一索引保证
type Booking struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingNo      string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"booking_no"`
	VisitID        int64      `gorm:"uniqueIndex;not null" json:"visit_id"`
	PropertyID     int64      `gorm:"index;not null" json:"property_id"`
	UserID         int64      `gorm:"index;not null" json:"user_id"`
	PaymentAmount  int64      `gorm:"not null" json:"payment_amount"`
	DiscountAmount int64      `gorm:"not null;default:0" json:"discount_amount"`
	PaidAmount     int64      `gorm:"not null" json:"paid_amount"`
	ReferrerID     *int64     `gorm:"index" json:"referrer_id,omitempty"`
	CouponCode     *string    `gorm:"type:varchar(16)" json:"coupon_code,omitempty"`
	Status         string     `gorm:"type:varchar(24);not null;default:PENDING_CONFIRMATION;index" json:"status"`
	Validity       *time.Time `gorm:"index" json:"validity,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CancelReason   *string    `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Property *Property     `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	User     *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Rooms    []BookingRoom `gorm:"foreignKey:BookingID" json:"rooms,omitempty"`
}

// TableName 表名
func (Booking) TableName() string {
	return "bookings"
}

// BookingStatus 预订状态
const (
	BookingStatusPendingConfirmation = "PENDING_CONFIRMATION"
	BookingStatusConfirmed           = "CONFIRMED"
	BookingStatusCancelled           = "CANCELLED"
	BookingStatusExpired             = "EXPIRED"
)

// BookingValidAt 已确认且在有效期内
func BookingValidAt(status string, validity *time.Time, now time.Time) bool {
	return status == BookingStatusConfirmed && validity != nil && now.Before(*validity)
}

// BookingStatusStage 预订状态在生命周期中的先后顺序，状态只会向后推进
// 待确认为 1，已确认为 2，已取消与已过期为 3，未知状态为 0
func BookingStatusStage(status string) int64 {
	switch status {
	case BookingStatusPendingConfirmation:
		return 1
	case BookingStatusConfirmed:
		return 2
	case BookingStatusCancelled, BookingStatusExpired:
		return 3
	}
	return 0
}

// BookingRoom 预订明细，租金在预留库存时锁定
type BookingRoom struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingID     int64     `gorm:"index;not null" json:"booking_id"`
	RoomID        int64     `gorm:"index;not null" json:"room_id"`
	Quantity      int       `gorm:"not null" json:"quantity"`
	RentAtBooking int64     `gorm:"not null" json:"rent_at_booking"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	Room *Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

// TableName 表名
func (BookingRoom) TableName() string {
	return "booking_rooms"
}

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&Property{},
		&Room{},
		&Visit{},
		&VisitFeedback{},
		&Booking{},
		&BookingRoom{},
	}
}
