package models

import (
	"time"
)

// Visit 看房预约
type Visit struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID  int64      `gorm:"index;not null" json:"property_id"`
	UserID      int64      `gorm:"index;not null" json:"user_id"`
	ManagerID   *int64     `gorm:"index" json:"manager_id,omitempty"`
	EmployeeID  *int64     `gorm:"index" json:"employee_id,omitempty"`
	Status      string     `gorm:"type:varchar(20);not null;default:PENDING_APPROVAL;index" json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Property *Property      `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	User     *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Employee *User          `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	Feedback []VisitFeedback `gorm:"foreignKey:VisitID" json:"-"`
}

// TableName 表名
func (Visit) TableName() string {
	return "visits"
}

// VisitStatus 看房状态
const (
	VisitStatusPendingApproval = "PENDING_APPROVAL"
	VisitStatusConfirmed       = "CONFIRMED"
	VisitStatusDelayed         = "DELAYED"
	VisitStatusCompleted       = "COMPLETED"
	VisitStatusCancelled       = "CANCELLED"
	VisitStatusBooked          = "BOOKED"
	VisitStatusExpired         = "EXPIRED"
)

// IsTerminalVisitStatus 终态不再接受任何状态变更
func IsTerminalVisitStatus(status string) bool {
	switch status {
	case VisitStatusCancelled, VisitStatusBooked, VisitStatusExpired:
		return true
	}
	return false
}

// IsValidVisitStatus 是否为已知状态
func IsValidVisitStatus(status string) bool {
	switch status {
	case VisitStatusPendingApproval, VisitStatusConfirmed, VisitStatusDelayed,
		VisitStatusCompleted, VisitStatusCancelled, VisitStatusBooked, VisitStatusExpired:
		return true
	}
	return false
}

// UserFeedback 访客反馈，按时间顺序
func (v *Visit) UserFeedback() []VisitFeedback {
	return v.feedbackOf(FeedbackChannelUser)
}

// ManagerFeedback 经理反馈
func (v *Visit) ManagerFeedback() []VisitFeedback {
	return v.feedbackOf(FeedbackChannelManager)
}

// EmployeeFeedback 员工反馈
func (v *Visit) EmployeeFeedback() []VisitFeedback {
	return v.feedbackOf(FeedbackChannelEmployee)
}

func (v *Visit) feedbackOf(channel string) []VisitFeedback {
	list := make([]VisitFeedback, 0)
	for _, f := range v.Feedback {
		if f.Channel == channel {
			list = append(list, f)
		}
	}
	return list
}

// VisitFeedback 看房反馈记录，只追加不修改
type VisitFeedback struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	VisitID         int64     `gorm:"index;not null" json:"visit_id"`
	Channel         string    `gorm:"type:varchar(16);not null" json:"channel"`
	ActorID         int64     `gorm:"not null" json:"actor_id"`
	ActorRole       string    `gorm:"type:varchar(20);not null" json:"actor_role"`
	Text            string    `gorm:"type:text;not null" json:"feedback"`
	ResultingStatus string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

// TableName 表名
func (VisitFeedback) TableName() string {
	return "visit_feedbacks"
}

// FeedbackChannel 反馈渠道
const (
	FeedbackChannelUser     = "user"
	FeedbackChannelManager  = "manager"
	FeedbackChannelEmployee = "employee"
)
