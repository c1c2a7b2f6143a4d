// Package models 定义数据模型
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User 用户模型
// 用户资料由账号服务维护，这里只读取角色、上下级关系和推荐信息
type User struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"type:varchar(64);not null;default:''" json:"name"`
	Phone         *string   `gorm:"type:varchar(20);uniqueIndex" json:"phone,omitempty"`
	Email         *string   `gorm:"type:varchar(128)" json:"email,omitempty"`
	Role          string    `gorm:"type:varchar(20);not null;default:USER;index" json:"role"`
	ManagerID     *int64    `gorm:"index" json:"manager_id,omitempty"`
	ReferralCode  *string   `gorm:"type:varchar(16);uniqueIndex" json:"referral_code,omitempty"`
	ReferralCount int       `gorm:"not null;default:0" json:"referral_count"`
	ReferredByID  *int64    `gorm:"index" json:"referred_by_id,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// 用户角色
const (
	RoleAdmin         = "ADMIN"
	RoleManager       = "MANAGER"
	RoleEmployee      = "EMPLOYEE"
	RolePropertyOwner = "PROPERTY_OWNER"
	RoleUser          = "USER"
)

// AfterCreate 未指定推荐码时按用户ID生成
func (u *User) AfterCreate(tx *gorm.DB) error {
	if u.ReferralCode != nil && *u.ReferralCode != "" {
		return nil
	}
	code := GenerateReferralCode(u.ID)
	if err := tx.Model(u).UpdateColumn("referral_code", code).Error; err != nil {
		return err
	}
	u.ReferralCode = &code
	return nil
}

// GenerateReferralCode 取 sha256(id) 前10位十六进制并转大写
func GenerateReferralCode(userID int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(userID, 10)))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:10])
}

// Actor 当前操作人
type Actor struct {
	UserID int64
	Role   string
}

// IsAdmin 是否管理员
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsStaff 管理员或经理
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleManager
}
