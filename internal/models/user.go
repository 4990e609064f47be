package models

import (
	"time"
)

// User 用户模型
type User struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	Username         string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email            string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash     string    `gorm:"size:255;not null" json:"-"`
	IsActive         bool      `gorm:"not null" json:"is_active"`
	IsAdmin          bool      `gorm:"default:false" json:"is_admin"`
	TwoFactorEnabled bool      `gorm:"default:false" json:"two_factor_enabled"`
	TOTPSecret       string    `gorm:"size:64" json:"-"`
	PendingTOTP      string    `gorm:"size:64" json:"-"`
	AvatarPath       string    `gorm:"size:255" json:"-"`
	TokenVersion     uint      `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// 关联
	Images []StoredImage `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
