package models

import (
	"time"
)

const (
	PurposePasswordReset = "password_reset"
	PurposeReactivation  = "reactivation"
)

// VerificationCode 邮件验证码，只保存哈希
type VerificationCode struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	Purpose    string     `gorm:"size:32;not null;index" json:"purpose"`
	CodeHash   string     `gorm:"size:255;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
	CreatedAt  time.Time  `json:"created_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (VerificationCode) TableName() string {
	return "verification_codes"
}
