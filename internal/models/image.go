package models

import (
	"time"
)

// StoredImage 检测记录，创建后不再修改
// FilePath 指向存储中的对象，行与文件同时存在、同时删除。
// UserID 为外键，用户删除后插入会失败。
type StoredImage struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	FilePath    string    `gorm:"uniqueIndex;size:255;not null" json:"filePath"`
	Label       string    `gorm:"size:16;not null" json:"result"`
	Probability float64   `gorm:"not null" json:"probability"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName 指定表名
func (StoredImage) TableName() string {
	return "stored_images"
}
