package models

import (
	"strings"

	"defakezone/internal/config"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 全局数据库实例
var DB *gorm.DB

// InitDB 初始化数据库并迁移表结构
func InitDB(cfg *config.Config) error {
	db, err := Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open 打开数据库并执行自动迁移
// sqlite 默认不检查外键，每个连接都需要开启 foreign_keys。
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// sqlite 只允许一个写者，单连接避免并发写入时的 database is locked
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func withForeignKeys(path string) string {
	if strings.Contains(path, "_foreign_keys=") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

// AutoMigrate 自动迁移数据库表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&StoredImage{},
		&VerificationCode{},
	)
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}
