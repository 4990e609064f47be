package repository

import (
	"context"

	"defakezone/internal/models"

	"gorm.io/gorm"
)

// ImageRepository 检测记录数据访问层
type ImageRepository struct {
	db *gorm.DB
}

// NewImageRepository 创建检测记录Repository
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create 插入检测记录，不重试
func (r *ImageRepository) Create(ctx context.Context, image *models.StoredImage) error {
	return r.db.WithContext(ctx).Create(image).Error
}

// GetByID 根据ID获取检测记录
func (r *ImageRepository) GetByID(ctx context.Context, id uint) (*models.StoredImage, error) {
	var image models.StoredImage
	err := r.db.WithContext(ctx).First(&image, id).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// ListByUserID 分页获取用户的检测记录，按创建时间倒序
func (r *ImageRepository) ListByUserID(ctx context.Context, userID uint, offset, limit int) ([]models.StoredImage, int64, error) {
	var images []models.StoredImage
	var total int64

	db := r.db.WithContext(ctx).Model(&models.StoredImage{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&images).Error
	return images, total, err
}

// Delete 删除检测记录
func (r *ImageRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.StoredImage{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
