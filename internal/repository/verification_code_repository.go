package repository

import (
	"context"
	"time"

	"defakezone/internal/models"

	"gorm.io/gorm"
)

// VerificationCodeRepository 验证码数据访问层
type VerificationCodeRepository struct {
	db *gorm.DB
}

// NewVerificationCodeRepository 创建验证码Repository
func NewVerificationCodeRepository(db *gorm.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

// Replace 作废同一用途的旧验证码并保存新验证码
func (r *VerificationCodeRepository) Replace(ctx context.Context, code *models.VerificationCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ?", code.UserID, code.Purpose).
			Delete(&models.VerificationCode{}).Error; err != nil {
			return err
		}
		return tx.Create(code).Error
	})
}

// GetActive 获取用户指定用途、未使用且未过期的验证码
func (r *VerificationCodeRepository) GetActive(ctx context.Context, userID uint, purpose string, now time.Time) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ? AND consumed_at IS NULL AND expires_at > ?", userID, purpose, now).
		Order("id DESC").
		First(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// MarkConsumed 标记验证码已使用
// 仅当验证码仍未使用时更新，返回是否成功抢占。
func (r *VerificationCodeRepository) MarkConsumed(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.VerificationCode{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", now)
	return res.RowsAffected == 1, res.Error
}

// DeleteExpired 清理过期验证码
func (r *VerificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.VerificationCode{})
	return res.RowsAffected, res.Error
}
