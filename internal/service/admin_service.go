package service

import (
	"context"
	"errors"

	"defakezone/internal/apperr"
	"defakezone/internal/dto"
	"defakezone/internal/repository"
	"defakezone/internal/storage"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminService 管理员服务
type AdminService struct {
	userRepo *repository.UserRepository
	store    storage.Store
	logger   logrus.FieldLogger
}

// NewAdminService 创建管理员服务
func NewAdminService(userRepo *repository.UserRepository, store storage.Store, logger logrus.FieldLogger) *AdminService {
	return &AdminService{
		userRepo: userRepo,
		store:    store,
		logger:   logger,
	}
}

// ListUsers 分页获取用户列表
func (s *AdminService) ListUsers(ctx context.Context, page, perPage int) ([]dto.UserInfo, int64, error) {
	users, total, err := s.userRepo.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Internal, "获取用户列表失败", err)
	}

	infos := make([]dto.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, toUserInfo(&users[i]))
	}
	return infos, total, nil
}

// DeleteUser 删除用户及其全部检测记录和文件
// 记录在同一事务中删除，文件在事务提交后逐个删除。
func (s *AdminService) DeleteUser(ctx context.Context, operatorID, userID uint) error {
	if operatorID == userID {
		return apperr.New(apperr.BadRequest, "不能删除自己")
	}

	keys, err := s.userRepo.Delete(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.NotFound, "用户不存在")
		}
		return apperr.Wrap(apperr.Internal, "删除用户失败", err)
	}

	log := s.logger.WithFields(logrus.Fields{"operator_id": operatorID, "user_id": userID})
	cleanupCtx := context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Delete(cleanupCtx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).WithField("key", key).Error("删除用户文件失败")
		}
	}

	log.WithField("files", len(keys)).Info("用户已删除")
	return nil
}
