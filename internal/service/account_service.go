package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"defakezone/internal/apperr"
	"defakezone/internal/config"
	"defakezone/internal/dto"
	"defakezone/internal/models"
	"defakezone/internal/repository"
	"defakezone/internal/storage"
	"defakezone/internal/upload"
	"defakezone/internal/utils"

	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AvatarPrefix 头像在存储中的目录
const AvatarPrefix = "avatars"

// AccountService 个人资料服务
type AccountService struct {
	userRepo   *repository.UserRepository
	validator  *upload.Validator
	normalizer *upload.Normalizer
	store      storage.Store
	cfg        *config.Config
	logger     logrus.FieldLogger
}

// NewAccountService 创建个人资料服务
// normalizer 使用头像尺寸上限。
func NewAccountService(
	userRepo *repository.UserRepository,
	validator *upload.Validator,
	normalizer *upload.Normalizer,
	store storage.Store,
	cfg *config.Config,
	logger logrus.FieldLogger,
) *AccountService {
	return &AccountService{
		userRepo:   userRepo,
		validator:  validator,
		normalizer: normalizer,
		store:      store,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *AccountService) getUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "用户不存在")
		}
		return nil, apperr.Wrap(apperr.Internal, "查询用户失败", err)
	}
	return user, nil
}

// UpdateUsername 修改用户名
func (s *AccountService) UpdateUsername(ctx context.Context, userID uint, username string) (*dto.UserInfo, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Username == username {
		info := toUserInfo(user)
		return &info, nil
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "检查用户名失败", err)
	}
	if exists {
		return nil, apperr.New(apperr.Conflict, "用户名已存在")
	}

	user.Username = username
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "更新用户名失败", err)
	}

	info := toUserInfo(user)
	return &info, nil
}

// ChangePassword 修改密码，需要验证当前密码，已签发的Token随之失效
func (s *AccountService) ChangePassword(ctx context.Context, userID uint, req *dto.ChangePasswordRequest) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return apperr.New(apperr.InvalidCredentials, "当前密码错误")
	}

	hashedPassword, err := hashNewPassword(req.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hashedPassword
	user.TokenVersion++
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Wrap(apperr.Internal, "更新密码失败", err)
	}
	return nil
}

// SetupTwoFactor 生成待确认的TOTP密钥
// 调用 EnableTwoFactor 确认前不会生效。
func (s *AccountService) SetupTwoFactor(ctx context.Context, userID uint) (*dto.TwoFactorSetupResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, apperr.New(apperr.Conflict, "两步验证已开启")
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Auth.TOTPIssuer,
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("生成TOTP密钥失败: %w", err)
	}

	user.PendingTOTP = key.Secret()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "保存TOTP密钥失败", err)
	}

	return &dto.TwoFactorSetupResponse{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// EnableTwoFactor 校验验证码后开启两步验证
func (s *AccountService) EnableTwoFactor(ctx context.Context, userID uint, code string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return apperr.New(apperr.Conflict, "两步验证已开启")
	}
	if user.PendingTOTP == "" {
		return apperr.New(apperr.BadRequest, "请先初始化两步验证")
	}
	if !totp.Validate(code, user.PendingTOTP) {
		return apperr.New(apperr.InvalidCode, "两步验证码错误")
	}

	user.TOTPSecret = user.PendingTOTP
	user.PendingTOTP = ""
	user.TwoFactorEnabled = true
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Wrap(apperr.Internal, "开启两步验证失败", err)
	}

	s.logger.WithField("user_id", userID).Info("两步验证已开启")
	return nil
}

// DisableTwoFactor 校验验证码后关闭两步验证
func (s *AccountService) DisableTwoFactor(ctx context.Context, userID uint, code string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return apperr.New(apperr.BadRequest, "两步验证未开启")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return apperr.New(apperr.InvalidCode, "两步验证码错误")
	}

	user.TOTPSecret = ""
	user.TwoFactorEnabled = false
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Wrap(apperr.Internal, "关闭两步验证失败", err)
	}

	s.logger.WithField("user_id", userID).Info("两步验证已关闭")
	return nil
}

// Deactivate 停用账户，可通过邮箱验证码重新激活
func (s *AccountService) Deactivate(ctx context.Context, userID uint, password string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return apperr.New(apperr.InvalidCredentials, "密码错误")
	}

	user.IsActive = false
	user.TokenVersion++
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Wrap(apperr.Internal, "停用账户失败", err)
	}

	s.logger.WithField("user_id", userID).Info("账户已停用")
	return nil
}

// UpdateAvatar 上传头像
// 与检测图片使用相同的校验与规范化流程，旧头像在记录更新后删除。
func (s *AccountService) UpdateAvatar(ctx context.Context, userID uint, req UploadRequest) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.validator.Validate(req.Data, req.ContentType, req.Filename); err != nil {
		return err
	}

	normalized, err := s.normalizer.Normalize(ctx, req.Data, AvatarPrefix)
	if err != nil {
		return err
	}

	log := s.logger.WithFields(logrus.Fields{"user_id": userID, "key": normalized.Key})

	previous := user.AvatarPath
	user.AvatarPath = normalized.Key
	if err := s.userRepo.Update(ctx, user); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), normalized.Key); delErr != nil {
			log.WithError(delErr).Error("清理未提交的头像失败")
		}
		return apperr.Wrap(apperr.PersistenceError, "保存头像失败", err)
	}

	if previous != "" {
		if err := s.store.Delete(context.WithoutCancel(ctx), previous); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).WithField("previous", previous).Warn("删除旧头像失败")
		}
	}

	log.Info("头像已更新")
	return nil
}

// OpenAvatar 打开当前用户的头像
func (s *AccountService) OpenAvatar(ctx context.Context, userID uint) (io.ReadCloser, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AvatarPath == "" {
		return nil, apperr.New(apperr.NotFound, "未设置头像")
	}

	rc, err := s.store.Open(ctx, user.AvatarPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "头像文件不存在")
		}
		return nil, apperr.Wrap(apperr.StorageError, "读取头像失败", err)
	}
	return rc, nil
}
