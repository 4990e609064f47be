package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"defakezone/internal/apperr"
	"defakezone/internal/config"
	"defakezone/internal/dto"
	"defakezone/internal/mail"
	"defakezone/internal/models"
	"defakezone/internal/repository"
	"defakezone/internal/utils"

	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthService 认证服务
type AuthService struct {
	userRepo   *repository.UserRepository
	codeRepo   *repository.VerificationCodeRepository
	jwtManager *utils.JWTManager
	mailer     mail.Mailer
	cfg        *config.Config
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewAuthService 创建认证服务
func NewAuthService(
	userRepo *repository.UserRepository,
	codeRepo *repository.VerificationCodeRepository,
	jwtManager *utils.JWTManager,
	mailer mail.Mailer,
	cfg *config.Config,
	logger logrus.FieldLogger,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		codeRepo:   codeRepo,
		jwtManager: jwtManager,
		mailer:     mailer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Register 用户注册
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)

	// 验证用户名、邮箱是否已存在
	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "检查用户名失败", err)
	}
	if exists {
		return nil, apperr.New(apperr.Conflict, "用户名已存在")
	}
	exists, err = s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "检查邮箱失败", err)
	}
	if exists {
		return nil, apperr.New(apperr.Conflict, "邮箱已被注册")
	}

	// 哈希密码
	hashedPassword, err := hashNewPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     req.Username,
		Email:        email,
		PasswordHash: hashedPassword,
		IsActive:     true,
		IsAdmin:      false,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "创建用户失败", err)
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("用户注册")
	return user, nil
}

// Login 用户登录，开启两步验证的账户需要提供验证码
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.findByLogin(ctx, req.Username)
	if err != nil {
		return nil, apperr.New(apperr.InvalidCredentials, "用户名或密码错误")
	}

	// 验证密码
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return nil, apperr.New(apperr.InvalidCredentials, "用户名或密码错误")
	}

	// 检查用户是否激活
	if !user.IsActive {
		return nil, apperr.New(apperr.AccountInactive, "账户已停用，可通过邮箱重新激活")
	}

	if user.TwoFactorEnabled {
		if req.TOTPCode == "" {
			return nil, apperr.New(apperr.TwoFactorRequired, "需要两步验证码")
		}
		if !totp.Validate(req.TOTPCode, user.TOTPSecret) {
			return nil, apperr.New(apperr.InvalidCode, "两步验证码错误")
		}
	}

	// 生成Token
	token, err := s.jwtManager.GenerateToken(user.ID, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("生成Token失败: %w", err)
	}

	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        toUserInfo(user),
	}, nil
}

func (s *AuthService) findByLogin(ctx context.Context, login string) (*models.User, error) {
	if strings.Contains(login, "@") {
		return s.userRepo.GetByEmail(ctx, normalizeEmail(login))
	}
	return s.userRepo.GetByUsername(ctx, login)
}

// GetMe 获取当前用户信息
func (s *AuthService) GetMe(ctx context.Context, userID uint) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "用户不存在")
	}

	info := toUserInfo(user)
	return &info, nil
}

// InitAdmin 初始化管理员账户
func (s *AuthService) InitAdmin(ctx context.Context) error {
	// 检查是否已有管理员
	admin, err := s.userRepo.GetAdmin(ctx)
	if err == nil && admin != nil {
		return nil
	}

	account := adminAccount{
		Username: s.cfg.Admin.Username,
		Email:    normalizeEmail(s.cfg.Admin.Email),
		Password: s.cfg.Admin.Password,
	}
	if err := utils.ValidateStruct(account); err != nil {
		return fmt.Errorf("管理员配置无效: %w", err)
	}

	// 配置中的密码可以是明文或 bcrypt 哈希
	passwordHash := account.Password
	if !utils.IsHashed(passwordHash) {
		hashedPassword, err := utils.HashPassword(passwordHash)
		if err != nil {
			return fmt.Errorf("密码哈希失败: %w", err)
		}
		passwordHash = hashedPassword
	}

	user := &models.User{
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: passwordHash,
		IsActive:     true,
		IsAdmin:      true,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("创建管理员失败: %w", err)
	}

	s.logger.WithField("username", user.Username).Info("已创建管理员账户")
	return nil
}

// ForgotPassword 发送密码重置验证码
// 邮箱不存在时同样返回成功，避免泄露账户是否存在。
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.Wrap(apperr.Internal, "查询用户失败", err)
	}

	return s.sendCode(ctx, user, models.PurposePasswordReset, mail.PasswordResetMessage)
}

// ResetPassword 使用验证码重置密码，已签发的Token随之失效
func (s *AuthService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return apperr.New(apperr.InvalidCode, "验证码无效或已过期")
	}

	if err := s.consumeCode(ctx, user.ID, models.PurposePasswordReset, req.Code); err != nil {
		return err
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

	s.logger.WithField("user_id", user.ID).Info("密码已重置")
	return nil
}

// RequestReactivation 为已停用的账户发送激活验证码
func (s *AuthService) RequestReactivation(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.Wrap(apperr.Internal, "查询用户失败", err)
	}
	if user.IsActive {
		return nil
	}

	return s.sendCode(ctx, user, models.PurposeReactivation, mail.ReactivationMessage)
}

// Reactivate 使用验证码重新激活账户
func (s *AuthService) Reactivate(ctx context.Context, req *dto.ReactivateRequest) error {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return apperr.New(apperr.InvalidCode, "验证码无效或已过期")
	}

	if err := s.consumeCode(ctx, user.ID, models.PurposeReactivation, req.Code); err != nil {
		return err
	}

	user.IsActive = true
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Wrap(apperr.Internal, "激活账户失败", err)
	}

	s.logger.WithField("user_id", user.ID).Info("账户已重新激活")
	return nil
}

type messageFunc func(username, code string, ttl time.Duration) (string, string)

// sendCode 生成验证码、保存哈希并发送邮件
// 邮件发送失败只记录日志。
func (s *AuthService) sendCode(ctx context.Context, user *models.User, purpose string, message messageFunc) error {
	code, err := utils.GenerateNumericCode(6)
	if err != nil {
		return fmt.Errorf("生成验证码失败: %w", err)
	}
	hash, err := utils.HashCode(code)
	if err != nil {
		return fmt.Errorf("验证码哈希失败: %w", err)
	}

	ttl := s.cfg.Auth.GetCodeTTL()
	record := &models.VerificationCode{
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  hash,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.codeRepo.Replace(ctx, record); err != nil {
		return apperr.Wrap(apperr.Internal, "保存验证码失败", err)
	}

	subject, body := message(user.Username, code, ttl)
	log := s.logger.WithFields(logrus.Fields{"user_id": user.ID, "purpose": purpose})
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		log.WithError(err).Error("发送验证码邮件失败")
		return nil
	}
	log.Info("验证码已发送")
	return nil
}

// consumeCode 校验并作废验证码
func (s *AuthService) consumeCode(ctx context.Context, userID uint, purpose, code string) error {
	now := s.now()
	record, err := s.codeRepo.GetActive(ctx, userID, purpose, now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.InvalidCode, "验证码无效或已过期")
		}
		return apperr.Wrap(apperr.Internal, "查询验证码失败", err)
	}

	if !utils.CheckPassword(code, record.CodeHash) {
		return apperr.New(apperr.InvalidCode, "验证码无效或已过期")
	}

	ok, err := s.codeRepo.MarkConsumed(ctx, record.ID, now)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "更新验证码失败", err)
	}
	if !ok {
		return apperr.New(apperr.InvalidCode, "验证码无效或已过期")
	}
	return nil
}

// adminAccount 配置中的管理员账户
type adminAccount struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// hashNewPassword 哈希用户提交的新密码
func hashNewPassword(password string) (string, error) {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return "", apperr.New(apperr.BadRequest, "密码不能超过72字节")
		}
		return "", fmt.Errorf("密码哈希失败: %w", err)
	}
	return hashed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUserInfo(user *models.User) dto.UserInfo {
	return dto.UserInfo{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		IsActive:         user.IsActive,
		IsAdmin:          user.IsAdmin,
		TwoFactorEnabled: user.TwoFactorEnabled,
		HasAvatar:        user.AvatarPath != "",
		CreatedAt:        user.CreatedAt,
	}
}
