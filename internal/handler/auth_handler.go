package handler

import (
	"defakezone/internal/dto"
	"defakezone/internal/middleware"
	"defakezone/internal/service"
	"defakezone/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register 用户注册
// @Summary 用户注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "注册信息"
// @Success 200 {object} utils.Response{data=dto.UserInfo}
// @Router /api/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	info, err := h.authService.GetMe(c.Request.Context(), user.ID)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "注册成功", info)
}

// Login 用户登录
// @Summary 用户登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "登录信息"
// @Success 200 {object} utils.Response{data=dto.LoginResponse}
// @Router /api/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "登录成功", resp)
}

// GetMe 获取当前用户信息
// @Summary 获取当前用户信息
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response{data=dto.UserInfo}
// @Router /api/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "未认证")
		return
	}

	userInfo, err := h.authService.GetMe(c.Request.Context(), userID)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.SuccessResponse(c, userInfo)
}

// Logout 用户登出
// @Summary 用户登出
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Router /api/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	// JWT是无状态的,登出只需客户端删除Token
	utils.SuccessWithMessage(c, "登出成功", nil)
}

// ForgotPassword 发送密码重置验证码
// @Summary 忘记密码
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "邮箱"
// @Success 200 {object} utils.Response
// @Router /api/password/forgot [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.EmailRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "如果该邮箱已注册，验证码已发送", nil)
}

// ResetPassword 使用验证码重置密码
// @Summary 重置密码
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "重置信息"
// @Success 200 {object} utils.Response
// @Router /api/password/reset [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req); err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "密码已重置", nil)
}

// RequestReactivation 发送账户激活验证码
// @Summary 请求重新激活账户
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "邮箱"
// @Success 200 {object} utils.Response
// @Router /api/account/reactivate/request [post]
func (h *AuthHandler) RequestReactivation(c *gin.Context) {
	var req dto.EmailRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.RequestReactivation(c.Request.Context(), req.Email); err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "如果该账户已停用，验证码已发送", nil)
}

// Reactivate 使用验证码重新激活账户
// @Summary 重新激活账户
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.ReactivateRequest true "激活信息"
// @Success 200 {object} utils.Response
// @Router /api/account/reactivate [post]
func (h *AuthHandler) Reactivate(c *gin.Context) {
	var req dto.ReactivateRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.Reactivate(c.Request.Context(), &req); err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "账户已重新激活", nil)
}

// bindJSON 绑定并校验请求体，失败时直接输出400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequest(c, utils.FormatValidationError(err).Error())
		return false
	}
	return true
}
