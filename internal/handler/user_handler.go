package handler

import (
	"io"
	"net/http"

	"defakezone/internal/apperr"
	"defakezone/internal/dto"
	"defakezone/internal/middleware"
	"defakezone/internal/service"
	"defakezone/internal/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler 个人资料处理器
type UserHandler struct {
	accountService *service.AccountService
	maxBytes       int64
}

// NewUserHandler 创建个人资料处理器
func NewUserHandler(accountService *service.AccountService, maxBytes int64) *UserHandler {
	return &UserHandler{
		accountService: accountService,
		maxBytes:       maxBytes,
	}
}

// UpdateUsername 修改用户名
// @Router /api/users/me/username [put]
func (h *UserHandler) UpdateUsername(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.UpdateUsernameRequest
	if !bindJSON(c, &req) {
		return
	}

	info, err := h.accountService.UpdateUsername(c.Request.Context(), userID, req.Username)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "用户名已更新", info)
}

// ChangePassword 修改密码
// @Router /api/users/me/password [put]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.accountService.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "密码已更新", nil)
}

// SetupTwoFactor 初始化两步验证
// @Router /api/users/me/2fa/setup [post]
func (h *UserHandler) SetupTwoFactor(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	resp, err := h.accountService.SetupTwoFactor(c.Request.Context(), userID)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessResponse(c, resp)
}

// EnableTwoFactor 开启两步验证
// @Router /api/users/me/2fa/enable [post]
func (h *UserHandler) EnableTwoFactor(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.TwoFactorCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.accountService.EnableTwoFactor(c.Request.Context(), userID, req.Code); err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "两步验证已开启", nil)
}

// DisableTwoFactor 关闭两步验证
// @Router /api/users/me/2fa/disable [post]
func (h *UserHandler) DisableTwoFactor(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.TwoFactorCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.accountService.DisableTwoFactor(c.Request.Context(), userID, req.Code); err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "两步验证已关闭", nil)
}

// Deactivate 停用账户
// @Router /api/users/me/deactivate [post]
func (h *UserHandler) Deactivate(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.DeactivateRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.accountService.Deactivate(c.Request.Context(), userID, req.Password); err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "账户已停用", nil)
}

// UploadAvatar 上传头像
// @Router /api/users/me/avatar [post]
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	req, err := readUpload(c, h.maxBytes)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	if err := h.accountService.UpdateAvatar(c.Request.Context(), userID, req); err != nil {
		utils.FailWithError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "头像已更新", nil)
}

// GetAvatar 获取头像
// @Router /api/users/me/avatar [get]
func (h *UserHandler) GetAvatar(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	rc, err := h.accountService.OpenAvatar(c.Request.Context(), userID)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		utils.FailWithError(c, apperr.Wrap(apperr.StorageError, "读取头像失败", err))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
