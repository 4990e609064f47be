package handler

import (
	"strconv"

	"defakezone/internal/middleware"
	"defakezone/internal/service"
	"defakezone/internal/utils"

	"github.com/gin-gonic/gin"
)

// AdminHandler 管理员处理器
type AdminHandler struct {
	adminService *service.AdminService
}

// NewAdminHandler 创建管理员处理器
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// ListUsers 获取所有用户
// @Router /api/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPageLimit {
		perPage = 20
	}

	users, total, err := h.adminService.ListUsers(c.Request.Context(), page, perPage)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.PaginatedResponse(c, users, total, page, perPage)
}

// DeleteUser 删除用户及其检测记录
// @Router /api/admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	operatorID, _ := middleware.GetUserID(c)

	id, err := parseID(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "无效的用户ID")
		return
	}

	if err := h.adminService.DeleteUser(c.Request.Context(), operatorID, id); err != nil {
		utils.FailWithError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "用户已删除", gin.H{"success": true})
}
