package handler

import (
	"net/http"

	"defakezone/internal/dto"
	"defakezone/internal/service"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查
type HealthHandler struct {
	detectionService *service.DetectionService
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(detectionService *service.DetectionService) *HealthHandler {
	return &HealthHandler{detectionService: detectionService}
}

// Health 服务状态，模型未加载时仍返回200
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:      "ok",
		ModelLoaded: h.detectionService.Ready(),
	})
}
