package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"defakezone/internal/apperr"
	"defakezone/internal/dto"
	"defakezone/internal/middleware"
	"defakezone/internal/models"
	"defakezone/internal/service"
	"defakezone/internal/utils"

	"github.com/gin-gonic/gin"
)

const maxPageLimit = 100

// ImageHandler 检测处理器
type ImageHandler struct {
	detectionService *service.DetectionService
	maxBytes         int64
}

// NewImageHandler 创建检测处理器
func NewImageHandler(detectionService *service.DetectionService, maxBytes int64) *ImageHandler {
	return &ImageHandler{
		detectionService: detectionService,
		maxBytes:         maxBytes,
	}
}

// Detect 上传图片并检测
// @Summary 上传图片并检测
// @Tags 检测
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "图片文件"
// @Success 200 {object} dto.DetectResponse
// @Router /api/images/detect [post]
func (h *ImageHandler) Detect(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "未认证")
		return
	}

	req, err := readUpload(c, h.maxBytes)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	result, err := h.detectionService.Detect(c.Request.Context(), userID, req)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DetectResponse{
		Message:     "检测完成",
		ImageID:     result.Image.ID,
		Result:      result.Image.Label,
		Probability: result.Image.Probability,
	})
}

// List 分页获取检测历史
// @Summary 获取检测历史
// @Tags 检测
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} dto.ImageListResponse
// @Router /api/images [get]
func (h *ImageHandler) List(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "未认证")
		return
	}

	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	limit, err := positiveQuery(c, "limit", 10)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	images, total, err := h.detectionService.List(c.Request.Context(), userID, page, limit)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	data := make([]dto.ImageResponse, 0, len(images))
	for i := range images {
		data = append(data, toImageResponse(&images[i]))
	}

	c.JSON(http.StatusOK, dto.ImageListResponse{
		Data:       data,
		Pagination: dto.NewPagination(total, page, limit),
	})
}

// Get 获取单条检测记录
// @Summary 获取检测记录
// @Tags 检测
// @Produce json
// @Security BearerAuth
// @Param id path int true "记录ID"
// @Success 200 {object} dto.ImageResponse
// @Router /api/images/{id} [get]
func (h *ImageHandler) Get(c *gin.Context) {
	userID, id, ok := h.params(c)
	if !ok {
		return
	}

	image, err := h.detectionService.Get(c.Request.Context(), userID, id)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toImageResponse(image))
}

// File 获取检测图片
// @Summary 获取检测图片
// @Tags 检测
// @Produce image/jpeg
// @Security BearerAuth
// @Param id path int true "记录ID"
// @Router /api/images/{id}/file [get]
func (h *ImageHandler) File(c *gin.Context) {
	userID, id, ok := h.params(c)
	if !ok {
		return
	}

	rc, _, err := h.detectionService.Open(c.Request.Context(), userID, id)
	if err != nil {
		utils.FailWithError(c, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		utils.FailWithError(c, apperr.Wrap(apperr.StorageError, "读取图片失败", err))
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Delete 删除检测记录
// @Summary 删除检测记录
// @Tags 检测
// @Produce json
// @Security BearerAuth
// @Param id path int true "记录ID"
// @Success 200 {object} dto.MessageResponse
// @Router /api/images/{id} [delete]
func (h *ImageHandler) Delete(c *gin.Context) {
	userID, id, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.detectionService.Delete(c.Request.Context(), userID, id); err != nil {
		utils.FailWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "检测记录已删除"})
}

// params 解析当前用户与路径中的记录ID
func (h *ImageHandler) params(c *gin.Context) (uint, uint, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "未认证")
		return 0, 0, false
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "无效的记录ID")
		return 0, 0, false
	}
	return userID, id, true
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("id 必须为正整数")
	}
	return uint(id), nil
}

// positiveQuery 读取正整数查询参数，缺省时返回默认值
func positiveQuery(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s 必须为正整数", key)
	}
	return n, nil
}

func toImageResponse(image *models.StoredImage) dto.ImageResponse {
	return dto.ImageResponse{
		ID:          image.ID,
		Result:      image.Label,
		Probability: image.Probability,
		FileURL:     fmt.Sprintf("/api/images/%d/file", image.ID),
		CreatedAt:   image.CreatedAt,
	}
}
