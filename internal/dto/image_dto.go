package dto

import "time"

// DetectResponse 检测响应
type DetectResponse struct {
	Message     string  `json:"message"`
	ImageID     uint    `json:"imageId"`
	Result      string  `json:"result"`
	Probability float64 `json:"probability"`
}

// ImageResponse 检测记录
type ImageResponse struct {
	ID          uint      `json:"id"`
	Result      string    `json:"result"`
	Probability float64   `json:"probability"`
	FileURL     string    `json:"fileUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ImageListResponse 检测记录列表
type ImageListResponse struct {
	Data       []ImageResponse `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

// MessageResponse 仅包含消息的响应
type MessageResponse struct {
	Message string `json:"message"`
}
