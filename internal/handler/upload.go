package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"defakezone/internal/apperr"
	"defakezone/internal/service"
	"defakezone/internal/upload"

	"github.com/gin-gonic/gin"
)

// multipartOverhead 请求体上限在文件上限之外预留的表单开销
const multipartOverhead = 1 << 20

// fileFields 上传文件的表单字段名
var fileFields = map[string]bool{"file": true, "image": true}

// readUpload 流式读取 multipart 上传的文件
// 先检查文件分段声明的类型再读取内容，超大的非图片同样返回 InvalidType。
// 请求体超出上限返回 TooLarge，缺少文件返回 NoFile。
func readUpload(c *gin.Context, maxBytes int64) (service.UploadRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		return service.UploadRequest{}, apperr.Wrap(apperr.NoFile, "请通过 multipart 表单上传文件", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return service.UploadRequest{}, readError(err)
		}

		if part.FileName() == "" || !fileFields[part.FormName()] {
			part.Close()
			continue
		}

		req, err := readPart(part, maxBytes)
		part.Close()
		return req, err
	}

	return service.UploadRequest{}, apperr.New(apperr.NoFile, "未上传文件")
}

func readPart(part *multipart.Part, maxBytes int64) (service.UploadRequest, error) {
	contentType := part.Header.Get("Content-Type")
	if !upload.AllowedType(contentType) {
		return service.UploadRequest{}, apperr.New(apperr.InvalidType, "仅支持 JPEG、PNG、WEBP 格式的图片")
	}

	// 多读一个字节，交给校验器判断是否超限
	data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
	if err != nil {
		return service.UploadRequest{}, readError(err)
	}
	if len(data) == 0 {
		return service.UploadRequest{}, apperr.New(apperr.NoFile, "上传的文件为空")
	}

	return service.UploadRequest{
		Data:        data,
		ContentType: contentType,
		Filename:    part.FileName(),
	}, nil
}

func readError(err error) error {
	if isBodyTooLarge(err) {
		return apperr.Wrap(apperr.TooLarge, "文件大小超过限制", err)
	}
	return apperr.Wrap(apperr.NoFile, "无法读取上传的文件", err)
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
