package upload

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"defakezone/internal/apperr"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// allowedTypes 允许上传的声明类型
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// extensionTypes 扩展名对应的期望类型，用于软校验
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

type signature struct {
	name  string
	magic []byte
}

// dangerousSignatures 已知危险格式的文件头
var dangerousSignatures = []signature{
	{"pe executable", []byte{0x4D, 0x5A}},
	{"elf executable", []byte{0x7F, 0x45, 0x4C, 0x46}},
	{"mach-o executable", []byte{0xFE, 0xED, 0xFA, 0xCE}},
	{"mach-o executable", []byte{0xFE, 0xED, 0xFA, 0xCF}},
	{"mach-o executable", []byte{0xCE, 0xFA, 0xED, 0xFE}},
	{"mach-o executable", []byte{0xCF, 0xFA, 0xED, 0xFE}},
	{"mach-o universal binary", []byte{0xCA, 0xFE, 0xBA, 0xBE}},
	{"pdf", []byte("%PDF")},
	{"zip archive", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"zip archive", []byte{0x50, 0x4B, 0x05, 0x06}},
	{"zip archive", []byte{0x50, 0x4B, 0x07, 0x08}},
	{"rar archive", []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07}},
	{"7z archive", []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}},
	{"script", []byte("#!")},
}

// dangerousMIMEs mimetype 检测树中任一祖先命中即视为危险
var dangerousMIMEs = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-elf",
	"application/x-mach-binary",
	"application/pdf",
	"application/zip",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
	"application/gzip",
	"application/x-tar",
	"application/java-archive",
}

// Validator 上传内容校验器
type Validator struct {
	maxBytes int64
	logger   logrus.FieldLogger
}

// NewValidator 创建校验器
func NewValidator(maxBytes int64, logger logrus.FieldLogger) *Validator {
	return &Validator{maxBytes: maxBytes, logger: logger}
}

// Validate 依次检查声明类型、大小与文件头
// 声明类型与扩展名均由调用方提供，不可信，危险文件头无论声明为何都会被拒绝。
func (v *Validator) Validate(data []byte, declaredType, filename string) error {
	mediaType := normalizeMediaType(declaredType)
	if !AllowedType(mediaType) {
		return apperr.New(apperr.InvalidType, "仅支持 JPEG、PNG、WEBP 格式的图片")
	}

	if int64(len(data)) > v.maxBytes {
		return apperr.New(apperr.TooLarge, "文件大小超过限制")
	}

	if name, ok := matchDangerous(data); ok {
		v.logger.WithFields(logrus.Fields{
			"filename":      filename,
			"declared_type": mediaType,
			"signature":     name,
		}).Warn("检测到可疑文件头，已拒绝上传")
		return apperr.New(apperr.SuspectedMalware, "文件内容疑似恶意文件")
	}

	v.checkExtension(data, filename, mediaType)
	return nil
}

// checkExtension 文件头与扩展名不一致时只记录日志
func (v *Validator) checkExtension(data []byte, filename, mediaType string) {
	ext := strings.ToLower(filepath.Ext(filename))
	expected, known := extensionTypes[ext]
	detected := mimetype.Detect(data)

	if known && !detected.Is(expected) {
		v.logger.WithFields(logrus.Fields{
			"filename":      filename,
			"declared_type": mediaType,
			"expected_type": expected,
			"detected_type": detected.String(),
		}).Warn("文件头与扩展名不一致")
	}
}

// AllowedType 声明类型是否在允许范围内，忽略参数与大小写
func AllowedType(declared string) bool {
	return allowedTypes[normalizeMediaType(declared)]
}

func normalizeMediaType(declared string) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mediaType
}

func matchDangerous(data []byte) (string, bool) {
	for _, sig := range dangerousSignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.name, true
		}
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		for _, t := range dangerousMIMEs {
			if m.Is(t) {
				return m.String(), true
			}
		}
	}
	return "", false
}
