package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path"

	"defakezone/internal/apperr"
	"defakezone/internal/storage"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	// 注册 webp 解码器
	_ "golang.org/x/image/webp"
)

// maxPixels 解码前拒绝超大像素数，防止解压炸弹
const maxPixels = 64 * 1024 * 1024

// IDGenerator 生成唯一文件名
type IDGenerator interface {
	New() string
}

// UUIDGenerator 随机UUID
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// NormalizedImage 规范化后的图片
type NormalizedImage struct {
	Key    string
	Data   []byte
	Width  int
	Height int
}

// Normalizer 解码、缩放、去除透明通道并重新编码为 JPEG 后写入存储
type Normalizer struct {
	store   storage.Store
	ids     IDGenerator
	maxDim  int
	quality int
	logger  logrus.FieldLogger
}

// NewNormalizer 创建规范化器，ids 为 nil 时使用 UUID
func NewNormalizer(store storage.Store, ids IDGenerator, maxDim, quality int, logger logrus.FieldLogger) *Normalizer {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Normalizer{
		store:   store,
		ids:     ids,
		maxDim:  maxDim,
		quality: quality,
		logger:  logger,
	}
}

// Normalize 处理图片并以 <prefix>/<id>.jpg 写入存储
// 文件名从不使用用户提供的原始文件名。失败时不会留下文件。
func (n *Normalizer) Normalize(ctx context.Context, data []byte, prefix string) (*NormalizedImage, error) {
	encoded, w, h, err := n.Transform(data)
	if err != nil {
		return nil, err
	}

	key := path.Join(prefix, n.ids.New()+".jpg")
	if err := n.store.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), "image/jpeg"); err != nil {
		return nil, apperr.Wrap(apperr.StorageError, "保存图片失败", err)
	}

	n.logger.WithFields(logrus.Fields{
		"key":    key,
		"width":  w,
		"height": h,
		"bytes":  len(encoded),
	}).Debug("图片已规范化")

	return &NormalizedImage{Key: key, Data: encoded, Width: w, Height: h}, nil
}

// Transform 仅做图像变换，不写入存储
func (n *Normalizer) Transform(data []byte) ([]byte, int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, apperr.Wrap(apperr.ProcessingError, "无法解析图片", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, 0, 0, apperr.New(apperr.ProcessingError, "图片尺寸不受支持")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, apperr.Wrap(apperr.ProcessingError, "无法解析图片", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > n.maxDim || bounds.Dy() > n.maxDim {
		img = imaging.Fit(img, n.maxDim, n.maxDim, imaging.Lanczos)
	}

	flat := Flatten(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(n.quality)); err != nil {
		return nil, 0, 0, apperr.Wrap(apperr.ProcessingError, "图片编码失败", err)
	}

	b := flat.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}

// Flatten 将图片合成到白色背景上，去除透明通道
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
