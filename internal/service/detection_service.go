package service

import (
	"context"
	"errors"
	"io"

	"defakezone/internal/apperr"
	"defakezone/internal/inference"
	"defakezone/internal/models"
	"defakezone/internal/repository"
	"defakezone/internal/storage"
	"defakezone/internal/upload"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ImagePrefix 检测图片在存储中的目录
const ImagePrefix = "images"

// UploadRequest 单次上传请求，不持久化
type UploadRequest struct {
	Data        []byte
	ContentType string
	Filename    string
}

// DetectResult 检测结果
type DetectResult struct {
	Image      *models.StoredImage
	Prediction *inference.Prediction
}

// DetectionService 上传检测服务
type DetectionService struct {
	imageRepo  *repository.ImageRepository
	validator  *upload.Validator
	normalizer *upload.Normalizer
	classifier *inference.Classifier
	store      storage.Store
	logger     logrus.FieldLogger
}

// NewDetectionService 创建上传检测服务
func NewDetectionService(
	imageRepo *repository.ImageRepository,
	validator *upload.Validator,
	normalizer *upload.Normalizer,
	classifier *inference.Classifier,
	store storage.Store,
	logger logrus.FieldLogger,
) *DetectionService {
	return &DetectionService{
		imageRepo:  imageRepo,
		validator:  validator,
		normalizer: normalizer,
		classifier: classifier,
		store:      store,
		logger:     logger,
	}
}

// Detect 校验、规范化、推理并记录结果
// 文件写入后任何一步失败（包括 ctx 取消）都会删除该文件，不会生成记录。
func (s *DetectionService) Detect(ctx context.Context, userID uint, req UploadRequest) (*DetectResult, error) {
	if err := s.validator.Validate(req.Data, req.ContentType, req.Filename); err != nil {
		return nil, err
	}

	normalized, err := s.normalizer.Normalize(ctx, req.Data, ImagePrefix)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{"user_id": userID, "key": normalized.Key})

	committed := false
	defer func() {
		if committed {
			return
		}
		s.discard(ctx, normalized.Key, log)
	}()

	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.InferenceError, "请求已取消", err)
	}

	pred, err := s.classifier.Classify(ctx, normalized.Data)
	if err != nil {
		log.WithError(err).Error("推理失败")
		return nil, err
	}

	image := &models.StoredImage{
		UserID:      userID,
		FilePath:    normalized.Key,
		Label:       pred.Label,
		Probability: pred.Probability,
	}
	if err := s.imageRepo.Create(ctx, image); err != nil {
		log.WithError(err).Error("保存检测记录失败")
		return nil, apperr.Wrap(apperr.PersistenceError, "保存检测结果失败", err)
	}
	committed = true

	log.WithFields(logrus.Fields{
		"image_id":    image.ID,
		"label":       pred.Label,
		"probability": pred.Probability,
	}).Info("检测完成")

	return &DetectResult{Image: image, Prediction: pred}, nil
}

// discard 删除未提交的文件，失败只记录日志
func (s *DetectionService) discard(ctx context.Context, key string, log logrus.FieldLogger) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Error("清理未提交的文件失败")
		return
	}
	log.Warn("已清理未提交的文件")
}

// List 分页获取用户的检测记录
func (s *DetectionService) List(ctx context.Context, userID uint, page, limit int) ([]models.StoredImage, int64, error) {
	images, total, err := s.imageRepo.ListByUserID(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.PersistenceError, "获取检测记录失败", err)
	}
	return images, total, nil
}

// Get 获取单条检测记录，仅限本人
func (s *DetectionService) Get(ctx context.Context, userID, id uint) (*models.StoredImage, error) {
	image, err := s.imageRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "检测记录不存在")
		}
		return nil, apperr.Wrap(apperr.PersistenceError, "获取检测记录失败", err)
	}
	if image.UserID != userID {
		return nil, apperr.New(apperr.Forbidden, "无权访问该检测记录")
	}
	return image, nil
}

// Open 打开检测记录对应的图片文件，仅限本人
func (s *DetectionService) Open(ctx context.Context, userID, id uint) (io.ReadCloser, *models.StoredImage, error) {
	image, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Open(ctx, image.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.WithFields(logrus.Fields{"image_id": id, "key": image.FilePath}).Error("检测记录对应的文件不存在")
			return nil, nil, apperr.New(apperr.NotFound, "图片文件不存在")
		}
		return nil, nil, apperr.Wrap(apperr.StorageError, "读取图片失败", err)
	}
	return rc, image, nil
}

// Delete 删除检测记录及其文件，仅限本人
// 先删除记录再删除文件，文件删除失败只记录日志。
func (s *DetectionService) Delete(ctx context.Context, userID, id uint) error {
	image, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.imageRepo.Delete(ctx, image.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.NotFound, "检测记录不存在")
		}
		return apperr.Wrap(apperr.PersistenceError, "删除检测记录失败", err)
	}

	log := s.logger.WithFields(logrus.Fields{"user_id": userID, "image_id": image.ID, "key": image.FilePath})
	if err := s.store.Delete(context.WithoutCancel(ctx), image.FilePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Error("删除图片文件失败")
	} else {
		log.Info("检测记录已删除")
	}
	return nil
}

// Ready 推理模型是否可用
func (s *DetectionService) Ready() bool {
	return s.classifier.Ready()
}
