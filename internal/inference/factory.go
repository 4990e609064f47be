package inference

import (
	"os"

	"defakezone/internal/config"

	"github.com/sirupsen/logrus"
)

// NewFromConfig 加载模型并创建推理适配器
// 模型无法加载时返回使用 UnavailableScorer 的适配器，服务其余功能照常可用。
func NewFromConfig(cfg config.ModelConfig, logger logrus.FieldLogger) *Classifier {
	mode := OutputMode(cfg.OutputMode)

	if _, err := os.Stat(cfg.Path); err != nil {
		logger.WithError(err).WithField("path", cfg.Path).Error("模型文件不可用，推理接口将返回错误")
		return NewClassifier(UnavailableScorer{Reason: err}, cfg.InputWidth, cfg.InputHeight, mode)
	}

	scorer, err := NewONNXScorer(ONNXOptions{
		ModelPath:   cfg.Path,
		LibraryPath: cfg.LibraryPath,
		InputName:   cfg.InputName,
		OutputName:  cfg.OutputName,
	})
	if err != nil {
		logger.WithError(err).WithField("path", cfg.Path).Error("加载模型失败，推理接口将返回错误")
		return NewClassifier(UnavailableScorer{Reason: err}, cfg.InputWidth, cfg.InputHeight, mode)
	}

	logger.WithFields(logrus.Fields{
		"path":   cfg.Path,
		"width":  cfg.InputWidth,
		"height": cfg.InputHeight,
		"mode":   mode,
	}).Info("模型已加载")
	return NewClassifier(scorer, cfg.InputWidth, cfg.InputHeight, mode)
}
