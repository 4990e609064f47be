package storage

import (
	"context"
	"fmt"

	"defakezone/internal/config"

	"github.com/sirupsen/logrus"
)

// NewFromConfig 根据配置创建存储后端
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, logger logrus.FieldLogger) (Store, error) {
	switch cfg.Backend {
	case "", "filesystem":
		return NewFileSystemStore(cfg.Root)
	case "minio":
		return NewMinioStore(ctx, cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL, logger)
	default:
		return nil, fmt.Errorf("未知的存储后端: %q", cfg.Backend)
	}
}
