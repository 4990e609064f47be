package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig 加载配置文件（进程内只加载一次）
func LoadConfig(configFile string) (*Config, error) {
	var err error

	once.Do(func() {
		var cfg *Config
		cfg, err = Load(configFile)
		if err == nil {
			globalConfig = cfg
		}
	})

	return globalConfig, err
}

// Load 从文件加载配置，环境变量 DEFAKE_<SECTION>_<KEY> 覆盖文件中的值
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("DEFAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	setDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// bindEnvKeys Unmarshal 只会读取已知的 key，敏感项需要显式绑定才能只从环境变量提供
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"jwt.secret_key",
		"admin.password",
		"redis_service.password",
		"storage.minio.access_key",
		"storage.minio.secret_key",
		"mail.password",
	} {
		_ = v.BindEnv(key)
	}
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 18080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./database/defakezone.db"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Algorithm == "" {
		cfg.JWT.Algorithm = "HS256"
	}
	if cfg.JWT.ExpireMinutes == 0 {
		cfg.JWT.ExpireMinutes = 1440
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.Email == "" {
		cfg.Admin.Email = "admin@defakezone.local"
	}
	if cfg.CORS.AllowMethods == nil {
		cfg.CORS.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if cfg.CORS.AllowHeaders == nil {
		cfg.CORS.AllowHeaders = []string{"Authorization", "Content-Type"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = 10 << 20
	}
	if cfg.Upload.MaxDimension == 0 {
		cfg.Upload.MaxDimension = 1024
	}
	if cfg.Upload.AvatarMaxDimension == 0 {
		cfg.Upload.AvatarMaxDimension = 256
	}
	if cfg.Upload.JPEGQuality == 0 {
		cfg.Upload.JPEGQuality = 90
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "filesystem"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "./uploads"
	}
	if cfg.Model.Path == "" {
		cfg.Model.Path = "./models/deepfake_detector.onnx"
	}
	if cfg.Model.InputWidth == 0 {
		cfg.Model.InputWidth = 224
	}
	if cfg.Model.InputHeight == 0 {
		cfg.Model.InputHeight = 224
	}
	if cfg.Model.OutputMode == "" {
		cfg.Model.OutputMode = "ratio"
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 10
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.Mail.Backend == "" {
		cfg.Mail.Backend = "log"
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = "no-reply@defakezone.local"
	}
	if cfg.Auth.CodeTTLMinutes == 0 {
		cfg.Auth.CodeTTLMinutes = 15
	}
	if cfg.Auth.TOTPIssuer == "" {
		cfg.Auth.TOTPIssuer = "DefakeZone"
	}
}

// validateConfig 验证配置
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("无效的服务器端口: %d", cfg.Server.Port)
	}

	if cfg.JWT.SecretKey == "" {
		return fmt.Errorf("JWT密钥不能为空")
	}

	if cfg.Admin.Password == "" {
		return fmt.Errorf("管理员密码不能为空")
	}

	if cfg.Upload.MaxBytes < 0 {
		return fmt.Errorf("无效的上传大小上限: %d", cfg.Upload.MaxBytes)
	}

	if cfg.Model.OutputMode != "ratio" && cfg.Model.OutputMode != "softmax" {
		return fmt.Errorf("无效的模型输出模式: %s", cfg.Model.OutputMode)
	}

	if cfg.RateLimit.Requests < 0 || cfg.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("无效的限流配置")
	}

	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.Host == "" {
			return fmt.Errorf("redis限流需要配置 redis_service.host")
		}
	default:
		return fmt.Errorf("未知的限流后端: %s", cfg.RateLimit.Backend)
	}

	if cfg.Mail.Backend == "smtp" && cfg.Mail.Host == "" {
		return fmt.Errorf("smtp邮件需要配置 mail.host")
	}

	// 检查数据库目录是否存在
	dbDir := filepath.Dir(cfg.Database.Path)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	return nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}
