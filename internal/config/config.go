package config

import (
	"fmt"
	"time"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis_service"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Model     ModelConfig     `mapstructure:"model"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Mail      MailConfig      `mapstructure:"mail"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ProductionMode bool   `mapstructure:"production_mode"`
}

// GetAddress 获取服务器地址
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig Redis配置，仅在 rate_limit.backend=redis 时使用
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// GetAddress 获取Redis地址
func (r *RedisConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig JWT配置
type JWTConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	Algorithm     string `mapstructure:"algorithm"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

// GetExpireDuration 获取过期时间
func (j *JWTConfig) GetExpireDuration() time.Duration {
	return time.Duration(j.ExpireMinutes) * time.Minute
}

// AdminConfig 管理员配置
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// CORSConfig CORS配置
type CORSConfig struct {
	Origins          []string `mapstructure:"origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// UploadConfig 上传校验与规范化配置
type UploadConfig struct {
	MaxBytes           int64 `mapstructure:"max_bytes"`
	MaxDimension       int   `mapstructure:"max_dimension"`
	AvatarMaxDimension int   `mapstructure:"avatar_max_dimension"`
	JPEGQuality        int   `mapstructure:"jpeg_quality"`
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // filesystem, minio
	Root    string      `mapstructure:"root"`
	Minio   MinioConfig `mapstructure:"minio"`
}

// MinioConfig MinIO配置
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ModelConfig 推理模型配置
type ModelConfig struct {
	Path        string `mapstructure:"path"`
	LibraryPath string `mapstructure:"library_path"`
	InputName   string `mapstructure:"input_name"`
	OutputName  string `mapstructure:"output_name"`
	InputWidth  int    `mapstructure:"input_width"`
	InputHeight int    `mapstructure:"input_height"`
	OutputMode  string `mapstructure:"output_mode"` // ratio, softmax
}

// RateLimitConfig 上传限流配置
type RateLimitConfig struct {
	Backend       string `mapstructure:"backend"` // memory, redis
	Requests      int    `mapstructure:"requests"`
	WindowSeconds int    `mapstructure:"window_seconds"`
}

// GetWindow 获取窗口时长
func (r *RateLimitConfig) GetWindow() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// MailConfig 邮件配置
type MailConfig struct {
	Backend  string `mapstructure:"backend"` // log, smtp
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// AuthConfig 账户相关配置
type AuthConfig struct {
	CodeTTLMinutes int    `mapstructure:"code_ttl_minutes"`
	TOTPIssuer     string `mapstructure:"totp_issuer"`
}

// GetCodeTTL 验证码有效期
func (a *AuthConfig) GetCodeTTL() time.Duration {
	return time.Duration(a.CodeTTLMinutes) * time.Minute
}
