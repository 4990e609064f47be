package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"defakezone/internal/config"
	"defakezone/internal/inference"
	"defakezone/internal/mail"
	"defakezone/internal/models"
	"defakezone/internal/repository"
	"defakezone/internal/router"
	"defakezone/internal/service"
	"defakezone/internal/storage"
	"defakezone/internal/utils"
	"defakezone/pkg/ratelimit"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func main() {
	defaultConfig := os.Getenv("DEFAKE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml"
	}
	configFile := flag.String("config", defaultConfig, "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("无效的日志级别 %q，使用 info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	if err := models.InitDB(cfg); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	db := models.GetDB()

	// 文件存储
	store, err := storage.NewFromConfig(ctx, cfg.Storage, logger)
	if err != nil {
		log.Fatalf("初始化文件存储失败: %v", err)
	}

	// 模型只加载一次，加载失败时服务仍可启动
	classifier := inference.NewFromConfig(cfg.Model, logger)
	defer classifier.Close()

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("初始化限流器失败: %v", err)
	}
	defer closeLimiter()

	mailer, err := mail.NewFromConfig(cfg.Mail, logger)
	if err != nil {
		log.Fatalf("初始化邮件服务失败: %v", err)
	}

	jwtManager := utils.NewJWTManager(
		cfg.JWT.SecretKey,
		cfg.JWT.Algorithm,
		cfg.JWT.GetExpireDuration(),
	)

	// 初始化管理员账户
	userRepo := repository.NewUserRepository(db)
	codeRepo := repository.NewVerificationCodeRepository(db)
	authService := service.NewAuthService(userRepo, codeRepo, jwtManager, mailer, cfg, logger)
	if err := authService.InitAdmin(ctx); err != nil {
		logger.Warnf("初始化管理员失败: %v", err)
	}

	go sweepCodes(ctx, codeRepo, logger)

	r := router.SetupRouter(cfg, router.Dependencies{
		JWTManager: jwtManager,
		Logger:     logger,
		DB:         db,
		Store:      store,
		Classifier: classifier,
		Limiter:    limiter,
		Mailer:     mailer,
	})

	addr := cfg.Server.GetAddress()
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("启动服务器失败: %v", err)
		}
	}()

	if !cfg.Server.ProductionMode {
		logger.Infof("开发模式: 管理员账号 %s", cfg.Admin.Username)
	}

	<-ctx.Done()
	logger.Info("正在关闭服务器")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("关闭服务器失败")
	}
}

// newLimiter 按配置创建上传限流器
func newLimiter(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (ratelimit.Limiter, func(), error) {
	window := cfg.RateLimit.GetWindow()

	switch cfg.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddress(),
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		logger.WithField("addr", cfg.Redis.GetAddress()).Info("使用Redis限流")
		return ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, window, "defakezone:ratelimit:"), func() { client.Close() }, nil
	default:
		limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, window, nil)
		sweepCtx, cancel := context.WithCancel(ctx)
		go func() {
			ticker := time.NewTicker(window)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					if n := limiter.Sweep(); n > 0 {
						logger.WithField("removed", n).Debug("已清理过期限流计数")
					}
				}
			}
		}()
		return limiter, cancel, nil
	}
}

// sweepCodes 定期清理过期验证码
func sweepCodes(ctx context.Context, codeRepo *repository.VerificationCodeRepository, logger logrus.FieldLogger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := codeRepo.DeleteExpired(ctx, time.Now())
			if err != nil {
				logger.WithError(err).Warn("清理过期验证码失败")
				continue
			}
			if n > 0 {
				logger.WithField("removed", n).Info("已清理过期验证码")
			}
		}
	}
}
