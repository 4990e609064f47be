package router

import (
	"net/http"

	"defakezone/internal/config"
	"defakezone/internal/handler"
	"defakezone/internal/inference"
	"defakezone/internal/mail"
	"defakezone/internal/middleware"
	"defakezone/internal/repository"
	"defakezone/internal/service"
	"defakezone/internal/storage"
	"defakezone/internal/upload"
	"defakezone/internal/utils"
	"defakezone/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies 路由依赖的外部资源
type Dependencies struct {
	JWTManager *utils.JWTManager
	Logger     logrus.FieldLogger
	DB         *gorm.DB
	Store      storage.Store
	Classifier *inference.Classifier
	Limiter    ratelimit.Limiter
	Mailer     mail.Mailer

	// IDs 为空时使用随机UUID
	IDs upload.IDGenerator
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := utils.RegisterBindingValidations(); err != nil {
		deps.Logger.WithError(err).Error("注册校验规则失败")
	}

	r := gin.New()

	// 全局中间件
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg))

	// 初始化Repository
	userRepo := repository.NewUserRepository(deps.DB)
	imageRepo := repository.NewImageRepository(deps.DB)
	codeRepo := repository.NewVerificationCodeRepository(deps.DB)

	// 上传流水线
	validator := upload.NewValidator(cfg.Upload.MaxBytes, deps.Logger)
	imageNormalizer := upload.NewNormalizer(deps.Store, deps.IDs, cfg.Upload.MaxDimension, cfg.Upload.JPEGQuality, deps.Logger)
	avatarNormalizer := upload.NewNormalizer(deps.Store, deps.IDs, cfg.Upload.AvatarMaxDimension, cfg.Upload.JPEGQuality, deps.Logger)

	// 初始化Service
	authService := service.NewAuthService(userRepo, codeRepo, deps.JWTManager, deps.Mailer, cfg, deps.Logger)
	accountService := service.NewAccountService(userRepo, validator, avatarNormalizer, deps.Store, cfg, deps.Logger)
	detectionService := service.NewDetectionService(imageRepo, validator, imageNormalizer, deps.Classifier, deps.Store, deps.Logger)
	adminService := service.NewAdminService(userRepo, deps.Store, deps.Logger)

	// 初始化Handler
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(accountService, cfg.Upload.MaxBytes)
	imageHandler := handler.NewImageHandler(detectionService, cfg.Upload.MaxBytes)
	adminHandler := handler.NewAdminHandler(adminService)
	healthHandler := handler.NewHealthHandler(detectionService)

	// 健康检查
	r.GET("/health", healthHandler.Health)
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "DefakeZone API",
			"version": "1.0.0",
		})
	})

	// API路由组
	api := r.Group("/api")
	{
		// 公开路由
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)
		api.POST("/password/forgot", authHandler.ForgotPassword)
		api.POST("/password/reset", authHandler.ResetPassword)
		api.POST("/account/reactivate/request", authHandler.RequestReactivation)
		api.POST("/account/reactivate", authHandler.Reactivate)

		// 认证路由
		authorized := api.Group("")
		authorized.Use(middleware.AuthMiddleware(deps.JWTManager, userRepo))
		{
			// 用户信息
			authorized.GET("/me", authHandler.GetMe)
			authorized.POST("/logout", authHandler.Logout)

			// 检测
			images := authorized.Group("/images")
			{
				images.POST("/detect", middleware.RateLimit(deps.Limiter, deps.Logger), imageHandler.Detect)
				images.GET("", imageHandler.List)
				images.GET("/:id", imageHandler.Get)
				images.GET("/:id/file", imageHandler.File)
				images.DELETE("/:id", imageHandler.Delete)
			}

			// 个人资料
			me := authorized.Group("/users/me")
			{
				me.PUT("/username", userHandler.UpdateUsername)
				me.PUT("/password", userHandler.ChangePassword)
				me.POST("/2fa/setup", userHandler.SetupTwoFactor)
				me.POST("/2fa/enable", userHandler.EnableTwoFactor)
				me.POST("/2fa/disable", userHandler.DisableTwoFactor)
				me.POST("/deactivate", userHandler.Deactivate)
				me.POST("/avatar", userHandler.UploadAvatar)
				me.GET("/avatar", userHandler.GetAvatar)
			}

			// 管理员路由
			admin := authorized.Group("/admin")
			admin.Use(middleware.AdminMiddleware(deps.Logger))
			{
				admin.GET("/users", adminHandler.ListUsers)
				admin.DELETE("/users/:id", adminHandler.DeleteUser)
			}
		}
	}

	return r
}
