package app

import (
	"context"
	"errors"
	"escrita_backend/internal/config"
	"escrita_backend/internal/controller"
	"escrita_backend/internal/middleware"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/service"
	"escrita_backend/pkg/configwatcher"
	"escrita_backend/pkg/database"
	"escrita_backend/pkg/logger"
	"escrita_backend/pkg/monitoring"
	"escrita_backend/pkg/security"
	"escrita_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Email           *service.EmailService
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

// Deps 外部依赖，测试时可以传入 sqlite 和假的邮件、支付实现
type Deps struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Tokens  service.TokenStore
	Mail    service.EmailProvider
	Gateway service.PaymentGateway
}

type repositories struct {
	user        *repository.UserRepository
	course      *repository.CourseRepository
	progress    *repository.ProgressRepository
	achievement *repository.AchievementRepository
	submission  *repository.SubmissionRepository
	payment     *repository.PaymentRepository
}

type services struct {
	auth        *service.AuthService
	storage     *service.StorageService
	email       *service.EmailService
	achievement *service.AchievementService
	course      *service.CourseService
	submission  *service.SubmissionService
	user        *service.UserService
	payment     *service.PaymentService
}

type controllers struct {
	auth        *controller.AuthController
	course      *controller.CourseController
	submission  *controller.SubmissionController
	user        *controller.UserController
	achievement *controller.AchievementController
	payment     *controller.PaymentController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		course:      repository.NewCourseRepository(db),
		progress:    repository.NewProgressRepository(db),
		achievement: repository.NewAchievementRepository(db),
		submission:  repository.NewSubmissionRepository(db),
		payment:     repository.NewPaymentRepository(db),
	}
}

func initServices(repos *repositories, cfg *config.Config, deps Deps) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.email = service.NewEmailService(deps.Mail, cfg)
	s.auth = service.NewAuthService(repos.user, deps.Tokens, s.email, cfg)
	s.achievement = service.NewAchievementService(
		deps.DB,
		repos.achievement,
		repos.submission,
		repos.progress,
		repos.course,
		repos.user,
		s.email,
	)
	s.course = service.NewCourseService(deps.DB, repos.course, repos.progress, s.achievement, s.storage)
	s.submission = service.NewSubmissionService(deps.DB, repos.submission, repos.user, s.achievement, s.storage, s.email)
	s.user = service.NewUserService(repos.user, repos.progress, repos.achievement, s.submission, s.storage)
	s.payment = service.NewPaymentService(deps.DB, repos.payment, repos.user, deps.Gateway, s.email, &cfg.Payment)

	return s
}

func initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:        controller.NewAuthController(s.auth),
		course:      controller.NewCourseController(s.course),
		submission:  controller.NewSubmissionController(s.submission),
		user:        controller.NewUserController(s.user, s.auth),
		achievement: controller.NewAchievementController(s.achievement),
		payment:     controller.NewPaymentController(s.payment),
		health:      controller.NewHealthController(db, rdb),
	}
}

func setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(logger.GinLogger(), logger.GinRecovery())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
	router.Use(middleware.ErrorHandler(cfg.Server.IsDebug()))
}

// New 用已经建立好的依赖组装应用，不做任何外部连接
func New(cfg *config.Config, deps Deps) *App {
	if deps.Tokens == nil {
		deps.Tokens = service.NewMemoryTokenStore()
	}
	if deps.Mail == nil {
		deps.Mail = service.NewEmailProvider(&cfg.Mail)
	}
	if deps.Gateway == nil {
		deps.Gateway = service.NewMidtransGateway(&cfg.Payment)
	}

	if !cfg.Server.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	app := &App{
		Config: cfg,
		DB:     deps.DB,
		Redis:  deps.Redis,
	}

	repos := initRepositories(deps.DB)
	services := initServices(repos, cfg, deps)
	controllers := initControllers(services, deps.DB, deps.Redis)
	app.Email = services.email

	// 监控初始化
	monitoring.Init()

	router := gin.New()
	app.Router = router

	setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, services, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetMode(newCfg.Server.Mode)
		app.Email.SetEnabled(newCfg.Mail.Enabled)
	})

	return app
}

// NewApp 读取配置建立数据库、Redis 和追踪连接
func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.Open(&cfg.Database, cfg.Server.IsDebug())
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式下只有显式要求时才迁移
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	deps := Deps{DB: db}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	switch {
	case err == nil:
		deps.Redis = rdb
		deps.Tokens = service.NewRedisTokenStore(rdb)
	case cfg.Server.IsDebug():
		logger.Log.Warn("Redis unavailable, using in-memory token store", zap.Error(err))
		deps.Tokens = service.NewMemoryTokenStore()
	default:
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	if cfg.Payment.ServerKey == "" {
		logger.Log.Warn("Payment server key not configured, checkout will fail")
	}

	app := New(cfg, deps)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.App.Name, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := configwatcher.WatchConfig(ctx, configDir, func(newCfg *config.Config) {
		for _, callback := range a.configCallbacks {
			callback(newCfg)
		}
	}); err != nil {
		logger.Log.Warn("Config watcher disabled", zap.Error(err))
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 等待已派发的邮件发完
	a.Email.Wait()

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
