package app

import (
	"escrita_backend/docs"
	"escrita_backend/internal/config"
	"escrita_backend/internal/middleware"
	"escrita_backend/internal/model"
	"escrita_backend/pkg/monitoring"
	"escrita_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")

	// 1. 公共路由(无需登录)
	registerPublicRoutes(api, c, cfg)

	// 2. 需要登录的路由
	authGroup := api.Group("")
	authGroup.Use(middleware.AuthMiddleware(s.auth))
	{
		registerStudentRoutes(authGroup, c)

		// 3. 讲师和管理员
		staff := authGroup.Group("")
		staff.Use(middleware.RoleMiddleware(repos.user, model.Instructor))
		registerStaffRoutes(staff, c)

		// 4. 仅管理员
		admin := authGroup.Group("")
		admin.Use(middleware.RoleMiddleware(repos.user, model.Admin))
		admin.POST("/payments/:orderId/refund", c.payment.Refund)
	}
}

func registerPublicRoutes(api *gin.RouterGroup, c *controllers, cfg *config.Config) {
	api.GET("/health", c.health.HealthCheck)

	// 登录注册单独限流
	auth := api.Group("/auth")
	auth.Use(security.RateLimiter(cfg.RateLimit.AuthMaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))
	{
		auth.POST("/register", c.auth.Register)
		auth.POST("/login", c.auth.Login)
		auth.POST("/forgot-password", c.auth.ForgotPassword)
		auth.POST("/reset-password", c.auth.ResetPassword)
	}

	// 支付网关回调，通过签名校验
	api.POST("/payments/notifications", c.payment.Notification)
}

func registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/auth/logout", c.auth.Logout)

	// 课程
	rg.GET("/courses", c.course.GetAllCourses)
	rg.GET("/courses/recent", c.course.GetRecentCourses)
	rg.GET("/courses/:id", c.course.GetCourse)
	rg.GET("/courses/:id/progress", c.course.GetCourseProgress)
	rg.POST("/courses/lessons/:id/complete", c.course.MarkLessonComplete)

	// 作文
	rg.POST("/submissions", c.submission.Submit)
	rg.POST("/submissions/upload", c.submission.UploadFile)
	rg.GET("/submissions", c.submission.List)
	rg.GET("/submissions/stats", c.submission.Stats)
	rg.GET("/submissions/:id", c.submission.Get)
	rg.GET("/submissions/:id/feedback", c.submission.Feedback)
	rg.PUT("/submissions/:id", c.submission.Update)
	rg.DELETE("/submissions/:id", c.submission.Delete)

	// 用户
	rg.GET("/users/me", c.user.GetProfile)
	rg.PATCH("/users/me", c.user.UpdateProfile)
	rg.PATCH("/users/me/password", c.user.ChangePassword)
	rg.POST("/users/me/avatar", c.user.UploadAvatar)
	rg.GET("/users/stats", c.user.GetStats)

	// 成就
	rg.GET("/users/achievements", c.achievement.GetUserAchievements)
	rg.GET("/users/achievements/recent", c.achievement.GetRecentAchievements)
	rg.GET("/achievements", c.achievement.ListCatalogue)

	// 支付
	rg.POST("/payments/checkout", c.payment.Checkout)
	rg.GET("/payments", c.payment.List)
	rg.GET("/payments/:orderId", c.payment.Get)
	rg.POST("/payments/:orderId/cancel", c.payment.Cancel)
}

func registerStaffRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/courses", c.course.CreateCourse)
	rg.POST("/courses/:id/lessons", c.course.CreateLesson)
	rg.POST("/courses/lessons/:id/video", c.course.UploadLessonVideo)

	rg.GET("/submissions/pending", c.submission.ListPending)
	rg.POST("/submissions/:id/review", c.submission.Review)
}
