package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/skillbridge/lms-api/api/swagger"
	"github.com/skillbridge/lms-api/internal/handler"
	"github.com/skillbridge/lms-api/internal/middleware"
	"github.com/skillbridge/lms-api/internal/models"
	"github.com/skillbridge/lms-api/internal/repository"
	"github.com/skillbridge/lms-api/internal/service"
	"github.com/skillbridge/lms-api/pkg/cache"
	"github.com/skillbridge/lms-api/pkg/config"
	"github.com/skillbridge/lms-api/pkg/database"
	"github.com/skillbridge/lms-api/pkg/logger"
	corsmiddleware "github.com/skillbridge/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/skillbridge/lms-api/pkg/middleware/requestid"
	"github.com/skillbridge/lms-api/pkg/storage"
)

// @title SkillBridge LMS API
// @version 1.0.0
// @description Enrollment, access control and community service for the SkillBridge learning platform
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close()
		}
	}

	store, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare certificate storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	communityRepo := repository.NewCommunityRepository(db)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, courseRepo, userRepo, store, signer, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, certificateSvc, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, courseRepo, enrollmentRepo, validate, logr)
	communitySvc := service.NewCommunityService(communityRepo, validate, logr)

	var courseSvc *service.CourseService
	if cacheRepo != nil {
		courseSvc = service.NewCourseService(courseRepo, enrollmentRepo, cacheRepo, cfg.Catalog.CacheTTL, metricsSvc, validate, logr)
	} else {
		courseSvc = service.NewCourseService(courseRepo, enrollmentRepo, nil, cfg.Catalog.CacheTTL, metricsSvc, validate, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RBAC("ADMIN", "SELF"), userHandler.Get)
		users.PUT("/:id", middleware.RBAC("ADMIN", "SELF"), userHandler.Update)
	}

	courses := api.Group("/courses")
	{
		courses.GET("", middleware.OptionalJWT(authSvc), courseHandler.List)
		courses.GET("/:slug", middleware.OptionalJWT(authSvc), courseHandler.Get)
		courses.POST("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), courseHandler.Create)
		courses.PUT("/:slug", middleware.JWT(authSvc), courseHandler.Update)
		courses.POST("/:slug/ratings", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent), courseHandler.Rate)

		courses.GET("/:slug/lessons", middleware.OptionalJWT(authSvc), lessonHandler.List)
		courses.GET("/:slug/lessons/:lessonId", middleware.OptionalJWT(authSvc), lessonHandler.Get)
		courses.POST("/:slug/lessons", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), lessonHandler.Create)
		courses.PUT("/:slug/lessons/:lessonId", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), lessonHandler.Update)
		courses.DELETE("/:slug/lessons/:lessonId", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), lessonHandler.Delete)

		courses.POST("/:slug/enroll", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent), enrollmentHandler.SelfEnroll)
		courses.POST("/:slug/enrollments", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), enrollmentHandler.Create)
		courses.GET("/:slug/enrollments", middleware.JWT(authSvc), enrollmentHandler.List)
		courses.GET("/:slug/enrollments/export", middleware.JWT(authSvc), middleware.Audit(userRepo, models.AuditActionExport, "roster"), enrollmentHandler.Export)
		courses.PATCH("/:slug/enrollments/:id", middleware.JWT(authSvc), enrollmentHandler.Update)
	}

	api.GET("/me/courses", middleware.JWT(authSvc), enrollmentHandler.MyCourses)

	certificates := api.Group("/certificates")
	{
		certificates.POST("/:id/link", middleware.JWT(authSvc), certificateHandler.Link)
		certificates.GET("/download", certificateHandler.Download)
	}

	registerCommunityRoutes(api, authSvc, handler.NewCommunityHandler(communitySvc, models.PostKindForum), "/forum", false)
	registerCommunityRoutes(api, authSvc, handler.NewCommunityHandler(communitySvc, models.PostKindBlog), "/blog", false)
	registerCommunityRoutes(api, authSvc, handler.NewCommunityHandler(communitySvc, models.PostKindEvent), "/events", true)

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/stats", metricsHandler.Stats)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func registerCommunityRoutes(api *gin.RouterGroup, authSvc *service.AuthService, h *handler.CommunityHandler, prefix string, withRegistrations bool) {
	group := api.Group(prefix)

	group.GET("", middleware.OptionalJWT(authSvc), h.List)
	group.GET("/:id", middleware.OptionalJWT(authSvc), h.Get)
	group.GET("/:id/comments", middleware.OptionalJWT(authSvc), h.ListComments)

	group.POST("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.Create)
	group.PUT("/:id", middleware.JWT(authSvc), h.Update)
	group.POST("/:id/publish", middleware.JWT(authSvc), h.Publish)
	group.DELETE("/:id", middleware.JWT(authSvc), h.Delete)
	group.POST("/:id/like", middleware.JWT(authSvc), h.ToggleLike)
	group.POST("/:id/comments", middleware.JWT(authSvc), h.AddComment)
	group.DELETE("/:id/comments/:commentId", middleware.JWT(authSvc), h.DeleteComment)

	if withRegistrations {
		group.POST("/:id/register", middleware.JWT(authSvc), h.Register)
		group.DELETE("/:id/register", middleware.JWT(authSvc), h.Unregister)
	}
}
