package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-attendance-api/api/swagger"
	"github.com/noah-isme/sma-attendance-api/internal/handler"
	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/cache"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
	"github.com/noah-isme/sma-attendance-api/pkg/messenger"
	corsmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-attendance-api/pkg/regional"
)

// @title SMA Attendance API
// @version 1.0.0
// @description Per-period attendance, QR self check-in and guardian notifications
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var limiter middleware.WindowLimiter
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, scan throttling disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		limiter = cache.NewWindowLimiter(redisClient, "attendance")
	}

	clock := regional.New(cfg.Attendance.UTCOffset)
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	qrRepo := repository.NewQRSessionRepository(db)

	line := messenger.NewLineMessenger(messenger.Config{
		ChannelAccessToken: cfg.Notification.LineChannelToken,
		APIEndpoint:        cfg.Notification.LineAPIEndpoint,
		NotifyURL:          cfg.Notification.LineNotifyURL,
		Timeout:            cfg.Notification.SendTimeout,
	})

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	permissionSvc := service.NewPermissionService(studentRepo, classroomRepo, logr)
	notificationSvc := service.NewNotificationService(line, clock, metrics, logr, service.NotificationConfig{
		Enabled:    cfg.Notification.Enabled,
		SchoolName: cfg.Notification.SchoolName,
		Queue: jobs.QueueConfig{
			Concurrency: cfg.Notification.Concurrency,
			BatchPause:  cfg.Notification.BatchPause,
			TaskTimeout: cfg.Notification.SendTimeout,
		},
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, permissionSvc, notificationSvc, clock, metrics, validate, logr)
	qrSvc := service.NewQRSessionService(qrRepo, attendanceRepo, studentRepo, permissionSvc, clock, metrics, validate, logr, service.QRConfig{
		DefaultDuration: cfg.QR.DefaultDuration,
		MaxDuration:     cfg.QR.MaxDuration,
		CodeAttempts:    cfg.QR.CodeAttempts,
	})

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	authHandler := handler.NewAuthHandler(authSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	qrHandler := handler.NewQRSessionHandler(qrSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	secured.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	everyone := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin, models.RoleStudent)

	attendance := secured.Group("/attendance")
	attendance.POST("/check", staff, attendanceHandler.Check)
	attendance.POST("/bulk-check", staff, attendanceHandler.BulkCheck)
	attendance.GET("", staff, attendanceHandler.List)
	attendance.GET("/students/:id", everyone, attendanceHandler.StudentDay)

	secured.POST("/qr-session", staff, qrHandler.Create)
	secured.PUT("/qr-session/deactivate", staff, qrHandler.Deactivate)
	secured.GET("/qr-session/:id/image", staff, qrHandler.Image)
	secured.GET("/qr-sessions", staff, qrHandler.ListActive)
	secured.GET("/qr-sessions/history", staff, qrHandler.History)
	secured.POST("/qr-scan",
		middleware.RequireRoles(models.RoleStudent),
		middleware.ScanRateLimit(limiter, cfg.QR.ScanRateLimit, cfg.QR.ScanRateWindow, logr),
		qrHandler.Scan)

	secured.GET("/notifications/queue", middleware.RequireRoles(models.RoleAdmin), notificationHandler.QueueStatus)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Notification.ShutdownTimeout)
	defer drainCancel()
	abandoned, err := notificationSvc.Shutdown(drainCtx)
	if err != nil {
		logr.Warn("notification queue did not drain", zap.Int("abandoned", abandoned), zap.Error(err))
		return
	}
	logr.Info("notification queue drained")
}
