package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/lumapos/session-api/api/swagger"
	"github.com/lumapos/session-api/internal/handler"
	"github.com/lumapos/session-api/internal/hub"
	"github.com/lumapos/session-api/internal/middleware"
	"github.com/lumapos/session-api/internal/repository"
	"github.com/lumapos/session-api/internal/service"
	"github.com/lumapos/session-api/pkg/cache"
	"github.com/lumapos/session-api/pkg/config"
	"github.com/lumapos/session-api/pkg/database"
	"github.com/lumapos/session-api/pkg/jobs"
	"github.com/lumapos/session-api/pkg/logger"
	corsmiddleware "github.com/lumapos/session-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lumapos/session-api/pkg/middleware/requestid"
)

// @title Session API
// @version 0.1.0
// @description Session authority and device coordination service
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	deviceRepo := repository.NewDeviceRepository(db)
	qrTokenRepo := repository.NewQRTokenRepository(db)
	userRepo := repository.NewUserRepository(db)
	sessionStore := repository.NewSessionStore(redisClient, cfg.Session.StoreTTL, logr)

	connHub := hub.New(hub.Config{
		GracePeriod:   cfg.Session.GracePeriod,
		ScanTimeout:   cfg.Scan.Timeout,
		SweepInterval: cfg.Scan.SweepInterval,
		SendQueueSize: cfg.Hub.SendQueueSize,
	}, logr)

	metrics := service.NewMetricsService(func() float64 {
		return float64(connHub.LiveConnections())
	})

	validate := validator.New()
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:       cfg.JWT.Secret,
		AccessExpiry: cfg.JWT.Expiration,
		Issuer:       cfg.JWT.Issuer,
	})

	lifecycleSvc := service.NewDeviceLifecycleService(deviceRepo, sessionStore, connHub, validate, metrics, logr, service.DeviceLifecycleConfig{
		WebDeviceTTL:    cfg.Session.WebDeviceTTL,
		GracePeriod:     cfg.Session.GracePeriod,
		RegisterRetries: cfg.Session.RegisterRetries,
		RegisterBackoff: cfg.Session.RegisterBackoff,
	})
	authSvc := service.NewAuthService(userRepo, lifecycleSvc, tokenSvc, sessionStore, validate, logr)
	qrSvc := service.NewQRLoginService(qrTokenRepo, userRepo, lifecycleSvc, tokenSvc, connHub, metrics, logr, service.QRLoginConfig{
		TokenTTL: cfg.QRLogin.TokenTTL,
	})
	scanSvc := service.NewRemoteScanService(connHub, sessionStore, metrics, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go connHub.RunScanSweeper(ctx)

	cleanup := jobs.NewQueue("housekeeping", func(jobCtx context.Context, job jobs.Job) error {
		lifecycleSvc.CleanupExpiredDevices(jobCtx)
		qrSvc.CleanupExpiredTokens(jobCtx)
		return nil
	}, jobs.QueueConfig{
		Workers: cfg.Cleanup.Workers,
		Logger:  logr,
	})
	cleanup.Start(ctx)
	defer cleanup.Stop()

	go func() {
		ticker := time.NewTicker(cfg.Cleanup.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = cleanup.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "cleanup"})
			}
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	gate := middleware.AuthGate(middleware.AuthGateDeps{
		Tokens:   tokenSvc,
		Sessions: sessionStore,
		Metrics:  metrics,
		Logger:   logr,
	})
	handler.RegisterRoutes(r, handler.Handlers{
		Auth:   handler.NewAuthHandler(authSvc),
		Device: handler.NewDeviceHandler(lifecycleSvc),
		QR:     handler.NewQRHandler(qrSvc),
		Scan:   handler.NewScanHandler(scanSvc),
		WS: handler.NewWSHandler(connHub, tokenSvc, sessionStore, qrSvc, logr, handler.WSConfig{
			PingInterval: cfg.Hub.PingInterval,
			WriteTimeout: cfg.Hub.WriteTimeout,
		}),
	}, gate)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
