package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/handler"
	"github.com/Alakazam-211/nsimaterials/internal/identity"
	"github.com/Alakazam-211/nsimaterials/internal/middleware"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nsimaterials service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	if missing := cfg.MissingQuickBaseKeys(); len(missing) > 0 {
		// Boot anyway so the diagnostics endpoints can tell the operator
		// what is wrong; order routes will fail with ConfigurationError.
		zapLogger.Warn("QuickBase configuration incomplete", zap.Strings("missing", missing))
	}

	qb := quickbase.NewClient(cfg.QuickBase.RealmHostname, cfg.QuickBase.UserToken, zapLogger)
	idp := identity.NewClient(cfg.Firebase.APIKey, zapLogger)
	verifier := identity.NewVerifier(cfg.Firebase.ProjectID)

	sagas := initSagaLog(cfg, zapLogger)
	services := service.NewServices(qb, idp, sagas, cfg, zapLogger)
	handlers := handler.NewHandlers(services, cfg)

	// Clear any headers orphaned by an earlier crash between the two writes.
	sweepCtx, sweepCancel := context.WithTimeout(context.Background(), time.Minute)
	if swept, err := services.Order.SweepOrphans(sweepCtx); err != nil {
		zapLogger.Warn("startup orphan sweep failed", zap.Error(err))
	} else if swept > 0 {
		zapLogger.Info("startup orphan sweep removed headers", zap.Int("swept", swept))
	}
	sweepCancel()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, verifier)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func registerRoutes(router *gin.Engine, h *handler.Handlers, verifier *identity.Verifier) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/signup", h.Auth.Signup)
		api.POST("/auth/refresh", h.Auth.Refresh)

		api.POST("/access-check", h.Access.Check)

		// Operator probes; ad hoc responses, not a stable contract.
		api.GET("/diag/connection", h.Diag.Connection)
		api.GET("/diag/jobs-table", h.Diag.JobsTable)
		api.GET("/diag/date-format", h.Diag.DateFormat)
		api.GET("/table-fields", h.Diag.TableFields)
		api.GET("/order-table-fields", h.Diag.OrderTableFields)
		api.POST("/diag/sweep-orphans", h.Diag.SweepOrphans)
	}

	authed := router.Group("/api/v1")
	authed.Use(middleware.Auth(verifier))
	{
		authed.GET("/auth/me", h.Auth.Me)
		authed.GET("/school-options", h.Options.Schools)
		authed.GET("/uom-options", h.Options.UOMs)
		authed.POST("/submit-order", h.Order.Submit)
	}
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapCfg.Build()
}

// initSagaLog prefers Redis so pending order state survives restarts, and
// falls back to the in-process log when no address is configured.
func initSagaLog(cfg *config.Config, logger *zap.Logger) service.SagaLog {
	if cfg.Redis.Addr == "" {
		logger.Info("no REDIS_ADDR configured; using in-memory saga log")
		return service.NewMemorySagaLog()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unreachable; using in-memory saga log", zap.Error(err))
		return service.NewMemorySagaLog()
	}

	logger.Info("using Redis saga log", zap.String("addr", cfg.Redis.Addr))
	return service.NewRedisSagaLog(rdb)
}
