package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"user-account-api/internal/core/auth"
	"user-account-api/internal/core/cache"
	"user-account-api/internal/core/config"
	"user-account-api/internal/core/database"
	"user-account-api/internal/core/logger"
	"user-account-api/internal/core/server"
	"user-account-api/internal/domain"
	"user-account-api/internal/events"
	"user-account-api/internal/feature/user"
	"user-account-api/internal/repo"
	"user-account-api/internal/service"
	"user-account-api/internal/transport/http/handler"
	"user-account-api/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := newLogger(cfg)
	defer cleanup()
	restoreStdLog := logger.RedirectStdLog(log, zapcore.InfoLevel)
	defer restoreStdLog()

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logger.ToWriter(log, zapcore.DebugLevel)
	gin.DefaultErrorWriter = logger.ToWriter(log, zapcore.ErrorLevel)

	// 数据库（失败会直接 Fatal）
	db := mustOpenDB(cfg, log)
	defer func() { _ = database.Close(db) }()
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := db.AutoMigrate(&user.UserModel{}); err != nil {
			log.Fatal("automigrate failed", zap.Error(err))
		}
		log.Info("automigrate done")
	}

	jwter := auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenTTLMin)*time.Minute)

	// 存储：可选 redis 读缓存
	var store domain.UserStore = repo.NewUserRepo(db)
	if cfg.Redis.Addr != "" {
		c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		c.Prefix = cfg.App.Name + ":"
		defer func() { _ = c.Close() }()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.Ping(ctx); err != nil {
			log.Warn("redis unreachable, reads fall through to db", zap.Error(err))
		}
		cancel()
		store = repo.NewCachedUserStore(store, c, time.Duration(cfg.Redis.TTLSec)*time.Second, log)
		log.Info("user cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// 事件：可选 NATS
	var pub events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		np, err := events.NewNatsPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			log.Fatal("nats connect", zap.Error(err))
		}
		pub = np
		log.Info("user events enabled", zap.String("url", cfg.NATS.URL))
	}
	defer pub.Close()

	userSvc := service.NewUserService(store, jwter, pub, log)
	userH := handler.NewUserHandler(userSvc, log)

	r := router.NewAPIEngine(log, router.Options{
		RPS:           rate.Limit(cfg.Limits.RPS),
		Burst:         cfg.Limits.Burst,
		PerIPRPS:      rate.Limit(cfg.Limits.PerIPRPS),
		PerIPBurst:    cfg.Limits.PerIPBurst,
		MaxConcurrent: cfg.Limits.MaxConcurrent,
		MaxBodyBytes:  cfg.Limits.MaxBodyBytes,
		Timeout:       time.Duration(cfg.Limits.RequestTimeoutSec) * time.Second,
	}, userH)

	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)

	host4human := cfg.App.HTTP.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.HTTP.Port)
	log.Info("user api starting",
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("metrics", baseURL+"/metrics"),
	)

	// 异步启动
	go func() {
		if err := server.StartHTTP(srv, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("user api start FAILED", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	log.Info("user api stopped gracefully")
}

func newLogger(cfg *config.Config) (*zap.Logger, func()) {
	if !cfg.Log.File.Enable {
		return logger.New(cfg.Log.Level, cfg.Log.JSON)
	}
	return logger.NewWithRotate(cfg.Log.Level, cfg.Log.JSON, logger.FileRotate{
		Filename:   cfg.Log.File.Filename,
		MaxSizeMB:  cfg.Log.File.MaxSizeMB,
		MaxBackups: cfg.Log.File.MaxBackups,
		MaxAgeDays: cfg.Log.File.MaxAgeDays,
		Compress:   cfg.Log.File.Compress,
	})
}

func mustOpenDB(cfg *config.Config, l *zap.Logger) *gorm.DB {
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	return db
}
