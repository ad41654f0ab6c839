package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stackit/internal/config"
	"stackit/internal/db"
	"stackit/internal/jobs"
	"stackit/internal/lock"
	"stackit/internal/metrics"
	"stackit/internal/ratelimit"
	"stackit/internal/router"
	"stackit/internal/services"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to yaml config")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	db.SeedTags(conn, logger)

	m := metrics.New(logger)

	rdb := newRedis(cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}
	locker := newLocker(rdb, cfg.Redis)
	limiter := newRateLimiter(rdb, cfg.Server)

	// 注意：SMTP 未配置时 NewMailService 返回 nil，不能直接赋给接口
	var mailer services.Mailer
	mail, err := services.NewMailService(cfg.SMTP, logger)
	if err != nil {
		logger.Fatal("Failed to initialize mail service", zap.Error(err))
	}
	if mail != nil {
		mailer = mail
	}
	emitter := services.NewAsyncEmitter(conn, mailer, m, logger, 1000)

	var generator services.Generator
	if cfg.LLM.Enabled() {
		generator = services.NewLLMService(cfg.LLM)
		logger.Info("LLM enabled", zap.String("model", cfg.LLM.Model))
	} else {
		logger.Warn("LLM disabled: AI answers unavailable")
	}

	app, err := router.Setup(router.Config{
		DB:             conn,
		Logger:         logger,
		Locker:         locker,
		Emitter:        emitter,
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
		Generator:      generator,
		RateLimiter:    limiter,
		SessionSecret:  cfg.Server.SessionSecret,
		SecureCookie:   !cfg.IsDev(),
		CORSOrigin:     cfg.Server.CORSOrigin,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to set up router", zap.Error(err))
	}

	scheduler, err := jobs.NewScheduler(cfg.Jobs, app.Votes, app.Questions, m, logger)
	if err != nil {
		logger.Fatal("Failed to set up scheduler", zap.Error(err))
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("StackIt started", zap.String("address", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop(ctx)
	// 先停 HTTP 再排空通知队列
	emitter.Close()
	if err := db.Close(conn); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}
	logger.Info("Server exited")
}

// newRedis 未配置地址时返回 nil，锁和限流退回进程内实现
func newRedis(cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if cfg.Addr == "" {
		logger.Info("Redis not configured, using in-process locks and rate limiting")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	logger.Info("Redis connected", zap.String("addr", cfg.Addr))
	return client
}

func newLocker(rdb *redis.Client, cfg config.RedisConfig) lock.Locker {
	if rdb == nil {
		return lock.NewLocal()
	}
	return lock.NewRedis(rdb, cfg.LockTTL)
}

// newRateLimiter 返回 nil 表示关闭限流
func newRateLimiter(rdb *redis.Client, cfg config.ServerConfig) ratelimit.Limiter {
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil
	}
	if rdb == nil {
		return ratelimit.NewLocal(cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	return ratelimit.NewRedis(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.IsDev() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
