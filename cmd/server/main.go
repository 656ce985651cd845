package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/98ZAFAR/dis-mail-backend/internal/auth"
	jwtpkg "github.com/98ZAFAR/dis-mail-backend/internal/auth/jwt"
	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/health"
	"github.com/98ZAFAR/dis-mail-backend/internal/logger"
	"github.com/98ZAFAR/dis-mail-backend/internal/monitoring"
	"github.com/98ZAFAR/dis-mail-backend/internal/pool"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
	"github.com/98ZAFAR/dis-mail-backend/internal/smtp"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/memory"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/postgres"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/redis"
	httptransport "github.com/98ZAFAR/dis-mail-backend/internal/transport/http"
	"github.com/98ZAFAR/dis-mail-backend/internal/websocket"
)

// main 启动同时包含 HTTP API 与 SMTP 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.FromAppConfig(cfg.Log)
	defer log.Sync()

	log.Info("starting dismail server",
		zap.String("domain", cfg.Mailbox.Domain),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	// 初始化缓存层：优先 Redis，连不上则退回进程内缓存
	var cacheBackend cache.Backend
	var cachePinger health.Pinger

	redisClient, err := redis.New(&cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, falling back to in-process cache", zap.Error(err))
		local := cache.NewLocalBackend()
		defer local.Close()
		cacheBackend = local
	} else {
		log.Info("using redis cache", zap.String("address", cfg.Redis.Address))
		defer redisClient.Close()
		cacheBackend = redisClient
		cachePinger = redisClient
	}

	cacheLayer := cache.NewLayerWithTTL(cacheBackend, log,
		cfg.Cache.MailboxTTL, cfg.Cache.AliasTTL, cfg.Cache.SessionTTL)

	// 初始化监控
	metrics := monitoring.NewMetrics()

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 后台任务池（last_accessed 回写等即发即弃任务）
	tasks := pool.NewWorkerPool(4, 256, log)
	tasks.Start(ctx)
	defer tasks.Stop()

	// 初始化服务层
	registry := service.NewMailboxRegistry(store, cacheLayer, tasks, cfg, log)
	migrator := service.NewOwnershipMigrator(store, cacheLayer, cfg, log)
	sweeper := service.NewExpirySweeper(store, cacheLayer, cfg, log, metrics)
	mailService := service.NewMailService(store, log, metrics)
	authService := auth.NewService(store, migrator, metrics, log)
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// WebSocket 实时推送
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, registry, log)
	mailService.SetNotifier(wsHub)

	// 原生 pg 连接池：就绪检查与运维统计走独立连接，不占用 GORM 业务连接
	var dbPinger health.Pinger
	var dbStats httptransport.PoolStatser
	if cfg.Database.Type == "postgres" && cfg.Database.DSN != "" {
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Warn("pgx pool unavailable, readiness check falls back to gorm", zap.Error(err))
		} else {
			defer pgClient.Close()
			dbPinger = pgClient
			dbStats = pgClient
		}
	}

	// 健康检查
	healthChecker := health.NewHealthChecker(store, dbPinger, cachePinger, log)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:      cfg,
		Registry:    registry,
		Mails:       mailService,
		Sweeper:     sweeper,
		AuthService: authService,
		JWTManager:  jwtManager,
		CacheLayer:  cacheLayer,
		DBStats:     dbStats,
		Hub:         wsHub,
		Health:      healthChecker,
		Metrics:     metrics,
		Logger:      log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SMTP 服务器
	smtpLimiter := smtp.NewConnectionLimiter(100, 20)
	smtpBackend := smtp.NewBackend(registry, mailService, smtpLimiter, metrics, log)
	smtpServer := smtp.NewServer(cfg.SMTP, smtpBackend, log)

	// 过期清扫器
	sweeper.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		sweeper.Stop()

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择存储后端。
//
// 未配置数据库时使用内存存储，仅适合开发环境。
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	var store storage.Store
	var err error

	switch cfg.Database.Type {
	case "postgres":
		store, err = postgres.NewStore(cfg.Database.DSN)
	case "mysql":
		store, err = postgres.NewMySQLStore(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, err
	}

	log.Info("using database storage", zap.String("type", cfg.Database.Type))
	return store, nil
}
