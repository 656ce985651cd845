package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/logger"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/postgres"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/redis"
)

// main 执行一次性的过期邮箱清扫，适合作为 cron 任务运行。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.FromAppConfig(cfg.Log)
	defer log.Sync()

	var store storage.Store
	switch cfg.Database.Type {
	case "postgres":
		store, err = postgres.NewStore(cfg.Database.DSN)
	case "mysql":
		store, err = postgres.NewMySQLStore(cfg.Database.DSN)
	default:
		fmt.Printf("错误: 清扫任务需要数据库存储，不支持类型 '%s'\n", cfg.Database.Type)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("错误: 无法连接数据库: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 缓存失效必须针对服务进程共享的后端，本地缓存在这里没有意义
	var cacheBackend cache.Backend
	redisClient, err := redis.New(&cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, cache invalidation will be skipped", zap.Error(err))
		local := cache.NewLocalBackend()
		defer local.Close()
		cacheBackend = local
	} else {
		defer redisClient.Close()
		cacheBackend = redisClient
	}

	cacheLayer := cache.NewLayerWithTTL(cacheBackend, log,
		cfg.Cache.MailboxTTL, cfg.Cache.AliasTTL, cfg.Cache.SessionTTL)

	sweeper := service.NewExpirySweeper(store, cacheLayer, cfg, log, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := sweeper.RunOnce(ctx)
	if err != nil {
		fmt.Printf("错误: 清扫失败: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}
