package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

// Pinger 可探活的缓存后端（Redis 客户端满足该接口）
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	db     Pinger
	cache  Pinger
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器。
//
// db 非 nil 时就绪检查走原生连接池的 ping，不占用 GORM 业务连接；
// cache 传 nil 表示使用进程内缓存，无需探活。
func NewHealthChecker(store storage.Store, db, cache Pinger, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		db:     db,
		cache:  cache,
		logger: logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 注册各项健康检查
func (hc *HealthChecker) addChecks() {
	// 数据库连接检查
	hc.health.AddReadinessCheck("database", func() error {
		if hc.db != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return hc.db.Ping(ctx)
		}
		return hc.store.Health()
	})

	// 缓存后端检查
	if hc.cache != nil {
		hc.health.AddReadinessCheck("cache", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return hc.cache.Ping(ctx)
		})
	}

	// goroutine 数量异常通常意味着泄漏
	hc.health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(2000))
}

// LiveHandler 返回存活检查处理器
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 返回就绪检查处理器
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}
