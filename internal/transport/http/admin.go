package httptransport

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
)

// PoolStatser 提供数据库连接池统计（postgres.Client 满足该接口）
type PoolStatser interface {
	Stats() *pgxpool.Stat
}

// AdminHandler 运维接口处理器
type AdminHandler struct {
	sweeper *service.ExpirySweeper
	cache   *cache.Layer
	db      PoolStatser
	log     *zap.Logger
}

// NewAdminHandler 创建运维处理器。db 为 nil 时连接池统计接口返回 404。
func NewAdminHandler(sweeper *service.ExpirySweeper, cacheLayer *cache.Layer, db PoolStatser, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		sweeper: sweeper,
		cache:   cacheLayer,
		db:      db,
		log:     log,
	}
}

// TriggerSweep 手动触发一次过期清扫
// POST /api/v1/admin/sweep
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	summary, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}

	SuccessWithMsg(c, "清扫完成", summary)
}

// CacheStats 按命名空间统计缓存键数量
// GET /api/v1/admin/cache/stats
func (h *AdminHandler) CacheStats(c *gin.Context) {
	stats, err := h.cache.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("cache stats failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, stats)
}

// DBStats 返回数据库连接池统计
// GET /api/v1/admin/db/stats
func (h *AdminHandler) DBStats(c *gin.Context) {
	if h.db == nil {
		NotFound(c, "当前存储不提供连接池统计")
		return
	}

	s := h.db.Stats()
	Success(c, gin.H{
		"maxConns":      s.MaxConns(),
		"totalConns":    s.TotalConns(),
		"idleConns":     s.IdleConns(),
		"acquiredConns": s.AcquiredConns(),
		"acquireCount":  s.AcquireCount(),
		"newConnsCount": s.NewConnsCount(),
	})
}
