package httptransport

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/auth"
	"github.com/98ZAFAR/dis-mail-backend/internal/auth/jwt"
	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/health"
	"github.com/98ZAFAR/dis-mail-backend/internal/middleware"
	"github.com/98ZAFAR/dis-mail-backend/internal/monitoring"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
	"github.com/98ZAFAR/dis-mail-backend/internal/websocket"
)

// RouterDependencies 路由依赖
type RouterDependencies struct {
	Config      *config.Config
	Registry    *service.MailboxRegistry
	Mails       *service.MailService
	Sweeper     *service.ExpirySweeper
	AuthService *auth.Service
	JWTManager  *jwt.Manager
	CacheLayer  *cache.Layer
	DBStats     PoolStatser
	Hub         *websocket.Hub
	Health      *health.HealthChecker
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

// NewRouter 构建 HTTP 路由
func NewRouter(deps RouterDependencies) *gin.Engine {
	if !deps.Config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	if deps.Metrics != nil {
		r.Use(middleware.HTTPMetrics(deps.Metrics))
	}
	r.Use(corsMiddleware(deps.Config.CORS))

	// 处理器
	sessionHandler := NewSessionHandler(deps.Registry, deps.CacheLayer, deps.Logger)
	mailboxHandler := NewMailboxHandler(deps.Registry, deps.Logger)
	mailHandler := NewMailHandler(deps.Registry, deps.Mails, deps.Logger)
	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager, deps.Logger)
	adminHandler := NewAdminHandler(deps.Sweeper, deps.CacheLayer, deps.DBStats, deps.Logger)
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	// 健康检查与指标
	if deps.Health != nil {
		r.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		r.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		// 游客会话
		session := v1.Group("/session")
		{
			session.POST("", sessionHandler.Create)
			session.GET("/mailbox", middleware.RequireSession(), sessionHandler.GetMailbox)
			session.POST("/mailbox", middleware.RequireSession(), sessionHandler.CreateMailbox)
		}

		// 别名可用性查询（公开）
		v1.GET("/aliases/:alias/available", mailboxHandler.CheckAlias)

		// 用户认证
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", middleware.OptionalSession(), authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// 邮箱管理：登录用户与游客会话共用同一套端点
		mailboxes := v1.Group("/mailboxes", jwtAuth.OptionalAuth(), middleware.OptionalSession())
		{
			mailboxes.GET("", jwtAuth.RequireAuth(), mailboxHandler.List)
			mailboxes.POST("", jwtAuth.RequireAuth(), mailboxHandler.Create)
			mailboxes.GET("/:id", mailboxHandler.Get)
			mailboxes.DELETE("/:id", mailboxHandler.Delete)
			mailboxes.POST("/:id/extend", mailboxHandler.Extend)
			mailboxes.POST("/:id/toggle", mailboxHandler.Toggle)
			mailboxes.GET("/:id/mails", mailHandler.List)
		}

		// 运维接口
		admin := v1.Group("/admin", jwtAuth.RequireAuth())
		{
			admin.POST("/sweep", adminHandler.TriggerSweep)
			admin.GET("/cache/stats", adminHandler.CacheStats)
			admin.GET("/db/stats", adminHandler.DBStats)
		}

		// WebSocket 实时推送
		if deps.Hub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.Hub))
		}
	}

	return r
}

// corsMiddleware 构建 CORS 中间件
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.SessionTokenHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 通配符来源与凭证不能同时开启
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}

	return cors.New(corsConfig)
}
