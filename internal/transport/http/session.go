package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/middleware"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
)

// SessionHandler 游客会话处理器
type SessionHandler struct {
	registry *service.MailboxRegistry
	cache    *cache.Layer
	log      *zap.Logger
}

// NewSessionHandler 创建游客会话处理器
func NewSessionHandler(registry *service.MailboxRegistry, cacheLayer *cache.Layer, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		cache:    cacheLayer,
		log:      log,
	}
}

// Create 签发新的游客会话令牌
// POST /api/v1/session
func (h *SessionHandler) Create(c *gin.Context) {
	token := uuid.New().String()

	// 会话描述只写入缓存；令牌与邮箱的绑定关系在创建邮箱时才落库
	h.cache.SetSession(c.Request.Context(), token, &domain.SessionDescriptor{
		CreatedAt: time.Now(),
	})

	h.log.Info("guest session issued")

	Created(c, gin.H{
		"sessionToken": token,
	})
}

// GetMailbox 查询当前会话持有的邮箱
// GET /api/v1/session/mailbox
func (h *SessionHandler) GetMailbox(c *gin.Context) {
	token := c.GetString(middleware.ContextSessionToken)

	mailbox, err := h.registry.GetMailboxForSession(c.Request.Context(), token)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, mailbox)
}

// CreateMailbox 为当前会话创建匿名邮箱
// POST /api/v1/session/mailbox
func (h *SessionHandler) CreateMailbox(c *gin.Context) {
	token := c.GetString(middleware.ContextSessionToken)

	var req struct {
		Alias string `json:"alias" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox, err := h.registry.CreateAnonymousMailbox(c.Request.Context(), token, req.Alias)
	if err != nil {
		RespondError(c, err)
		return
	}

	Created(c, mailbox)
}
