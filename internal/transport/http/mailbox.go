package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/middleware"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
)

// MailboxHandler 邮箱生命周期处理器
type MailboxHandler struct {
	registry *service.MailboxRegistry
	log      *zap.Logger
}

// NewMailboxHandler 创建邮箱处理器
func NewMailboxHandler(registry *service.MailboxRegistry, log *zap.Logger) *MailboxHandler {
	return &MailboxHandler{
		registry: registry,
		log:      log,
	}
}

// ownerFrom 从请求上下文解析归属方：登录用户优先，其次游客会话
func ownerFrom(c *gin.Context) (domain.Owner, bool) {
	if userID := c.GetString("userID"); userID != "" {
		return domain.UserOwner(userID), true
	}
	if token := c.GetString(middleware.ContextSessionToken); token != "" {
		return domain.SessionOwner(token), true
	}
	return domain.Owner{}, false
}

// CheckAlias 查询别名是否可用
// GET /api/v1/aliases/:alias/available
func (h *MailboxHandler) CheckAlias(c *gin.Context) {
	available, err := h.registry.CheckAliasAvailable(c.Request.Context(), c.Param("alias"))
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, gin.H{
		"alias":     c.Param("alias"),
		"available": available,
	})
}

// List 列出登录用户的全部邮箱
// GET /api/v1/mailboxes
func (h *MailboxHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	mailboxes, err := h.registry.ListMailboxesForUser(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, gin.H{
		"mailboxes": mailboxes,
		"total":     len(mailboxes),
	})
}

// Create 为登录用户创建邮箱
// POST /api/v1/mailboxes
func (h *MailboxHandler) Create(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Alias string `json:"alias" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox, err := h.registry.CreateAuthenticatedMailbox(c.Request.Context(), userID, req.Alias)
	if err != nil {
		RespondError(c, err)
		return
	}

	Created(c, mailbox)
}

// Get 查询单个邮箱（需为归属方）
// GET /api/v1/mailboxes/:id
func (h *MailboxHandler) Get(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	mailbox, err := h.registry.GetOwnedMailbox(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, mailbox)
}

// Extend 按归属方等级延长邮箱有效期
// POST /api/v1/mailboxes/:id/extend
func (h *MailboxHandler) Extend(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	mailbox, err := h.registry.ExtendExpiry(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		RespondError(c, err)
		return
	}

	SuccessWithMsg(c, "有效期已延长", mailbox)
}

// Toggle 切换邮箱的启停状态
// POST /api/v1/mailboxes/:id/toggle
func (h *MailboxHandler) Toggle(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	mailbox, err := h.registry.ToggleActive(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, mailbox)
}

// Delete 删除邮箱及其全部邮件
// DELETE /api/v1/mailboxes/:id
func (h *MailboxHandler) Delete(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	if err := h.registry.DeleteMailbox(c.Request.Context(), c.Param("id"), owner); err != nil {
		RespondError(c, err)
		return
	}

	NoContent(c)
}
